package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/silentapp/silent/internal/batch"
	"github.com/silentapp/silent/internal/gateway"
	"github.com/silentapp/silent/internal/imaging"
	"github.com/silentapp/silent/internal/sequence"
	"github.com/silentapp/silent/internal/upload"
)

// captureAndTranslate is the session's CaptureFunc: one frame through the
// whole pipeline. Errors are logged, never returned; a failed capture leaves
// the session ready for the next trigger.
func (a *App) captureAndTranslate(ctx context.Context, source sequence.Source) {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		a.log.WithError(err).Warn("frame read failed")
		return
	}

	mirrored := a.session.Mirrored()
	canon, err := a.normalizer.Normalize(frame, imaging.Options{
		Mirror:          mirrored,
		EnhanceContrast: true,
	})
	if err != nil {
		a.log.WithError(err).Warn("frame normalization failed")
		return
	}

	pred, err := a.gateway.Predict(ctx, canon, a.Language(), &mirrored)
	if err != nil {
		// Surface the failure so the UI shows more than silence.
		a.emit(PredictionEvent{
			Source:    source,
			Error:     failureMessage(err),
			Text:      a.seq.Render(),
			Timestamp: time.Now(),
		})
		return
	}

	var decision sequence.Decision
	if !pred.NoHand() {
		decision = a.seq.Consider(pred.Letter, pred.Confidence, source)
	}

	a.emit(PredictionEvent{
		Letter:     pred.Letter,
		Confidence: pred.Confidence,
		Dataset:    pred.Dataset,
		Source:     source,
		Accepted:   decision.Accepted,
		Reason:     decision.Reason,
		Text:       a.seq.Render(),
		Timestamp:  time.Now(),
	})
}

// TranslateUpload runs one uploaded image through the pipeline. Uploads are
// never mirrored and carry no mirror hint on the wire; the accumulator is
// fed the same way camera captures are.
func (a *App) TranslateUpload(ctx context.Context, file upload.File) (*gateway.Prediction, sequence.Decision, error) {
	if verr := a.validator.ValidateFile(file); verr != nil {
		return nil, sequence.Decision{}, verr
	}

	img, err := imaging.Decode(file.Data)
	if err != nil {
		return nil, sequence.Decision{}, &imaging.NormalizationError{Reason: "undecodable image", Err: err}
	}

	canon, err := a.normalizer.Normalize(img, imaging.Options{EnhanceContrast: true})
	if err != nil {
		return nil, sequence.Decision{}, err
	}

	pred, err := a.gateway.Predict(ctx, canon, a.Language(), nil)
	if err != nil {
		return nil, sequence.Decision{}, err
	}

	var decision sequence.Decision
	if !pred.NoHand() {
		decision = a.seq.Consider(pred.Letter, pred.Confidence, sequence.SourceUpload)
	}

	a.emit(PredictionEvent{
		Letter:     pred.Letter,
		Confidence: pred.Confidence,
		Dataset:    pred.Dataset,
		Source:     sequence.SourceUpload,
		Accepted:   decision.Accepted,
		Reason:     decision.Reason,
		Text:       a.seq.Render(),
		Timestamp:  time.Now(),
	})
	return pred, decision, nil
}

// RunBatch validates the files up front (count, size, MIME), then prepares
// and runs each item. Decode and normalize failures stay per-item: the
// offending file is recorded as an error item and the rest of the batch
// still runs.
func (a *App) RunBatch(ctx context.Context, files []upload.File) (batch.Summary, []batch.Item, []*upload.ValidationError) {
	if verrs := a.validator.ValidateBatch(files); len(verrs) > 0 {
		return batch.Summary{}, nil, verrs
	}

	items := make([]batch.Item, 0, len(files))
	for _, f := range files {
		img, err := imaging.Decode(f.Data)
		if err != nil {
			items = append(items, batch.NewFailedItem(f.Name, "undecodable image"))
			continue
		}
		canon, err := a.normalizer.Normalize(img, imaging.Options{EnhanceContrast: true})
		if err != nil {
			items = append(items, batch.NewFailedItem(f.Name, "normalization failed"))
			continue
		}
		items = append(items, batch.NewItem(f.Name, canon.Data))
	}

	a.log.WithFields(logrus.Fields{"items": len(items)}).Info("batch started")
	sum, results := a.batch.Run(ctx, items)
	a.log.WithFields(logrus.Fields{
		"successful": sum.Successful,
		"failed":     sum.Failed,
	}).Info("batch finished")
	return sum, results, nil
}

// failureMessage prefers the gateway's human-readable classification over
// the raw error chain.
func failureMessage(err error) string {
	if f := gateway.FailureOf(err); f != nil {
		return f.Message
	}
	return err.Error()
}

// predictCanonical adapts the gateway for the batch coordinator, which works
// on already-normalized JPEG bytes.
func (a *App) predictCanonical(ctx context.Context, data []byte) (*gateway.Prediction, error) {
	return a.gateway.Predict(ctx, &imaging.CanonicalImage{
		Data:   data,
		Width:  imaging.TargetWidth,
		Height: imaging.TargetHeight,
	}, a.Language(), nil)
}
