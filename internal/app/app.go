// Package app wires the camera session, image normalizer, backend gateway
// and letter sequence into one application object the HTTP layer talks to.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/silentapp/silent/internal/batch"
	"github.com/silentapp/silent/internal/capture"
	"github.com/silentapp/silent/internal/config"
	"github.com/silentapp/silent/internal/gateway"
	"github.com/silentapp/silent/internal/imaging"
	"github.com/silentapp/silent/internal/sequence"
	"github.com/silentapp/silent/internal/upload"
)

// Options configures an App. Camera and Gateway may be injected; when nil
// the real device and the configured backend are used.
type Options struct {
	Config  *config.Config
	Log     *logrus.Logger
	Camera  capture.Camera
	Gateway *gateway.Client
}

// PredictionEvent is emitted after every capture attempt that reached the
// backend, accepted or not. A failed call carries Error and no letter. The
// websocket stream forwards these to clients.
type PredictionEvent struct {
	Letter     string          `json:"letter"`
	Confidence float64         `json:"confidence"`
	Dataset    string          `json:"dataset,omitempty"`
	Source     sequence.Source `json:"source"`
	Accepted   bool            `json:"accepted"`
	Reason     sequence.Reason `json:"reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	Text       string          `json:"text"`
	Timestamp  time.Time       `json:"timestamp"`
}

// App owns the long-lived application state.
type App struct {
	cfg        *config.Config
	log        *logrus.Entry
	camera     capture.Camera
	gateway    *gateway.Client
	session    *capture.Session
	seq        *sequence.Accumulator
	normalizer *imaging.Normalizer
	validator  *upload.Validator
	batch      *batch.Coordinator

	mu           sync.RWMutex
	language     gateway.Language
	onPrediction func(PredictionEvent)
	lastEvent    *PredictionEvent
}

// New builds the application graph from opts.
func New(opts Options) *App {
	cfg := opts.Config
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}

	cam := opts.Camera
	if cam == nil {
		cam = capture.NewCamera(cfg.CameraID)
	}
	gw := opts.Gateway
	if gw == nil {
		gw = gateway.New(gateway.Config{
			BaseURL:        cfg.BackendURL,
			RequestTimeout: cfg.RequestTimeout,
			ProbeTimeout:   cfg.ProbeTimeout,
			Log:            log,
		})
	}

	a := &App{
		cfg:        cfg,
		log:        log.WithField("component", "app"),
		camera:     cam,
		gateway:    gw,
		normalizer: imaging.NewNormalizer(),
		validator:  upload.NewValidator(cfg.MaxBatchSize, cfg.MaxFileSize),
		seq: sequence.New(sequence.Config{
			Cooldown:        cfg.Cooldown,
			DuplicateWindow: cfg.DuplicateWindow,
			ConfidenceFloor: cfg.ConfidenceFloor,
		}),
		language: gateway.LanguageBisindo,
	}
	if lang, err := gateway.ParseLanguage(cfg.Language); err == nil {
		a.language = lang
	}

	a.session = capture.NewSession(capture.SessionConfig{
		Camera:       cam,
		Capture:      a.captureAndTranslate,
		AutoInterval: cfg.AutoCaptureInterval,
		Log:          log,
	})
	a.batch = batch.NewCoordinator(batch.Config{
		Predict: a.predictCanonical,
		Accept: func(letter string, conf float64, src sequence.Source) {
			a.seq.Consider(letter, conf, src)
		},
		Pacing: cfg.BatchPacing,
		Log:    log,
	})
	return a
}

// Session returns the capture session.
func (a *App) Session() *capture.Session { return a.session }

// Sequence returns the letter accumulator.
func (a *App) Sequence() *sequence.Accumulator { return a.seq }

// Gateway returns the backend client.
func (a *App) Gateway() *gateway.Client { return a.gateway }

// Batch returns the batch coordinator.
func (a *App) Batch() *batch.Coordinator { return a.batch }

// Validator returns the upload validator.
func (a *App) Validator() *upload.Validator { return a.validator }

// Language returns the active sign-language dataset.
func (a *App) Language() gateway.Language {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.language
}

// SetLanguage switches the active dataset for subsequent predictions.
func (a *App) SetLanguage(lang gateway.Language) error {
	if !lang.Valid() {
		return &gateway.Failure{Kind: gateway.FailureProtocol, Message: "unknown language"}
	}
	a.mu.Lock()
	a.language = lang
	a.mu.Unlock()
	a.log.WithField("language", lang).Info("language switched")
	return nil
}

// SetOnPrediction registers the prediction event sink.
func (a *App) SetOnPrediction(fn func(PredictionEvent)) {
	a.mu.Lock()
	a.onPrediction = fn
	a.mu.Unlock()
}

// Status is the aggregate state view served by the status endpoint.
type Status struct {
	Camera           capture.Status   `json:"camera"`
	Language         gateway.Language `json:"language"`
	Text             string           `json:"text"`
	Stats            sequence.Stats   `json:"stats"`
	LastPrediction   *PredictionEvent `json:"last_prediction,omitempty"`
	BackendAvailable bool             `json:"backend_available"`
}

// Status gathers the current state, probing the backend health endpoint.
func (a *App) Status(ctx context.Context) Status {
	a.mu.RLock()
	last := a.lastEvent
	a.mu.RUnlock()
	return Status{
		Camera:           a.session.Snapshot(),
		Language:         a.Language(),
		Text:             a.seq.Render(),
		Stats:            a.seq.Stats(),
		LastPrediction:   last,
		BackendAvailable: a.gateway.IsAvailable(ctx),
	}
}

// Shutdown stops the capture session. Safe to call on an idle app.
func (a *App) Shutdown() {
	if err := a.session.Stop(); err != nil {
		a.log.WithError(err).Warn("session stop failed during shutdown")
	}
}

func (a *App) emit(ev PredictionEvent) {
	a.mu.Lock()
	a.lastEvent = &ev
	fn := a.onPrediction
	a.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}
