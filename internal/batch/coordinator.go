// Package batch runs multi-image translation jobs: items are processed
// strictly one at a time, paced so the backend is never hammered, and one
// bad image never sinks the rest of the job.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/silentapp/silent/internal/gateway"
	"github.com/silentapp/silent/internal/metrics"
	"github.com/silentapp/silent/internal/sequence"
)

// Pacing and retry defaults.
const (
	DefaultPacing       = 500 * time.Millisecond
	DefaultMaxAttempts  = 2
	DefaultRetryBackoff = 500 * time.Millisecond
)

// ItemStatus tracks an item through its lifecycle.
type ItemStatus string

const (
	StatusReady      ItemStatus = "ready"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusError      ItemStatus = "error"
)

// Item is one image in a batch job.
type Item struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     ItemStatus `json:"status"`
	Letter     string     `json:"letter,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Error      string     `json:"error,omitempty"`

	data []byte
}

// Summary aggregates a finished job.
type Summary struct {
	Total          int     `json:"total"`
	Successful     int     `json:"successful"`
	Failed         int     `json:"failed"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// PredictFunc translates one normalized image.
type PredictFunc func(ctx context.Context, data []byte) (*gateway.Prediction, error)

// AcceptFunc offers a prediction to the letter sequence.
type AcceptFunc func(letter string, confidence float64, source sequence.Source)

// Config configures a Coordinator.
type Config struct {
	Predict      PredictFunc
	Accept       AcceptFunc
	Pacing       time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	OnItem       func(Item)
	Log          *logrus.Logger
}

// Coordinator runs batch jobs sequentially.
type Coordinator struct {
	predict      PredictFunc
	accept       AcceptFunc
	pacing       time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	onItem       func(Item)
	log          *logrus.Entry
	metrics      *metrics.Metrics
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Pacing <= 0 {
		cfg.Pacing = DefaultPacing
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	return &Coordinator{
		predict:      cfg.Predict,
		accept:       cfg.Accept,
		pacing:       cfg.Pacing,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		onItem:       cfg.OnItem,
		log:          log.WithField("component", "batch"),
		metrics:      metrics.Default,
	}
}

// NewItem wraps normalized image bytes as a ready batch item.
func NewItem(name string, data []byte) Item {
	return Item{
		ID:     uuid.New().String(),
		Name:   name,
		Status: StatusReady,
		data:   data,
	}
}

// NewFailedItem records a file that failed preparation (decode, normalize)
// before any backend call, so the batch reports it without aborting.
func NewFailedItem(name, reason string) Item {
	return Item{
		ID:     uuid.New().String(),
		Name:   name,
		Status: StatusError,
		Error:  reason,
	}
}

// Run processes items in order, one at a time, pausing between backend
// calls. A failed item is recorded and the job moves on; items that arrive
// already in StatusError (failed preparation) are counted without a backend
// call. Run returns early only when ctx is cancelled; the summary then
// covers the items processed so far.
func (c *Coordinator) Run(ctx context.Context, items []Item) (Summary, []Item) {
	results := make([]Item, len(items))
	copy(results, items)

	sum := Summary{Total: len(items)}
	var confTotal float64
	var confCount int

	c.metrics.BatchRuns.Inc()

	madeCall := false
	for i := range results {
		if results[i].Status == StatusError {
			c.metrics.BatchItemsTotal.WithLabelValues(string(StatusError)).Inc()
			sum.Failed++
			if c.onItem != nil {
				c.onItem(results[i])
			}
			c.log.WithField("item", results[i].Name).Warn("batch item failed before upload")
			continue
		}

		if madeCall {
			select {
			case <-ctx.Done():
				c.log.Warn("batch cancelled")
				return finish(sum, confTotal, confCount), results
			case <-time.After(c.pacing):
			}
		}
		madeCall = true

		c.setStatus(&results[i], StatusProcessing)

		pred, err := c.predictWithRetry(ctx, results[i].data)
		if err != nil {
			results[i].Error = err.Error()
			c.setStatus(&results[i], StatusError)
			c.metrics.BatchItemsTotal.WithLabelValues(string(StatusError)).Inc()
			sum.Failed++
			c.log.WithError(err).WithField("item", results[i].Name).Warn("batch item failed")
			if ctx.Err() != nil {
				return finish(sum, confTotal, confCount), results
			}
			continue
		}

		results[i].Letter = pred.Letter
		results[i].Confidence = pred.Confidence
		c.setStatus(&results[i], StatusCompleted)
		c.metrics.BatchItemsTotal.WithLabelValues(string(StatusCompleted)).Inc()
		sum.Successful++
		confTotal += pred.Confidence
		confCount++

		if c.accept != nil && !pred.NoHand() {
			c.accept(pred.Letter, pred.Confidence, sequence.SourceUpload)
		}
	}

	return finish(sum, confTotal, confCount), results
}

// predictWithRetry retries transient transport failures only. Backend
// rejections and protocol errors are final on the first try.
func (c *Coordinator) predictWithRetry(ctx context.Context, data []byte) (*gateway.Prediction, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * c.retryBackoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		pred, err := c.predict(ctx, data)
		if err == nil {
			return pred, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	f := gateway.FailureOf(err)
	if f == nil {
		return false
	}
	return f.Kind == gateway.FailureTimeout || f.Kind == gateway.FailureNetwork
}

func (c *Coordinator) setStatus(item *Item, status ItemStatus) {
	item.Status = status
	if c.onItem != nil {
		c.onItem(*item)
	}
}

func finish(sum Summary, confTotal float64, confCount int) Summary {
	if confCount > 0 {
		sum.MeanConfidence = confTotal / float64(confCount)
	}
	return sum
}
