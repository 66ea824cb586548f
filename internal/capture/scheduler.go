package capture

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/silentapp/silent/internal/metrics"
	"github.com/silentapp/silent/internal/sequence"
)

// Scheduling defaults.
const (
	// DefaultAutoInterval is the fixed period between auto-capture attempts.
	DefaultAutoInterval = 3 * time.Second
	// DefaultCountdownTick is the countdown decrement period.
	DefaultCountdownTick = time.Second
	// DefaultTimerSeconds is the countdown length when none is given.
	DefaultTimerSeconds = 3
)

// CaptureFunc performs one full capture: read a frame, normalize, predict,
// feed the accumulator. The session guarantees at most one runs at a time.
type CaptureFunc func(ctx context.Context, source sequence.Source)

// SessionConfig configures a capture Session.
type SessionConfig struct {
	Camera        Camera
	Capture       CaptureFunc
	AutoInterval  time.Duration
	CountdownTick time.Duration
	Log           *logrus.Logger
}

// Status is a point-in-time view of the session state.
type Status struct {
	IsStreaming   bool      `json:"is_streaming"`
	IsMirrored    bool      `json:"is_mirrored"`
	AutoCapture   bool      `json:"auto_capture"`
	Countdown     int       `json:"countdown"`
	InFlight      bool      `json:"in_flight"`
	LastCaptureAt time.Time `json:"last_capture_at"`
}

// Session schedules captures over one camera stream. It enforces the
// at-most-one-capture-in-flight invariant across manual, timer and auto
// triggers, and guarantees that Stop leaves no timer that can fire into a
// stopped session.
type Session struct {
	camera        Camera
	captureFn     CaptureFunc
	autoInterval  time.Duration
	countdownTick time.Duration
	log           *logrus.Entry
	metrics       *metrics.Metrics

	mu              sync.Mutex
	streaming       bool
	mirrored        bool
	autoEnabled     bool
	inFlight        bool
	countdown       int
	countdownActive bool
	lastCaptureAt   time.Time

	timerStop chan struct{}
	autoStop  chan struct{}
}

// NewSession creates a Session. Mirroring starts enabled, the webcam-selfie
// convention.
func NewSession(cfg SessionConfig) *Session {
	if cfg.AutoInterval <= 0 {
		cfg.AutoInterval = DefaultAutoInterval
	}
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = DefaultCountdownTick
	}
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	return &Session{
		camera:        cfg.Camera,
		captureFn:     cfg.Capture,
		autoInterval:  cfg.AutoInterval,
		countdownTick: cfg.CountdownTick,
		log:           log.WithField("component", "capture"),
		metrics:       metrics.Default,
		mirrored:      true,
	}
}

// Start acquires the camera and marks the session streaming. On acquisition
// failure the session stays idle and the returned *AcquireError carries
// actionable guidance; a later Start is safe.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streaming {
		return nil
	}
	if err := s.camera.Open(); err != nil {
		s.log.WithError(err).Warn("camera acquisition failed")
		return err
	}
	s.streaming = true
	s.log.Info("camera session started")
	return nil
}

// Stop tears the session down: pending countdown and auto loops are
// cancelled, the camera is released, and the session returns to idle. A
// capture already in flight is allowed to finish; no new one can start.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.streaming {
		return nil
	}
	s.cancelTimerLocked()
	s.cancelAutoLocked()
	s.streaming = false
	s.autoEnabled = false
	err := s.camera.Close()
	s.log.Info("camera session stopped")
	return err
}

// CaptureNow requests an immediate capture. It returns ErrNotStreaming when
// the session is idle and ErrCaptureInFlight when a capture has not resolved
// yet.
func (s *Session) CaptureNow() error {
	return s.trigger(sequence.SourceManual)
}

// StartTimer begins a countdown of the given seconds, firing one capture at
// zero. While a countdown is pending further calls are no-ops, so the button
// cannot stack timers. seconds <= 0 uses DefaultTimerSeconds.
func (s *Session) StartTimer(seconds int) error {
	if seconds <= 0 {
		seconds = DefaultTimerSeconds
	}

	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	if s.countdownActive {
		s.mu.Unlock()
		return nil
	}
	s.countdownActive = true
	s.countdown = seconds
	stop := make(chan struct{})
	s.timerStop = stop
	s.mu.Unlock()

	go s.runCountdown(stop)
	return nil
}

// SetAuto enables or disables the fixed-interval auto-capture loop.
func (s *Session) SetAuto(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.streaming {
		return ErrNotStreaming
	}
	if enabled == s.autoEnabled {
		return nil
	}
	s.autoEnabled = enabled
	if enabled {
		stop := make(chan struct{})
		s.autoStop = stop
		go s.runAuto(stop)
		s.log.Info("auto-capture enabled")
	} else {
		s.cancelAutoLocked()
		s.log.Info("auto-capture disabled")
	}
	return nil
}

// SetMirrored toggles the preview mirror. It affects normalization of frames
// captured from the camera, not uploads.
func (s *Session) SetMirrored(mirrored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrored = mirrored
}

// Mirrored reports the current mirror setting.
func (s *Session) Mirrored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirrored
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		IsStreaming:   s.streaming,
		IsMirrored:    s.mirrored,
		AutoCapture:   s.autoEnabled,
		Countdown:     s.countdown,
		InFlight:      s.inFlight,
		LastCaptureAt: s.lastCaptureAt,
	}
}

// trigger starts one capture attributed to source. The in-flight guard and
// the streaming check happen under the same lock, so concurrent triggers
// cannot both pass.
func (s *Session) trigger(source sequence.Source) error {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	if s.inFlight {
		s.mu.Unlock()
		s.metrics.CapturesSkipped.Inc()
		return ErrCaptureInFlight
	}
	s.inFlight = true
	s.lastCaptureAt = time.Now()
	s.mu.Unlock()

	s.metrics.CapturesTotal.WithLabelValues(string(source)).Inc()

	go func() {
		defer func() {
			s.mu.Lock()
			s.inFlight = false
			s.mu.Unlock()
		}()
		s.captureFn(context.Background(), source)
	}()
	return nil
}

// runCountdown decrements once per tick and fires a capture at zero.
func (s *Session) runCountdown(stop chan struct{}) {
	ticker := time.NewTicker(s.countdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.countdown--
			done := s.countdown <= 0
			if done {
				s.countdown = 0
				s.countdownActive = false
				if s.timerStop == stop {
					s.timerStop = nil
				}
			}
			s.mu.Unlock()

			if done {
				if err := s.trigger(sequence.SourceTimer); err != nil {
					s.log.WithError(err).Debug("timer capture skipped")
				}
				return
			}
		}
	}
}

// runAuto fires a capture every autoInterval. Ticks that land while a
// capture is in flight are skipped, never queued.
func (s *Session) runAuto(stop chan struct{}) {
	ticker := time.NewTicker(s.autoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.trigger(sequence.SourceAuto); err != nil {
				s.log.WithError(err).Debug("auto capture skipped")
			}
		}
	}
}

func (s *Session) cancelTimerLocked() {
	if s.timerStop != nil {
		close(s.timerStop)
		s.timerStop = nil
	}
	s.countdownActive = false
	s.countdown = 0
}

func (s *Session) cancelAutoLocked() {
	if s.autoStop != nil {
		close(s.autoStop)
		s.autoStop = nil
	}
}
