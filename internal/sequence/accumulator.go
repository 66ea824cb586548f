// Package sequence accumulates accepted letter predictions into the session
// transcript. Admission is gated by an ordered policy: letter validity,
// global cooldown, short-window duplicate suppression, confidence floor.
package sequence

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/silentapp/silent/internal/gateway"
	"github.com/silentapp/silent/internal/metrics"
)

// Admission policy defaults.
const (
	// DefaultCooldown is the minimum gap between any two accepted entries,
	// shared across all capture sources.
	DefaultCooldown = 2500 * time.Millisecond
	// DefaultDuplicateWindow is how long the same letter stays blocked
	// after being accepted, even once the global cooldown has passed.
	DefaultDuplicateWindow = 5 * time.Second
	// DefaultConfidenceFloor is the minimum confidence for acceptance.
	// 0.2 trades some recall for precision; tune against real model output.
	DefaultConfidenceFloor = 0.2
	// MaxHistory bounds the undo stack.
	MaxHistory = 10
)

// Source is the capture modality an observation came from. Recorded for
// display and debugging; admission treats every source the same.
type Source string

const (
	SourceManual Source = "manual"
	SourceTimer  Source = "timer"
	SourceAuto   Source = "auto"
	SourceUpload Source = "upload"
)

// Entry is one accepted letter or space in the transcript. Immutable after
// creation.
type Entry struct {
	ID         string    `json:"id"`
	Letter     string    `json:"letter"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Source     Source    `json:"source"`
	IsSpace    bool      `json:"is_space"`
}

// Reason explains why an observation was rejected.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonInvalidLetter Reason = "invalid_letter"
	ReasonCooldown      Reason = "cooldown"
	ReasonDuplicate     Reason = "duplicate"
	ReasonLowConfidence Reason = "low_confidence"
)

// Decision is the outcome of one Consider call.
type Decision struct {
	Accepted bool
	Reason   Reason
}

// Stats summarizes the current transcript for display.
type Stats struct {
	Letters        int     `json:"letters"`
	Spaces         int     `json:"spaces"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// Config tunes the admission policy. Zero values fall back to the defaults.
type Config struct {
	Cooldown        time.Duration
	DuplicateWindow time.Duration
	ConfidenceFloor float64
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Accumulator owns the transcript and its bounded undo history. External
// callers observe through Render/Entries and mutate only through the
// exported operations. Consider never fails: a flaky prediction is rejected,
// never an error that could corrupt session state.
type Accumulator struct {
	mu sync.Mutex

	entries      []Entry
	history      [][]Entry
	lastAccepted time.Time

	cooldown  time.Duration
	dupWindow time.Duration
	floor     float64
	now       func() time.Time

	metrics  *metrics.Metrics
	onChange func([]Entry)
}

// New creates an empty Accumulator.
func New(cfg Config) *Accumulator {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}
	if cfg.ConfidenceFloor == 0 {
		cfg.ConfidenceFloor = DefaultConfidenceFloor
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Accumulator{
		cooldown:  cfg.Cooldown,
		dupWindow: cfg.DuplicateWindow,
		floor:     cfg.ConfidenceFloor,
		now:       cfg.Now,
		metrics:   metrics.Default,
	}
}

// SetOnChange registers a callback invoked with a copy of the entries after
// every mutation. Used by the websocket stream.
func (a *Accumulator) SetOnChange(fn func([]Entry)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// Consider runs the admission policy on one observation. Checks run in a
// fixed order and the first failing check rejects; a rejected observation
// leaves no trace (no cooldown reset, no snapshot, no entry).
func (a *Accumulator) Consider(letter string, confidence float64, source Source) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !validLetter(letter) {
		return a.reject(ReasonInvalidLetter)
	}

	now := a.now()
	if !a.lastAccepted.IsZero() && now.Sub(a.lastAccepted) < a.cooldown {
		return a.reject(ReasonCooldown)
	}

	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		if now.Sub(e.Timestamp) >= a.dupWindow {
			break
		}
		if !e.IsSpace && e.Letter == letter {
			return a.reject(ReasonDuplicate)
		}
	}

	if confidence < a.floor {
		return a.reject(ReasonLowConfidence)
	}

	a.snapshot()
	a.entries = append(a.entries, Entry{
		ID:         uuid.NewString(),
		Letter:     letter,
		Confidence: confidence,
		Timestamp:  now,
		Source:     source,
	})
	a.lastAccepted = now
	a.metrics.LettersAccepted.Inc()
	a.notify()
	return Decision{Accepted: true}
}

// InsertSpace appends a space marker. Always accepted; does not touch the
// cooldown clock, so prediction flow continues normally.
func (a *Accumulator) InsertSpace() Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.snapshot()
	e := Entry{
		ID:         uuid.NewString(),
		Letter:     " ",
		Confidence: 1.0,
		Timestamp:  a.now(),
		Source:     SourceManual,
		IsSpace:    true,
	}
	a.entries = append(a.entries, e)
	a.notify()
	return e
}

// Undo reverts to the most recent retained snapshot. No-op when the history
// is empty.
func (a *Accumulator) Undo() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.history) == 0 {
		return false
	}
	a.entries = a.history[len(a.history)-1]
	a.history = a.history[:len(a.history)-1]
	a.notify()
	return true
}

// Clear empties the transcript after snapshotting it, so a clear is undoable.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.snapshot()
	a.entries = nil
	a.notify()
}

// Render concatenates every entry's letter, spaces included.
func (a *Accumulator) Render() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for _, e := range a.entries {
		b.WriteString(e.Letter)
	}
	return b.String()
}

// Entries returns a copy of the transcript.
func (a *Accumulator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Entry(nil), a.entries...)
}

// Stats computes display statistics over the current transcript.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var s Stats
	var sum float64
	for _, e := range a.entries {
		if e.IsSpace {
			s.Spaces++
			continue
		}
		s.Letters++
		sum += e.Confidence
	}
	if s.Letters > 0 {
		s.MeanConfidence = sum / float64(s.Letters)
	}
	return s
}

// snapshot pushes a copy of the current entries onto the undo history,
// dropping the oldest snapshot past MaxHistory. Caller holds the lock.
func (a *Accumulator) snapshot() {
	snap := append([]Entry(nil), a.entries...)
	if len(a.history) >= MaxHistory {
		a.history = a.history[len(a.history)-MaxHistory+1:]
	}
	a.history = append(a.history, snap)
}

func (a *Accumulator) reject(r Reason) Decision {
	a.metrics.LettersRejected.WithLabelValues(string(r)).Inc()
	return Decision{Reason: r}
}

func (a *Accumulator) notify() {
	if a.onChange != nil {
		a.onChange(append([]Entry(nil), a.entries...))
	}
}

// validLetter accepts exactly one letter rune; the no-detection sentinel and
// anything multi-character or non-alphabetic is rejected outright.
func validLetter(s string) bool {
	if s == "" || s == gateway.NoHandSentinel {
		return false
	}
	runes := []rune(s)
	return len(runes) == 1 && unicode.IsLetter(runes[0])
}
