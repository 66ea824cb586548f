package capture

import (
	"errors"
	"fmt"
	"strings"
)

// Scheduling errors.
var (
	// ErrNotStreaming is returned when a capture is requested with no
	// active camera session.
	ErrNotStreaming = errors.New("camera is not streaming")
	// ErrCaptureInFlight is returned when a capture is requested while
	// another one has not resolved yet.
	ErrCaptureInFlight = errors.New("capture already in flight")
)

// AcquireKind classifies why the camera could not be acquired.
type AcquireKind string

const (
	AcquirePermissionDenied AcquireKind = "permission_denied"
	AcquireNotFound         AcquireKind = "not_found"
	AcquireBusy             AcquireKind = "busy"
	AcquireUnsupported      AcquireKind = "unsupported"
	AcquireUnknown          AcquireKind = "unknown"
)

// AcquireError reports a classified camera acquisition failure. The session
// stays idle and a retry is safe.
type AcquireError struct {
	Kind AcquireKind
	Err  error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("camera acquire (%s): %v", e.Kind, e.Err)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// Guidance returns a human-actionable message for the failure.
func (e *AcquireError) Guidance() string {
	switch e.Kind {
	case AcquirePermissionDenied:
		return "Camera permission denied - please allow camera access"
	case AcquireNotFound:
		return "No camera found - check camera connection"
	case AcquireBusy:
		return "Camera is busy - close other apps using the camera"
	case AcquireUnsupported:
		return "Camera settings not supported by this device"
	default:
		return "Camera failed to start"
	}
}

// classifyAcquire maps a device-open error onto an AcquireKind by
// inspecting the driver message. Driver wording varies by platform, so this
// is best-effort; unknown stays Unknown.
func classifyAcquire(err error) *AcquireError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return &AcquireError{Kind: AcquirePermissionDenied, Err: err}
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return &AcquireError{Kind: AcquireBusy, Err: err}
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no such") ||
		strings.Contains(msg, "cannot open") || strings.Contains(msg, "out of range"):
		return &AcquireError{Kind: AcquireNotFound, Err: err}
	case strings.Contains(msg, "unsupported") || strings.Contains(msg, "constraint"):
		return &AcquireError{Kind: AcquireUnsupported, Err: err}
	default:
		return &AcquireError{Kind: AcquireUnknown, Err: err}
	}
}
