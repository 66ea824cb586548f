// Package capture owns the camera device and the scheduling of captures
// (manual, countdown, auto). The camera is exclusively owned here: nothing
// else starts or stops it.
package capture

import (
	"errors"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Camera frames are read at the canonical resolution so the normalizer's
// stretch is a no-op in the common case.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when reading from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// Camera defines the interface for camera implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (image.Image, error)
	IsOpen() bool
}

// cameraImpl manages video capture from a device using GoCV.
type cameraImpl struct {
	deviceID int
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
}

// NewCamera creates a new Camera for the given device ID.
func NewCamera(deviceID int) Camera {
	return &cameraImpl{deviceID: deviceID}
}

// Open acquires the camera device. Failures are classified into an
// *AcquireError so the caller can show actionable guidance.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return classifyAcquire(err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)

	c.capture = capture
	c.running = true

	return nil
}

// Close releases the camera device.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame and converts it to an image.Image.
func (c *cameraImpl) ReadFrame() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := c.capture.Read(&mat); !ok {
		return nil, errors.New("failed to read frame from camera")
	}
	if mat.Empty() {
		return nil, errors.New("captured frame is empty")
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, err
	}
	return img, nil
}

// IsOpen returns true if the camera is currently open.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
