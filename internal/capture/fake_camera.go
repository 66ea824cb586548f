package capture

import (
	"errors"
	"image"
	"sync"
)

// FakeCamera plays back pre-built frames for tests and the e2e harness.
type FakeCamera struct {
	frames  []image.Image
	index   int
	loop    bool
	openErr error
	mu      sync.Mutex
	running bool
	reads   int
}

// NewFakeCamera creates a FakeCamera serving the given frames.
func NewFakeCamera(frames []image.Image, loop bool) *FakeCamera {
	return &FakeCamera{frames: frames, loop: loop}
}

// FailOpenWith makes the next Open return err, for acquisition-failure tests.
func (c *FakeCamera) FailOpenWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

func (c *FakeCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return classifyAcquire(c.openErr)
	}
	c.running = true
	c.index = 0
	return nil
}

func (c *FakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *FakeCamera) ReadFrame() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}
	if len(c.frames) == 0 {
		return nil, errors.New("no frames available")
	}
	if c.index >= len(c.frames) {
		if !c.loop {
			return nil, errors.New("no more frames")
		}
		c.index = 0
	}

	frame := c.frames[c.index]
	c.index++
	c.reads++
	return frame, nil
}

func (c *FakeCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Reads reports how many frames have been served.
func (c *FakeCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
