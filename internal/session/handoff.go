package session

import (
	"fmt"
	"sync"

	"github.com/techvox/techvox/pkg/wake"
)

// CapturePipeline is the slice of the audio pipeline the microphone handoff
// needs. *audio.Pipeline satisfies it.
type CapturePipeline interface {
	StartCapture() error
	StopCapture() error
}

// Coordinator mediates exclusive microphone ownership between the passive
// wake-word listener and the audio pipeline. Exactly one of the two may be
// active at a time; the handoff is strictly sequential: the current owner is
// fully stopped before the next one starts. Ownership of the capture side is
// represented by a [Grant] so a second acquisition is impossible while one
// is outstanding.
type Coordinator struct {
	detector wake.Detector
	pipeline CapturePipeline

	mu        sync.Mutex
	onTrigger func(wake.Trigger)
	listening bool
	grant     *Grant
}

// NewCoordinator creates a coordinator over the given detector and pipeline.
// The detector may be nil when no wake-word hardware is present; passive
// listening then becomes a no-op and sessions start via explicit connect.
func NewCoordinator(detector wake.Detector, pipeline CapturePipeline) *Coordinator {
	return &Coordinator{detector: detector, pipeline: pipeline}
}

// StartPassive starts the wake-word listener with the given trigger callback.
// The callback is retained so the listener can be resumed with it after a
// session releases the device.
func (c *Coordinator) StartPassive(onTrigger func(wake.Trigger)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrigger = onTrigger
	return c.startListenerLocked()
}

// StopPassive stops the wake-word listener.
func (c *Coordinator) StopPassive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopListenerLocked()
}

// Listening reports whether the passive listener currently holds the device.
func (c *Coordinator) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Acquire hands the microphone to the audio pipeline: the passive listener
// is stopped first, and only once that has completed is capture started. On
// capture failure the listener is resumed. The returned grant must be
// released to give the device back.
func (c *Coordinator) Acquire() (*Grant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.grant != nil {
		return nil, fmt.Errorf("session: microphone already granted")
	}

	wasListening := c.listening
	if err := c.stopListenerLocked(); err != nil {
		return nil, fmt.Errorf("session: stop passive listener: %w", err)
	}

	if err := c.pipeline.StartCapture(); err != nil {
		if wasListening {
			if rerr := c.startListenerLocked(); rerr != nil {
				return nil, fmt.Errorf("session: start capture: %w (listener resume also failed: %v)", err, rerr)
			}
		}
		return nil, fmt.Errorf("session: start capture: %w", err)
	}

	g := &Grant{c: c, resumeListener: wasListening}
	c.grant = g
	return g, nil
}

func (c *Coordinator) startListenerLocked() error {
	if c.detector == nil || c.listening || c.onTrigger == nil {
		return nil
	}
	if err := c.detector.Start(c.onTrigger); err != nil {
		return err
	}
	c.listening = true
	return nil
}

func (c *Coordinator) stopListenerLocked() error {
	if c.detector == nil || !c.listening {
		return nil
	}
	if err := c.detector.Stop(); err != nil {
		return err
	}
	c.listening = false
	return nil
}

// Grant is the capability handle for pipeline ownership of the microphone.
type Grant struct {
	c              *Coordinator
	resumeListener bool

	mu       sync.Mutex
	released bool
}

// Release stops capture and resumes the passive listener if it held the
// device before the grant. Idempotent.
func (g *Grant) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil
	}
	g.released = true

	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	g.c.grant = nil

	if err := g.c.pipeline.StopCapture(); err != nil {
		return fmt.Errorf("session: stop capture: %w", err)
	}
	if g.resumeListener {
		if err := g.c.startListenerLocked(); err != nil {
			return fmt.Errorf("session: resume passive listener: %w", err)
		}
	}
	return nil
}
