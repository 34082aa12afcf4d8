// Package mock provides an in-memory mock implementation of [audio.Device]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts and arguments, exposes exported fields the
// test can set to control return values, and keeps the callbacks passed to
// Start so the test can drive the capture and render paths by hand:
//
//	dev := &mock.Device{StartFormat: audio.Format{SampleRate: 48000, Channels: 2}}
//	pipe := audio.NewPipeline(dev)
//	_ = pipe.StartCapture()
//	dev.PushCapture(rawPCM) // invoke the capture tap as the hardware would
package mock

import (
	"sync"

	"github.com/techvox/techvox/pkg/audio"
)

// StartCall records the arguments of a single [Device.Start] invocation.
type StartCall struct {
	// Config is the duplex configuration passed to Start.
	Config audio.DuplexConfig
}

// Device is a mock implementation of [audio.Device].
// Set the exported *Format/*Error fields before use; inspect the recorded
// calls after.
type Device struct {
	mu sync.Mutex

	// StartFormat is the capture format returned by Start. If left zero,
	// Start returns [audio.Uplink].
	StartFormat audio.Format

	// StartError is returned by Start. When set, Start records the call but
	// does not retain the callbacks.
	StartError error

	// StopError is returned by Stop.
	StopError error

	// StartCalls records all Start invocations.
	StartCalls []StartCall

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	callbacks audio.Callbacks
	started   bool
}

var _ audio.Device = (*Device)(nil)

// Start implements [audio.Device]. Records the call and retains the
// callbacks for PushCapture/PullRender.
func (d *Device) Start(cfg audio.DuplexConfig, cb audio.Callbacks) (audio.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartCalls = append(d.StartCalls, StartCall{Config: cfg})
	if d.StartError != nil {
		return audio.Format{}, d.StartError
	}
	d.callbacks = cb
	d.started = true
	if d.StartFormat == (audio.Format{}) {
		return audio.Uplink, nil
	}
	return d.StartFormat, nil
}

// Stop implements [audio.Device]. Returns StopError.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	d.started = false
	d.callbacks = audio.Callbacks{}
	return d.StopError
}

// Started reports whether the device is currently between a successful Start
// and the next Stop.
func (d *Device) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// PushCapture invokes the capture callback with pcm, as the hardware's
// capture thread would. No-op when the device is stopped or no capture
// callback was registered.
func (d *Device) PushCapture(pcm []byte) {
	d.mu.Lock()
	cb := d.callbacks.Capture
	started := d.started
	d.mu.Unlock()
	if started && cb != nil {
		cb(pcm)
	}
}

// PullRender invokes the render callback with a buffer of n bytes and
// returns what the callback produced, as the hardware's render thread would.
// Returns nil when the device is stopped or no render callback was
// registered.
func (d *Device) PullRender(n int) []byte {
	d.mu.Lock()
	cb := d.callbacks.Render
	started := d.started
	d.mu.Unlock()
	if !started || cb == nil {
		return nil
	}
	out := make([]byte, n)
	cb(out)
	return out
}
