// Package mock provides an in-memory mock implementation of [wake.Detector]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records Start/Stop calls, retains
// the trigger callback, and lets the test fire wake events by hand:
//
//	det := &mock.Detector{}
//	_ = det.Start(onTrigger)
//	det.TriggerWake(wake.Trigger{Text: "hey techvox"})
package mock

import (
	"sync"

	"github.com/techvox/techvox/pkg/wake"
)

// Detector is a mock implementation of [wake.Detector].
// Set the exported *Error fields before use; inspect the CallCount fields
// after.
type Detector struct {
	mu sync.Mutex

	// StartError is returned by Start. When set, the detector does not
	// retain the callback.
	StartError error

	// StopError is returned by Stop.
	StopError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	onTrigger func(wake.Trigger)
	running   bool
}

var _ wake.Detector = (*Detector)(nil)

// Start implements [wake.Detector]. Records the call and retains onTrigger.
func (d *Detector) Start(onTrigger func(wake.Trigger)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	if d.StartError != nil {
		return d.StartError
	}
	d.onTrigger = onTrigger
	d.running = true
	return nil
}

// Stop implements [wake.Detector]. Returns StopError.
func (d *Detector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	d.running = false
	d.onTrigger = nil
	return d.StopError
}

// Running reports whether the detector is between a successful Start and
// the next Stop.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// TriggerWake fires the retained trigger callback with t, as the detector's
// own goroutine would. No-op when the detector is stopped.
func (d *Detector) TriggerWake(t wake.Trigger) {
	d.mu.Lock()
	cb := d.onTrigger
	running := d.running
	d.mu.Unlock()
	if running && cb != nil {
		cb(t)
	}
}
