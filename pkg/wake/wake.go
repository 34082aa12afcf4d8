// Package wake defines the wake-phrase detection surface of the session
// engine.
//
// A [Detector] listens passively on the microphone and reports candidate
// wake events; the [Verifier] confirms that what was heard is phonetically
// close enough to the configured phrase before the engine acts on it.
// Detectors are expected to be implemented outside the module (on-device
// keyword spotters, push-to-talk shims); the mock subpackage provides a test
// double.
package wake

import "time"

// Trigger is one candidate wake event reported by a detector.
type Trigger struct {
	// Text is the detector's best transcription of what was heard.
	Text string

	// Confidence is the detector's own confidence in the transcription,
	// scaled to 0..1. Zero when the detector does not score.
	Confidence float64

	// At is when the phrase was heard.
	At time.Time
}

// Detector listens for the wake phrase while it holds the microphone.
// Start and Stop are called from a single goroutine; the trigger callback
// may fire from the detector's own goroutine at any point between them.
type Detector interface {
	// Start begins passive listening and reports candidate wake events to
	// onTrigger. Calling Start on a running detector is an error.
	Start(onTrigger func(Trigger)) error

	// Stop halts listening and releases the microphone. The trigger
	// callback does not fire after Stop returns. Idempotent.
	Stop() error
}
