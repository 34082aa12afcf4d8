package audio

import (
	"errors"
	"fmt"
)

// ErrFormatUnsupported is returned (wrapped in a [DeviceError]) when the
// hardware cannot deliver a PCM16 stream the pipeline's converter can handle.
var ErrFormatUnsupported = errors.New("audio: device format unsupported")

// DeviceError reports an audio-hardware failure: device open, start, or an
// unsupported format. It is fatal to the current connect attempt but
// recoverable by retry.
type DeviceError struct {
	Op  string // "start", "stop", "open"
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// DuplexConfig describes the stream formats requested from a [Device].
type DuplexConfig struct {
	// Capture is the requested capture format. The device may deliver a
	// different native format; Start returns the actual one.
	Capture Format

	// Playback is the playback format. The render callback supplies PCM16
	// in exactly this format.
	Playback Format

	// PeriodMs is the render callback period hint in milliseconds.
	PeriodMs int

	// EchoCancel requests acoustic echo cancellation on the capture path so
	// the microphone does not re-capture remote playback.
	EchoCancel bool
}

// Callbacks are invoked by the device on its real-time threads. Neither
// callback may block, allocate on the hot path, or hold a lock shared with a
// non-real-time thread for more than a bounded, short duration.
type Callbacks struct {
	// Capture receives raw PCM16 in the device's actual capture format at
	// device-driven intervals. The slice is only valid for the duration of
	// the call.
	Capture func(pcm []byte)

	// Render must fill out completely with PCM16 in the configured playback
	// format, zero-filling any shortfall. Invoked at a fixed hardware period.
	Render func(out []byte)
}

// Device is a duplex capture+playback audio device. Implementations wrap a
// platform audio backend (see the malgodev subpackage) and must be safe for
// concurrent use of Start and Stop from one goroutine at a time.
type Device interface {
	// Start opens the device in duplex mode and begins invoking cb.
	// It returns the actual capture format, which may differ from the
	// requested one. Errors are returned as *DeviceError.
	Start(cfg DuplexConfig, cb Callbacks) (Format, error)

	// Stop halts the callbacks and releases the hardware. Idempotent.
	Stop() error
}
