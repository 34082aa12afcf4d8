// Package audio provides the audio building blocks of the Techvox session
// engine: a fixed-capacity ring buffer with drop-oldest overflow, PCM16
// format conversion, and the [Pipeline] that owns the duplex audio device
// during an active relay session.
//
// The two primary abstractions are:
//
//   - [Device]: a duplex capture+playback device driven by real-time
//     callbacks. The malgodev subpackage adapts a real hardware device;
//     the mock subpackage provides a test double.
//   - [Pipeline]: converts captured audio to the fixed uplink format,
//     paces remote playback through a ring buffer, and exposes mute,
//     flush, and level-metering controls.
//
// This package lives under pkg/ because device adapters are expected to
// implement [Device] from outside the module.
package audio

import "time"

// Uplink is the fixed format in which captured audio leaves the pipeline:
// mono, 16-bit little-endian PCM at 16 kHz. Remote endpoints negotiate
// nothing; every capture frame is converted to this format before it is
// forwarded.
var Uplink = Format{SampleRate: 16000, Channels: 1}

// Format describes the sample rate and channel count of a PCM16 stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of the format (2 bytes per sample).
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// BytesFor returns the number of bytes covering d at this format, rounded
// down to a whole number of samples.
func (f Format) BytesFor(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	return n - n%(f.Channels*2)
}

// CaptureFrame is a fixed-duration chunk of uplink-format audio produced by
// the pipeline's capture tap. Frames are ephemeral: the pipeline forwards
// them to the registered frame callback and does not retain them.
type CaptureFrame struct {
	// Data is mono 16-bit little-endian PCM at the uplink rate.
	Data []byte

	// Level is the RMS input level of the frame, scaled to 0..1.
	// Advisory only; it never gates control flow.
	Level float64

	// Timestamp marks when the frame was captured, relative to capture start.
	Timestamp time.Duration
}
