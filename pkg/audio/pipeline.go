package audio

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Default pipeline tuning. Playback runs at the relay's downlink rate; the
// playback ring holds two seconds (96 kB) before drop-oldest kicks in.
const (
	defaultFrameDuration    = 100 * time.Millisecond
	defaultPreBufferWindow  = 600 * time.Millisecond
	defaultPlaybackWindow   = 2 * time.Second
	defaultRenderPeriodMs   = 20
	defaultPlaybackRateHz   = 24000
	defaultPlaybackChannels = 1
)

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithPlaybackFormat sets the playback format the device is opened with and
// the playback ring buffer is sized for. Default: 24 kHz mono.
func WithPlaybackFormat(f Format) Option {
	return func(p *Pipeline) { p.playbackFmt = f }
}

// WithFrameDuration sets the duration of each emitted [CaptureFrame].
// Default: 100 ms.
func WithFrameDuration(d time.Duration) Option {
	return func(p *Pipeline) { p.frameDur = d }
}

// WithPreBufferWindow sets how much uplink audio the pre-buffer retains to
// cover the wake-to-connected handshake window. Default: 600 ms.
func WithPreBufferWindow(d time.Duration) Option {
	return func(p *Pipeline) { p.preWindow = d }
}

// WithPlaybackWindow sets how much remote audio the playback ring buffers
// before the drop-oldest policy discards the backlog. Default: 2 s.
func WithPlaybackWindow(d time.Duration) Option {
	return func(p *Pipeline) { p.playWindow = d }
}

// Pipeline owns the duplex audio device for the duration of a session. It
// converts captured audio to the fixed [Uplink] format, assembles
// fixed-duration frames for the registered frame callback, meters input
// level, retains a short pre-buffer for handshake recovery, and paces remote
// playback through a ring buffer drained by the device's render callback.
//
// StartCapture/StopCapture and the setters are safe for concurrent use. The
// device callbacks run on real-time threads and touch shared state only
// through the ring buffers' short critical sections and atomics.
type Pipeline struct {
	device      Device
	playbackFmt Format
	frameDur    time.Duration
	preWindow   time.Duration
	playWindow  time.Duration

	playRing *RingBuffer
	preRing  *RingBuffer

	muted atomic.Bool
	level atomic.Uint64 // float64 bits of the last frame's RMS

	// conv and onFrame are read lock-free on the capture thread. Backends
	// wait for the in-flight data callback inside Stop, so the callback
	// path must never contend on mu.
	conv    atomic.Pointer[Converter]
	onFrame atomic.Pointer[func(CaptureFrame)]

	mu        sync.Mutex
	capturing bool

	// Capture-thread state; touched only by the capture callback while the
	// device is running.
	acc      []byte
	accLen   int
	captured time.Duration
}

// NewPipeline creates a Pipeline around device. The returned pipeline does
// not touch the hardware until [Pipeline.StartCapture].
func NewPipeline(device Device, opts ...Option) *Pipeline {
	p := &Pipeline{
		device:      device,
		playbackFmt: Format{SampleRate: defaultPlaybackRateHz, Channels: defaultPlaybackChannels},
		frameDur:    defaultFrameDuration,
		preWindow:   defaultPreBufferWindow,
		playWindow:  defaultPlaybackWindow,
	}
	for _, o := range opts {
		o(p)
	}
	p.playRing = NewRingBuffer(p.playbackFmt.BytesFor(p.playWindow))
	p.preRing = NewRingBuffer(Uplink.BytesFor(p.preWindow))
	p.acc = make([]byte, Uplink.BytesFor(p.frameDur))
	return p
}

// OnFrame registers fn as the outbound frame callback. Frames are delivered
// in capture order from the device's capture thread; fn must not block.
// Call before StartCapture; a nil fn discards frames.
func (p *Pipeline) OnFrame(fn func(CaptureFrame)) {
	if fn == nil {
		p.onFrame.Store(nil)
		return
	}
	p.onFrame.Store(&fn)
}

// StartCapture opens the device for duplex capture+playback with echo
// cancellation and installs the capture tap and render callback. It returns
// a *DeviceError if the hardware format has no viable conversion to the
// uplink format or the device fails to start. Idempotent while capturing.
func (p *Pipeline) StartCapture() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.capturing {
		return nil
	}

	actual, err := p.device.Start(DuplexConfig{
		Capture:    Uplink,
		Playback:   p.playbackFmt,
		PeriodMs:   defaultRenderPeriodMs,
		EchoCancel: true,
	}, Callbacks{
		Capture: p.captureTap,
		Render:  p.render,
	})
	if err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			return err
		}
		return &DeviceError{Op: "start", Err: err}
	}

	if actual.SampleRate <= 0 || actual.Channels < 1 || actual.Channels > 2 {
		_ = p.device.Stop()
		return &DeviceError{Op: "start", Err: ErrFormatUnsupported}
	}

	p.accLen = 0
	p.captured = 0
	p.conv.Store(&Converter{Source: actual, Target: Uplink})
	p.capturing = true
	return nil
}

// StopCapture tears down the capture tap and render callback and resets both
// ring buffers. Idempotent.
func (p *Pipeline) StopCapture() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.capturing {
		return nil
	}

	err := p.device.Stop()
	p.conv.Store(nil)
	p.capturing = false
	p.playRing.Reset()
	p.preRing.Reset()
	p.accLen = 0
	p.level.Store(0)
	if err != nil {
		return &DeviceError{Op: "stop", Err: err}
	}
	return nil
}

// EnqueuePlayback appends remote audio to the playback ring buffer. Callable
// from any goroutine; it performs only the ring's non-blocking write. The
// render callback alone paces actual playback.
func (p *Pipeline) EnqueuePlayback(pcm []byte) {
	p.playRing.Write(pcm)
}

// FlushPlayback discards all buffered-but-unplayed remote audio. Used for
// barge-in: stale audio stops at the next render period rather than draining
// naturally.
func (p *Pipeline) FlushPlayback() {
	p.playRing.Reset()
}

// SetMuted gates the outbound path. While muted, captured frames are
// discarded instead of forwarded; the pre-buffer and level meter keep
// running.
func (p *Pipeline) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Muted reports whether the outbound path is gated.
func (p *Pipeline) Muted() bool {
	return p.muted.Load()
}

// InputLevel returns the RMS level of the most recent capture frame, scaled
// to 0..1. Advisory only.
func (p *Pipeline) InputLevel() float64 {
	return math.Float64frombits(p.level.Load())
}

// DrainPreBuffer returns and removes everything currently held in the
// pre-buffer: uplink-format audio captured since the wake trigger, used to
// recover speech spoken during the connection handshake.
func (p *Pipeline) DrainPreBuffer() []byte {
	buf := make([]byte, p.preRing.Cap())
	n := p.preRing.Read(buf)
	return buf[:n]
}

// DroppedPlaybackBytes returns the cumulative bytes discarded by the
// playback ring's overflow policy. Read by the metrics layer.
func (p *Pipeline) DroppedPlaybackBytes() int64 {
	return p.playRing.Dropped()
}

// captureTap runs on the device's capture thread. It converts the chunk to
// the uplink format, assembles fixed-duration frames, and fans each frame
// out to the pre-buffer, the level meter, and (unless muted) the frame
// callback.
func (p *Pipeline) captureTap(pcm []byte) {
	conv := p.conv.Load()
	if conv == nil {
		return
	}

	data := conv.Convert(pcm)
	for len(data) > 0 {
		n := copy(p.acc[p.accLen:], data)
		p.accLen += n
		data = data[n:]

		if p.accLen < len(p.acc) {
			return
		}

		frame := make([]byte, len(p.acc))
		copy(frame, p.acc)
		p.accLen = 0
		p.captured += p.frameDur
		p.emitFrame(frame)
	}
}

// emitFrame delivers one assembled uplink frame to its three consumers.
func (p *Pipeline) emitFrame(frame []byte) {
	p.preRing.Write(frame)

	level := LevelRMS(frame)
	p.level.Store(math.Float64bits(level))

	if p.muted.Load() {
		return
	}

	if fn := p.onFrame.Load(); fn != nil {
		(*fn)(CaptureFrame{Data: frame, Level: level, Timestamp: p.captured})
	}
}

// render runs on the device's real-time render thread. It drains the
// playback ring into out and zero-fills the shortfall. No blocking, no
// allocation.
func (p *Pipeline) render(out []byte) {
	n := p.playRing.Read(out)
	clear(out[n:])
}
