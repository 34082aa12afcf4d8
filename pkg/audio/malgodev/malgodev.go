// Package malgodev implements audio.Device on top of miniaudio via the
// malgo bindings, opening the system default microphone and speaker as a
// single full-duplex device.
package malgodev

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/techvox/techvox/pkg/audio"
)

// Device drives one malgo duplex device. A duplex device shares a single
// sample rate between capture and playback, so Start opens the hardware at
// the requested playback rate and reports the resulting capture format back
// to the caller; rate conversion for the uplink happens upstream.
type Device struct {
	ctx *malgo.AllocatedContext

	mu      sync.Mutex
	device  *malgo.Device
	running atomic.Bool
}

var _ audio.Device = (*Device)(nil)

// New initializes the miniaudio context. Call Close to release it.
func New() (*Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgodev: init context: %w", err)
	}
	return &Device{ctx: ctx}, nil
}

// Start opens the default duplex device and begins invoking the callbacks
// from miniaudio's audio thread. The EchoCancel flag is accepted but
// miniaudio exposes no acoustic echo cancellation, so it has no effect on
// this backend.
func (d *Device) Start(cfg audio.DuplexConfig, cb audio.Callbacks) (audio.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return audio.Format{}, fmt.Errorf("malgodev: device already started")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Capture.Channels)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Playback.Channels)
	deviceConfig.SampleRate = uint32(cfg.Playback.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(cfg.PeriodMs)

	onData := func(out, in []byte, framecount uint32) {
		if !d.running.Load() {
			clear(out)
			return
		}
		if cb.Render != nil {
			cb.Render(out)
		}
		if cb.Capture != nil && len(in) > 0 {
			cb.Capture(in)
		}
	}

	device, err := malgo.InitDevice(d.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onData,
	})
	if err != nil {
		return audio.Format{}, fmt.Errorf("malgodev: init device: %w", err)
	}

	d.device = device
	d.running.Store(true)

	if err := device.Start(); err != nil {
		d.running.Store(false)
		device.Uninit()
		d.device = nil
		return audio.Format{}, fmt.Errorf("malgodev: start device: %w", err)
	}

	return audio.Format{
		SampleRate: int(device.SampleRate()),
		Channels:   cfg.Capture.Channels,
	}, nil
}

// Stop halts the device and releases it. Idempotent.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return nil
	}

	d.running.Store(false)
	err := d.device.Stop()
	d.device.Uninit()
	d.device = nil
	if err != nil {
		return fmt.Errorf("malgodev: stop device: %w", err)
	}
	return nil
}

// Close stops any running device and frees the miniaudio context.
func (d *Device) Close() error {
	err := d.Stop()
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	return err
}
