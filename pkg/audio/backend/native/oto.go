//go:build cgo

// ABOUTME: oto driver for hosts where miniaudio cannot start; playback only
// ABOUTME: oto allows one context per process, so its layout is fixed at first Init
package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// the process-wide oto context
var otoShared struct {
	once   sync.Once
	ctx    *oto.Context
	format audio.Format
	err    error
}

// OtoDriver plays through ebitengine/oto players fed by the fill callback
type OtoDriver struct {
	mu      sync.Mutex
	ctx     *oto.Context
	format  audio.Format
	players map[Handle]*oto.Player
	next    Handle
}

// NewOtoDriver creates an uninitialized oto driver
func NewOtoDriver() *OtoDriver {
	return &OtoDriver{players: make(map[Handle]*oto.Player)}
}

// Name and CanCapture describe the driver to Probe
func (o *OtoDriver) Name() string     { return "oto" }
func (o *OtoDriver) CanCapture() bool { return false }

func otoFormat(f audio.SampleFormat) (oto.Format, bool) {
	switch f {
	case audio.FormatS16LE:
		return oto.FormatSignedInt16LE, true
	case audio.FormatFloat32LE:
		return oto.FormatFloat32LE, true
	}
	return 0, false
}

// Init creates the oto context and waits until it is ready
func (o *OtoDriver) Init(format audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx != nil {
		return nil
	}
	of, ok := otoFormat(format.Sample)
	if !ok {
		return driverErr(o.Name(), "init", ResultUnsupported, fmt.Errorf("sample format %s", format.Sample))
	}

	otoShared.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       of,
		})
		if err != nil {
			otoShared.err = err
			return
		}
		<-ready
		otoShared.ctx = ctx
		otoShared.format = format
	})
	if otoShared.err != nil {
		return driverErr(o.Name(), "init", ResultBackendFailure, otoShared.err)
	}
	if err := otoShared.ctx.Resume(); err != nil {
		return driverErr(o.Name(), "init", ResultBackendFailure, err)
	}

	o.ctx = otoShared.ctx
	o.format = otoShared.format
	return nil
}

// Close closes every player and suspends the shared context
func (o *OtoDriver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for h, p := range o.players {
		_ = p.Close()
		delete(o.players, h)
	}
	if o.ctx == nil {
		return nil
	}
	// the context cannot be destroyed, only suspended
	err := o.ctx.Suspend()
	o.ctx = nil
	if err != nil {
		return driverErr(o.Name(), "close", ResultBackendFailure, err)
	}
	return nil
}

// fillReader adapts the pull callback to the io.Reader oto consumes
type fillReader struct {
	fill FillFunc
}

func (r fillReader) Read(p []byte) (int, error) {
	r.fill(p)
	return len(p), nil
}

// OpenPlayback creates a player pulling from fill
func (o *OtoDriver) OpenPlayback(cfg DeviceConfig, fill FillFunc) (Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx == nil {
		return 0, driverErr(o.Name(), "open", ResultClosed, nil)
	}
	if cfg.Device != "" && cfg.Device != "default" {
		return 0, driverErr(o.Name(), "open", ResultDeviceNotFound, fmt.Errorf("no device %q", cfg.Device))
	}
	if cfg.Format != o.format {
		return 0, driverErr(o.Name(), "open", ResultUnsupported,
			fmt.Errorf("context runs %s, stream wants %s", o.format, cfg.Format))
	}

	player := o.ctx.NewPlayer(fillReader{fill: fill})
	player.SetBufferSize(o.format.BytesFor(cfg.PeriodMs * 2))

	o.next++
	o.players[o.next] = player
	return o.next, nil
}

// OpenCapture is unsupported by oto
func (o *OtoDriver) OpenCapture(cfg DeviceConfig, deliver DeliverFunc) (Handle, error) {
	return 0, driverErr(o.Name(), "open", ResultUnsupported, errors.New("capture"))
}

func (o *OtoDriver) player(op string, h Handle) (*oto.Player, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.players[h]
	if !ok {
		return nil, driverErr(o.Name(), op, ResultClosed, nil)
	}
	return p, nil
}

// Start plays the player
func (o *OtoDriver) Start(h Handle) error {
	p, err := o.player("start", h)
	if err != nil {
		return err
	}
	p.Play()
	return nil
}

// Stop pauses the player
func (o *OtoDriver) Stop(h Handle) error {
	p, err := o.player("stop", h)
	if err != nil {
		return err
	}
	p.Pause()
	return nil
}

// CloseHandle closes the player
func (o *OtoDriver) CloseHandle(h Handle) error {
	o.mu.Lock()
	p, ok := o.players[h]
	delete(o.players, h)
	o.mu.Unlock()

	if !ok {
		return nil
	}
	if err := p.Close(); err != nil {
		return driverErr(o.Name(), "close", ResultBackendFailure, err)
	}
	return nil
}

// Devices reports the single output oto can reach
func (o *OtoDriver) Devices(kind DeviceKind) ([]audio.Device, error) {
	if kind == KindCapture {
		return nil, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return []audio.Device{{
		ID:         "default",
		Name:       "System default (oto)",
		IsDefault:  true,
		SampleRate: o.format.SampleRate,
		Channels:   o.format.Channels,
	}}, nil
}
