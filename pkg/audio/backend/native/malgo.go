//go:build cgo

// ABOUTME: malgo (miniaudio) driver with playback, capture and device enumeration
// ABOUTME: miniaudio loads the platform audio server libraries when the context starts
package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/gen2brain/malgo"
)

// MalgoDriver drives devices through miniaudio
type MalgoDriver struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	devices map[Handle]*malgoDevice
	next    Handle
}

type malgoDevice struct {
	device *malgo.Device
	id     malgo.DeviceID
}

// NewMalgoDriver creates an uninitialized malgo driver
func NewMalgoDriver() *MalgoDriver {
	return &MalgoDriver{devices: make(map[Handle]*malgoDevice)}
}

// Name and CanCapture describe the driver to Probe
func (m *MalgoDriver) Name() string     { return "malgo" }
func (m *MalgoDriver) CanCapture() bool { return true }

// Init creates the miniaudio context
func (m *MalgoDriver) Init(format audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return driverErr(m.Name(), "init", ResultBackendFailure, err)
	}

	// a context without any reachable endpoint is as good as none
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil || len(infos) == 0 {
		_ = ctx.Uninit()
		ctx.Free()
		if err == nil {
			err = errors.New("no playback devices")
		}
		return driverErr(m.Name(), "init", ResultBackendFailure, err)
	}

	m.ctx = ctx
	return nil
}

// Close uninitializes every device and the context
func (m *MalgoDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for h, d := range m.devices {
		_ = d.device.Stop()
		d.device.Uninit()
		delete(m.devices, h)
	}
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	if err != nil {
		return driverErr(m.Name(), "close", ResultBackendFailure, err)
	}
	return nil
}

func malgoFormat(f audio.SampleFormat) (malgo.FormatType, bool) {
	switch f {
	case audio.FormatS16LE:
		return malgo.FormatS16, true
	case audio.FormatFloat32LE:
		return malgo.FormatF32, true
	}
	return malgo.FormatUnknown, false
}

// OpenPlayback creates a stopped output device
func (m *MalgoDriver) OpenPlayback(cfg DeviceConfig, fill FillFunc) (Handle, error) {
	return m.open(malgo.Playback, cfg, func(out, in []byte, frames uint32) {
		fill(out)
	})
}

// OpenCapture creates a stopped input device
func (m *MalgoDriver) OpenCapture(cfg DeviceConfig, deliver DeliverFunc) (Handle, error) {
	return m.open(malgo.Capture, cfg, func(out, in []byte, frames uint32) {
		deliver(in)
	})
}

func (m *MalgoDriver) open(kind malgo.DeviceType, cfg DeviceConfig, onData malgo.DataProc) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return 0, driverErr(m.Name(), "open", ResultClosed, nil)
	}
	format, ok := malgoFormat(cfg.Format.Sample)
	if !ok {
		return 0, driverErr(m.Name(), "open", ResultUnsupported, fmt.Errorf("sample format %s", cfg.Format.Sample))
	}

	d := &malgoDevice{}
	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(cfg.PeriodMs)
	deviceConfig.Alsa.NoMMap = 1

	if cfg.Device != "" {
		id, err := m.lookup(kind, cfg.Device)
		if err != nil {
			return 0, err
		}
		d.id = id
	}

	if kind == malgo.Capture {
		deviceConfig.Capture.Format = format
		deviceConfig.Capture.Channels = uint32(cfg.Format.Channels)
		if cfg.Device != "" {
			deviceConfig.Capture.DeviceID = d.id.Pointer()
		}
	} else {
		deviceConfig.Playback.Format = format
		deviceConfig.Playback.Channels = uint32(cfg.Format.Channels)
		if cfg.Device != "" {
			deviceConfig.Playback.DeviceID = d.id.Pointer()
		}
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return 0, driverErr(m.Name(), "open", ResultBackendFailure, err)
	}
	d.device = device

	m.next++
	m.devices[m.next] = d
	return m.next, nil
}

// lookup resolves a device by hex ID or display name
func (m *MalgoDriver) lookup(kind malgo.DeviceType, device string) (malgo.DeviceID, error) {
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return malgo.DeviceID{}, driverErr(m.Name(), "devices", ResultBackendFailure, err)
	}
	for _, info := range infos {
		if info.ID.String() == device || info.Name() == device {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, driverErr(m.Name(), "open", ResultDeviceNotFound, fmt.Errorf("no device %q", device))
}

func (m *MalgoDriver) get(op string, h Handle) (*malgoDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[h]
	if !ok {
		return nil, driverErr(m.Name(), op, ResultClosed, nil)
	}
	return d, nil
}

// Start starts the device callback
func (m *MalgoDriver) Start(h Handle) error {
	d, err := m.get("start", h)
	if err != nil {
		return err
	}
	if err := d.device.Start(); err != nil {
		return driverErr(m.Name(), "start", ResultBackendFailure, err)
	}
	return nil
}

// Stop stops the device callback
func (m *MalgoDriver) Stop(h Handle) error {
	d, err := m.get("stop", h)
	if err != nil {
		return err
	}
	if err := d.device.Stop(); err != nil {
		return driverErr(m.Name(), "stop", ResultBackendFailure, err)
	}
	return nil
}

// CloseHandle uninitializes the device
func (m *MalgoDriver) CloseHandle(h Handle) error {
	m.mu.Lock()
	d, ok := m.devices[h]
	delete(m.devices, h)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	// Uninit waits for an in-flight callback to return
	d.device.Uninit()
	return nil
}

// Devices enumerates devices of kind
func (m *MalgoDriver) Devices(kind DeviceKind) ([]audio.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil, driverErr(m.Name(), "devices", ResultClosed, nil)
	}
	mk := malgo.Playback
	if kind == KindCapture {
		mk = malgo.Capture
	}
	infos, err := m.ctx.Devices(mk)
	if err != nil {
		return nil, driverErr(m.Name(), "devices", ResultBackendFailure, err)
	}

	devices := make([]audio.Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, audio.Device{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}
