// ABOUTME: Scriptable in-memory driver for native backend tests
// ABOUTME: Tests pump the device callbacks by hand instead of a real audio thread
package native

import (
	"errors"
	"sync"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

type fakeDevice struct {
	fill    FillFunc
	deliver DeliverFunc
	cfg     DeviceConfig
	running bool
}

type fakeDriver struct {
	mu       sync.Mutex
	name     string
	initErr  error
	capture  bool
	inited   bool
	closed   bool
	devices  map[Handle]*fakeDevice
	next     Handle
	starts   int
	stops    int
	outputs  []audio.Device
	inputs   []audio.Device
	initWith audio.Format
}

func newFakeDriver(name string) *fakeDriver {
	return &fakeDriver{name: name, capture: true, devices: make(map[Handle]*fakeDevice)}
}

func (f *fakeDriver) factory() DriverFactory {
	return func() Driver { return f }
}

func (f *fakeDriver) Name() string     { return f.name }
func (f *fakeDriver) CanCapture() bool { return f.capture }

func (f *fakeDriver) Init(format audio.Format) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return driverErr(f.name, "init", ResultBackendFailure, f.initErr)
	}
	f.inited = true
	f.closed = false
	f.initWith = format
	return nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.devices = make(map[Handle]*fakeDevice)
	return nil
}

func (f *fakeDriver) OpenPlayback(cfg DeviceConfig, fill FillFunc) (Handle, error) {
	return f.open(&fakeDevice{cfg: cfg, fill: fill})
}

func (f *fakeDriver) OpenCapture(cfg DeviceConfig, deliver DeliverFunc) (Handle, error) {
	if !f.capture {
		return 0, driverErr(f.name, "open", ResultUnsupported, nil)
	}
	return f.open(&fakeDevice{cfg: cfg, deliver: deliver})
}

func (f *fakeDriver) open(d *fakeDevice) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.cfg.Device == "missing" {
		return 0, driverErr(f.name, "open", ResultDeviceNotFound, errors.New("missing"))
	}
	f.next++
	f.devices[f.next] = d
	return f.next, nil
}

func (f *fakeDriver) Start(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[h]
	if !ok {
		return driverErr(f.name, "start", ResultClosed, nil)
	}
	d.running = true
	f.starts++
	return nil
}

func (f *fakeDriver) Stop(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[h]
	if !ok {
		return driverErr(f.name, "stop", ResultClosed, nil)
	}
	d.running = false
	f.stops++
	return nil
}

func (f *fakeDriver) CloseHandle(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, h)
	return nil
}

func (f *fakeDriver) Devices(kind DeviceKind) ([]audio.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kind == KindCapture {
		return f.inputs, nil
	}
	return f.outputs, nil
}

func (f *fakeDriver) openHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

// device returns the most recently opened device
func (f *fakeDriver) device() *fakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[f.next]
}

// pump runs one playback callback of n bytes if the device is running
func (f *fakeDriver) pump(n int) []byte {
	d := f.device()
	if d == nil {
		return nil
	}
	f.mu.Lock()
	running := d.running
	f.mu.Unlock()
	if !running {
		return nil
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xAA
	}
	d.fill(out)
	return out
}

// feed runs one capture callback
func (f *fakeDriver) feed(in []byte) {
	if d := f.device(); d != nil && d.deliver != nil {
		d.deliver(in)
	}
}
