// ABOUTME: Typed boundary between the native backend and platform audio libraries
// ABOUTME: Drivers hand out opaque handles and fail with result codes, never panics
package native

import (
	"errors"
	"fmt"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

// ErrUnavailable means no native driver could be brought up on this host
var ErrUnavailable = errors.New("native audio unavailable")

// Handle identifies a device opened through a Driver
type Handle uint64

// Result classifies a driver failure
type Result int

const (
	ResultOK Result = iota
	ResultUnsupported
	ResultDeviceNotFound
	ResultBackendFailure
	ResultClosed
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultUnsupported:
		return "unsupported"
	case ResultDeviceNotFound:
		return "device not found"
	case ResultBackendFailure:
		return "backend failure"
	case ResultClosed:
		return "closed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// DriverError is the only error type a Driver returns
type DriverError struct {
	Driver string
	Op     string
	Code   Result
	Err    error
}

func (e *DriverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Driver, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Driver, e.Op, e.Code)
}

func (e *DriverError) Unwrap() error { return e.Err }

// Code extracts the result code from err, ResultOK for nil and
// ResultBackendFailure for foreign errors
func Code(err error) Result {
	if err == nil {
		return ResultOK
	}
	var de *DriverError
	if errors.As(err, &de) {
		return de.Code
	}
	return ResultBackendFailure
}

func driverErr(driver, op string, code Result, err error) error {
	return &DriverError{Driver: driver, Op: op, Code: code, Err: err}
}

// DeviceKind selects playback or capture endpoints
type DeviceKind int

const (
	KindPlayback DeviceKind = iota
	KindCapture
)

// DeviceConfig describes a device to open
type DeviceConfig struct {
	Device   string // ID or name; empty selects the default
	Format   audio.Format
	PeriodMs int
}

// FillFunc must fill out completely; it runs on the audio thread
type FillFunc func(out []byte)

// DeliverFunc receives captured PCM on the audio thread
type DeliverFunc func(in []byte)

// Driver is a platform audio library behind a handle-based API
type Driver interface {
	Name() string

	// Init acquires the library. format is the process default layout.
	Init(format audio.Format) error
	// Close releases the library and every handle
	Close() error

	CanCapture() bool

	OpenPlayback(cfg DeviceConfig, fill FillFunc) (Handle, error)
	OpenCapture(cfg DeviceConfig, deliver DeliverFunc) (Handle, error)

	// Start and Stop control callback delivery for an open handle
	Start(h Handle) error
	Stop(h Handle) error
	CloseHandle(h Handle) error

	Devices(kind DeviceKind) ([]audio.Device, error)
}

// DriverFactory constructs a driver for probing
type DriverFactory func() Driver
