// ABOUTME: Native driver negotiation
// ABOUTME: Tries each driver in order and reports the outcome as a value
package native

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

// ProbeResult is the outcome of driver negotiation. Exactly one of Driver and
// Err is set.
type ProbeResult struct {
	Driver Driver
	Err    error
}

// OK reports whether a driver was initialized
func (r ProbeResult) OK() bool { return r.Driver != nil }

// Probe initializes the first working driver from factories, or the platform
// defaults when none are given
func Probe(ctx context.Context, format audio.Format, factories ...DriverFactory) ProbeResult {
	if len(factories) == 0 {
		factories = defaultDrivers()
	}
	if len(factories) == 0 {
		return ProbeResult{Err: fmt.Errorf("%w: %s", ErrUnavailable, noDriversReason)}
	}

	var errs []error
	for _, factory := range factories {
		if err := ctx.Err(); err != nil {
			return ProbeResult{Err: err}
		}
		d, err := tryInit(factory, format)
		if err == nil {
			return ProbeResult{Driver: d}
		}
		errs = append(errs, err)
	}
	return ProbeResult{Err: fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))}
}

// tryInit converts panics from library loading into errors
func tryInit(factory DriverFactory, format audio.Format) (d Driver, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = driverErr("unknown", "init", ResultBackendFailure, fmt.Errorf("panic: %v", r))
		}
	}()

	d = factory()
	if err := d.Init(format); err != nil {
		return nil, err
	}
	return d, nil
}
