// ABOUTME: Package documentation for the native backend
// ABOUTME: Covers driver negotiation, the ring buffer and callback rules
// Package native implements the audio backend on in-process audio libraries.
//
// Drivers sit behind a small handle-based interface (Driver) and report
// failures as *DriverError values carrying a Result code. Probe tries malgo
// (miniaudio) first and then oto, which can only play. Builds without cgo have
// no drivers and Probe reports ErrUnavailable.
//
// Each stream activation opens one device. Writers push PCM into a lock-free
// single-producer single-consumer Ring; the device callback pulls from it,
// applies the stream volume and zero-fills when the ring runs dry. Volume
// changes are heard within one callback period.
//
// Example:
//
//	res := native.Probe(ctx, cfg.StreamFormat())
//	if !res.OK() {
//	    log.Warn().Err(res.Err).Msg("falling back to subprocess tools")
//	}
package native
