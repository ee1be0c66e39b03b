// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Config, Format, Device types and PCM helpers
// Package audio provides the fundamental types shared by the voice audio core.
//
// This package defines:
//   - Config: process-wide defaults (backend preference, rate, channels, format, buffer size)
//   - Format: the PCM layout of one stream, with byte/millisecond conversions
//   - Device: an enumerated playback or recording endpoint
//
// All PCM handled by the core is raw interleaved little-endian audio in one of
// two encodings: 32-bit float or 16-bit signed integer.
//
// Example:
//
//	cfg := audio.DefaultConfig()
//	cfg.SampleRate = 48000
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
//	// 50ms of prebuffer for this layout
//	target := cfg.StreamFormat().BytesFor(50)
package audio
