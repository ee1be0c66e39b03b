// ABOUTME: Package documentation for the source package
// ABOUTME: Summarizes the decoders and helpers used by voicectl
// Package source decodes audio files into PCM for playback streams.
//
// Sources yield interleaved int32 samples in the 24-bit range at their own
// rate and channel count. Conform adapts a source to a stream's layout and
// Play pumps it into a stream, draining at the end.
package source
