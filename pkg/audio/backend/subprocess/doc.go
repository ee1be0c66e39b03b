// ABOUTME: Package documentation for the subprocess backend
// ABOUTME: Explains the tool cascades and their limitations
// Package subprocess implements the audio backend on top of command-line tools.
//
// Playback pipes PCM into pacat (PulseAudio and PipeWire) or SoX play; recording
// reads from parec or SoX rec. Each stream activation runs its own process, so:
//
//   - volume is fixed at process start and changes apply on the next activation
//   - pause and resume use SIGSTOP/SIGCONT and are unavailable on Windows
//   - underruns are detected by scanning the tool's stderr
//   - a non-zero exit surfaces as an ErrorEvent followed by Stopped
//
// Devices are enumerated with pactl when it is installed.
package subprocess
