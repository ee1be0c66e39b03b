//go:build windows

// ABOUTME: Windows has no job-control signals, so pausing tools is unsupported
// ABOUTME: Streams stay running and the pause request is ignored
package subprocess

import (
	"os"

	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
)

const pauseSupported = false

func suspend(p *os.Process) error {
	return stream.ErrUnsupported
}

func resume(p *os.Process) error {
	return stream.ErrUnsupported
}
