//go:build !windows

// ABOUTME: Job-control pause for tool processes on unix
// ABOUTME: SIGSTOP freezes the player, SIGCONT resumes it
package subprocess

import (
	"os"
	"syscall"
)

const pauseSupported = true

func suspend(p *os.Process) error {
	return p.Signal(syscall.SIGSTOP)
}

func resume(p *os.Process) error {
	return p.Signal(syscall.SIGCONT)
}
