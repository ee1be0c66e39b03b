// ABOUTME: External player/recorder tool cascades and their argument builders
// ABOUTME: pacat/parec (PulseAudio, PipeWire) are preferred, SoX play/rec is the fallback
package subprocess

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
)

const clientName = "sendspin-voice"

// pacatMaxVolume is PulseAudio's PA_VOLUME_NORM
const pacatMaxVolume = 65536

type toolKind int

const (
	kindPulse toolKind = iota
	kindSox
)

// tool is a resolved external program
type tool struct {
	name string
	path string
	kind toolKind
}

// candidate is one entry of a cascade, in preference order
type candidate struct {
	name string
	kind toolKind
}

var (
	defaultPlayers = []candidate{
		{name: "pacat", kind: kindPulse},
		{name: "play", kind: kindSox},
	}
	defaultRecorders = []candidate{
		{name: "parec", kind: kindPulse},
		{name: "rec", kind: kindSox},
	}
)

func candidateNames(cs []candidate) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

// pacatVolume maps a [0,1] gain to PulseAudio's integer volume scale
func pacatVolume(v float64) int {
	return int(math.Round(stream.ClampVolume(v) * pacatMaxVolume))
}

func pulseFormatArgs(f audio.Format) []string {
	return []string{
		"--raw",
		"--rate=" + strconv.Itoa(f.SampleRate),
		"--channels=" + strconv.Itoa(f.Channels),
		"--format=" + string(f.Sample),
	}
}

func soxFormatArgs(f audio.Format) []string {
	encoding, bits := "signed-integer", "16"
	if f.Sample == audio.FormatFloat32LE {
		encoding, bits = "floating-point", "32"
	}
	return []string{
		"-t", "raw",
		"-r", strconv.Itoa(f.SampleRate),
		"-c", strconv.Itoa(f.Channels),
		"-e", encoding,
		"-b", bits,
		"-L",
	}
}

// playbackArgs builds the command line for one playback activation
func playbackArgs(t tool, params stream.PlaybackParams, volume float64) []string {
	switch t.kind {
	case kindPulse:
		args := append(pulseFormatArgs(params.Format),
			"--playback",
			fmt.Sprintf("--volume=%d", pacatVolume(volume)),
			"--client-name="+clientName,
			"--stream-name="+params.Name,
		)
		if params.BufferMs > 0 {
			args = append(args, "--latency-msec="+strconv.Itoa(params.BufferMs))
		}
		if params.Device != "" {
			args = append(args, "--device="+params.Device)
		}
		return args
	default:
		// -v is an input option so it must precede the input spec
		args := []string{"-q", "-v", strconv.FormatFloat(stream.ClampVolume(volume), 'f', 3, 64)}
		args = append(args, soxFormatArgs(params.Format)...)
		return append(args, "-")
	}
}

// recordingArgs builds the command line for one recording activation
func recordingArgs(t tool, params stream.RecordingParams) []string {
	switch t.kind {
	case kindPulse:
		args := append(pulseFormatArgs(params.Format),
			"--record",
			"--client-name="+clientName,
			"--stream-name="+params.Name,
		)
		if params.BufferMs > 0 {
			args = append(args, "--latency-msec="+strconv.Itoa(params.BufferMs))
		}
		if params.Device != "" {
			args = append(args, "--device="+params.Device)
		}
		return args
	default:
		args := []string{"-q"}
		args = append(args, soxFormatArgs(params.Format)...)
		return append(args, "-")
	}
}

// deviceEnv selects the SoX device; pacat takes --device instead
func deviceEnv(t tool, device string) []string {
	if t.kind != kindSox || device == "" {
		return nil
	}
	return []string{"AUDIODEV=" + device}
}

func (t tool) String() string {
	return filepath.Base(t.path)
}
