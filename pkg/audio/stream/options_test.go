// ABOUTME: Tests for stream option resolution
// ABOUTME: Verifies inheritance from process defaults, overrides and validation
package stream

import (
	"strings"
	"testing"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaybackOptionsInherit(t *testing.T) {
	params, err := PlaybackOptions{}.Resolve(audio.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 24000, params.Format.SampleRate)
	assert.Equal(t, 1, params.Format.Channels)
	assert.Equal(t, audio.FormatS16LE, params.Format.Sample)
	assert.Equal(t, DefaultPrebufferMs, params.PrebufferMs)
	assert.Equal(t, DefaultPriority, params.Priority)
	assert.Equal(t, 100, params.BufferMs)
	assert.NotEmpty(t, params.ID)
	assert.True(t, strings.HasPrefix(params.Name, "playback-"))
}

func TestPlaybackOptionsOverride(t *testing.T) {
	opts := PlaybackOptions{
		Name:        "tts",
		Device:      "speakers",
		SampleRate:  48000,
		Channels:    2,
		Format:      audio.FormatFloat32LE,
		PrebufferMs: Int(0),
		Priority:    Int(250),
	}
	params, err := opts.Resolve(audio.Config{})
	require.NoError(t, err)

	assert.Equal(t, "tts", params.Name)
	assert.Equal(t, "speakers", params.Device)
	assert.Equal(t, audio.Format{SampleRate: 48000, Channels: 2, Sample: audio.FormatFloat32LE}, params.Format)
	assert.Equal(t, 0, params.PrebufferMs)
	assert.Equal(t, MaxPriority, params.Priority)
}

func TestPlaybackOptionsInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts PlaybackOptions
	}{
		{"negative prebuffer", PlaybackOptions{PrebufferMs: Int(-1)}},
		{"negative rate", PlaybackOptions{SampleRate: -8000}},
		{"bad format", PlaybackOptions{Format: "alaw"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Resolve(audio.DefaultConfig())
			assert.ErrorIs(t, err, audio.ErrInvalidConfig)
		})
	}
}

func TestRecordingOptionsResolve(t *testing.T) {
	params, err := RecordingOptions{SampleRate: 16000}.Resolve(audio.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 16000, params.Format.SampleRate)
	assert.True(t, strings.HasPrefix(params.Name, "recording-"))

	a, _ := RecordingOptions{}.Resolve(audio.DefaultConfig())
	b, _ := RecordingOptions{}.Resolve(audio.DefaultConfig())
	assert.NotEqual(t, a.ID, b.ID)
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 0, ClampPriority(-5))
	assert.Equal(t, 42, ClampPriority(42))
	assert.Equal(t, 100, ClampPriority(101))
}
