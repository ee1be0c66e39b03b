// ABOUTME: Tests for the native backend over a fake driver
// ABOUTME: Covers probing, ring-fed playback, live volume, underruns, drain and capture
package native

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, drv *fakeDriver, opts ...Option) *Backend {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop()), WithDrivers(drv.factory())}, opts...)
	b := New(opts...)
	require.NoError(t, b.Initialize(context.Background(), audio.DefaultConfig()))
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

func newStream(t *testing.T, b *Backend) stream.Playback {
	t.Helper()
	params, err := stream.PlaybackOptions{PrebufferMs: stream.Int(0)}.Resolve(audio.DefaultConfig())
	require.NoError(t, err)
	pb, err := b.CreatePlaybackStream(context.Background(), params)
	require.NoError(t, err)
	return pb
}

func s16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

type collected struct {
	mu    sync.Mutex
	names []string
}

func (c *collected) handle(ev stream.Event) {
	c.mu.Lock()
	c.names = append(c.names, ev.Name())
	c.mu.Unlock()
}

func (c *collected) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func TestProbeOrder(t *testing.T) {
	broken := newFakeDriver("malgo")
	broken.initErr = errors.New("no audio server")
	working := newFakeDriver("oto")

	res := Probe(context.Background(), audio.DefaultConfig().StreamFormat(), broken.factory(), working.factory())
	require.True(t, res.OK())
	assert.Equal(t, "oto", res.Driver.Name())
	assert.NoError(t, res.Err)
}

func TestProbeAllFail(t *testing.T) {
	a := newFakeDriver("malgo")
	a.initErr = errors.New("no audio server")
	panicky := func() Driver { panic("dlopen failed") }

	res := Probe(context.Background(), audio.DefaultConfig().StreamFormat(), a.factory(), panicky)
	assert.False(t, res.OK())
	require.ErrorIs(t, res.Err, ErrUnavailable)
	assert.Contains(t, res.Err.Error(), "no audio server")
	assert.Contains(t, res.Err.Error(), "dlopen failed")
	assert.Equal(t, ResultBackendFailure, Code(res.Err))
}

func TestDriverErrorCode(t *testing.T) {
	err := driverErr("malgo", "open", ResultDeviceNotFound, errors.New("hw:9"))
	wrapped := errors.Join(errors.New("context"), err)

	assert.Equal(t, ResultDeviceNotFound, Code(wrapped))
	assert.Equal(t, ResultOK, Code(nil))
	assert.Equal(t, ResultBackendFailure, Code(errors.New("foreign")))
	assert.Equal(t, "malgo open: device not found: hw:9", err.Error())
}

func TestInitializeUnavailable(t *testing.T) {
	drv := newFakeDriver("malgo")
	drv.initErr = errors.New("no audio server")
	b := New(WithDrivers(drv.factory()))

	err := b.Initialize(context.Background(), audio.DefaultConfig())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, b.IsAvailable(context.Background()))

	_, err = b.CreatePlaybackStream(context.Background(), stream.PlaybackParams{})
	assert.ErrorIs(t, err, backend.ErrNotInitialized)
}

func TestPlaybackThroughRing(t *testing.T) {
	drv := newFakeDriver("fake")
	b := newTestBackend(t, drv)
	pb := newStream(t, b)
	ctx := context.Background()

	pcm := s16(100, -200, 300, -400)
	require.NoError(t, pb.Write(ctx, pcm))
	assert.Equal(t, stream.StateRunning, pb.State())

	out := drv.pump(12)
	assert.Equal(t, pcm, out[:8])
	assert.Equal(t, make([]byte, 4), out[8:], "short reads are zero-filled")
}

func TestLiveVolume(t *testing.T) {
	drv := newFakeDriver("fake")
	b := newTestBackend(t, drv)
	pb := newStream(t, b)
	ctx := context.Background()

	require.NoError(t, pb.Write(ctx, s16(1000, -1000)))
	pb.SetVolume(0.5)

	out := drv.pump(4)
	assert.Equal(t, s16(500, -500), out)
	assert.True(t, b.Capabilities().LiveVolume)
}

func TestUnderrunCountedPerEpisode(t *testing.T) {
	drv := newFakeDriver("fake")
	b := newTestBackend(t, drv)
	pb := newStream(t, b)
	ctx := context.Background()

	// an empty ring before the first write is not an underrun
	drv.pump(4)
	require.NoError(t, pb.Write(ctx, s16(1, 2)))
	drv.pump(4)
	assert.Zero(t, pb.Health().Underruns)

	// consecutive starved callbacks are one underrun
	drv.pump(4)
	drv.pump(4)
	require.Eventually(t, func() bool { return pb.Health().Underruns == 1 }, time.Second, time.Millisecond)

	require.NoError(t, pb.Write(ctx, s16(3, 4)))
	drv.pump(4)
	drv.pump(4)
	require.Eventually(t, func() bool { return pb.Health().Underruns == 2 }, time.Second, time.Millisecond)
}

func TestDrainWaitsForCallback(t *testing.T) {
	drv := newFakeDriver("fake")
	b := newTestBackend(t, drv)
	pb := newStream(t, b)
	ctx := context.Background()
	ev := &collected{}
	pb.Subscribe(ev.handle)

	require.NoError(t, pb.Write(ctx, make([]byte, 96)))

	done := make(chan error, 1)
	go func() { done <- pb.Drain(ctx) }()

	require.Eventually(t, func() bool {
		drv.pump(32)
		select {
		case err := <-done:
			require.NoError(t, err)
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, stream.StateStopped, pb.State())
	assert.Equal(t, []string{"started", "drained", "stopped"}, ev.list())
	assert.Equal(t, 0, drv.openHandles())
}

func TestDrainTimeout(t *testing.T) {
	drv := newFakeDriver("fake")
	b := newTestBackend(t, drv, WithDrainTimeout(20*time.Millisecond))
	pb := newStream(t, b)
	ctx := context.Background()

	require.NoError(t, pb.Write(ctx, make([]byte, 96)))
	err := pb.Drain(ctx)
	assert.ErrorIs(t, err, stream.ErrDrainTimeout)
	assert.Equal(t, stream.StateDraining, pb.State())
}

func TestPauseStopsDevice(t *testing.T) {
	drv := newFakeDriver("fake")
	b := newTestBackend(t, drv)
	pb := newStream(t, b)
	ctx := context.Background()

	require.NoError(t, pb.Write(ctx, s16(1)))
	require.NoError(t, pb.Pause(ctx))
	assert.Equal(t, stream.StatePaused, pb.State())
	assert.Nil(t, drv.pump(4), "paused device delivers no callbacks")

	require.NoError(t, pb.Resume(ctx))
	assert.Equal(t, stream.StateRunning, pb.State())
	assert.Equal(t, s16(1), drv.pump(2))
}

func TestOpenDeviceNotFound(t *testing.T) {
	drv := newFakeDriver("fake")
	b := newTestBackend(t, drv)

	params, err := stream.PlaybackOptions{Device: "missing", PrebufferMs: stream.Int(0)}.Resolve(audio.DefaultConfig())
	require.NoError(t, err)
	pb, err := b.CreatePlaybackStream(context.Background(), params)
	require.NoError(t, err)

	err = pb.Write(context.Background(), s16(1))
	assert.Equal(t, ResultDeviceNotFound, Code(err))
	assert.Equal(t, stream.StateError, pb.State())
}

func TestRecordingThroughRing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	drv := newFakeDriver("fake")
	b := newTestBackend(t, drv)

	params, err := stream.RecordingOptions{}.Resolve(audio.DefaultConfig())
	require.NoError(t, err)
	rec, err := b.CreateRecordingStream(ctx, params)
	require.NoError(t, err)
	require.NoError(t, rec.Start(ctx))

	drv.feed(s16(7, 8, 9))
	var got []byte
	for len(got) < 6 {
		chunk, err := rec.Read(ctx, 64)
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	assert.Equal(t, s16(7, 8, 9), got)

	require.NoError(t, rec.Close())
	assert.Equal(t, 0, drv.openHandles())
}

func TestCaptureOverrun(t *testing.T) {
	drv := newFakeDriver("fake")
	b := newTestBackend(t, drv)

	params, err := stream.RecordingOptions{}.Resolve(audio.DefaultConfig())
	require.NoError(t, err)

	rep := &countingReporter{}
	src, err := b.openRecording(drv)(context.Background(), params, rep)
	require.NoError(t, err)
	defer src.Close()

	// nobody reads, so the second callback finds the ring full
	capacity := src.(*ringSource).ring.Cap()
	drv.feed(make([]byte, capacity))
	drv.feed(make([]byte, 2))
	require.Eventually(t, func() bool { return rep.overruns.Load() == 1 }, time.Second, time.Millisecond)
}

type countingReporter struct {
	underruns atomic.Uint64
	overruns  atomic.Uint64
}

func (r *countingReporter) Underrun()    { r.underruns.Add(1) }
func (r *countingReporter) Overrun()     { r.overruns.Add(1) }
func (r *countingReporter) Exited(error) {}

func TestRecordingUnsupported(t *testing.T) {
	drv := newFakeDriver("fake")
	drv.capture = false
	b := newTestBackend(t, drv)

	assert.False(t, b.Capabilities().Recording)
	_, err := b.CreateRecordingStream(context.Background(), stream.RecordingParams{})
	assert.ErrorIs(t, err, stream.ErrUnsupported)
}

func TestDevices(t *testing.T) {
	drv := newFakeDriver("fake")
	drv.outputs = []audio.Device{{ID: "a", Name: "Speakers"}, {ID: "b", Name: "Headset", IsDefault: true}}
	b := newTestBackend(t, drv)
	ctx := context.Background()

	devices, err := b.ListPlaybackDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	def, err := b.DefaultPlaybackDevice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", def.ID)

	inputs, err := b.ListRecordingDevices(ctx)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "default", inputs[0].ID)
}

func TestShutdownReleasesDriver(t *testing.T) {
	drv := newFakeDriver("fake")
	b := New(WithDrivers(drv.factory()))
	ctx := context.Background()
	require.NoError(t, b.Initialize(ctx, audio.DefaultConfig()))

	pb := newStream(t, b)
	require.NoError(t, pb.Write(ctx, s16(1)))

	require.NoError(t, b.Shutdown(ctx))
	assert.True(t, drv.closed)
	assert.Equal(t, stream.StateStopped, pb.State())
	assert.Equal(t, backend.BufferHealth{}, b.BufferHealth())

	require.NoError(t, b.Initialize(ctx, audio.DefaultConfig()))
	assert.Equal(t, "native", b.Name())
}
