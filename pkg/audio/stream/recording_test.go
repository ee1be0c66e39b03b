// ABOUTME: Tests for the shared recording stream
// ABOUTME: Covers implicit start, chunk splitting, end of capture and Chunks iteration
package stream

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecordingParams() RecordingParams {
	return RecordingParams{
		ID:       "rec-1",
		Name:     "mic",
		Format:   audio.Format{SampleRate: 16000, Channels: 1, Sample: audio.FormatS16LE},
		BufferMs: 100,
	}
}

func newTestRecording(t *testing.T, in *fakeInput) (Recording, *eventLog) {
	t.Helper()
	rec := NewRecording(testRecordingParams(), in.open, Settings{Logger: zerolog.Nop()})
	log := &eventLog{}
	rec.Subscribe(log.handle)
	t.Cleanup(func() { _ = rec.Close() })
	return rec, log
}

func TestReadStartsCapture(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	in := &fakeInput{}
	rec, events := newTestRecording(t, in)
	assert.Equal(t, StateIdle, rec.State())

	go func() {
		for in.last() == nil {
			time.Sleep(time.Millisecond)
		}
		in.last().chunks <- []byte{1, 2, 3, 4, 5, 6}
	}()

	got, err := rec.Read(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	got, err = rec.Read(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6}, got)

	assert.Equal(t, StateRunning, rec.State())
	assert.Equal(t, []string{"started"}, events.names())
}

func TestReadEOFAfterCaptureEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	in := &fakeInput{}
	rec, events := newTestRecording(t, in)
	require.NoError(t, rec.Start(ctx))

	src := in.last()
	src.chunks <- []byte{7, 7}
	close(src.chunks)

	got, err := rec.Read(ctx, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7}, got)

	_, err = rec.Read(ctx, 16)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, StateStopped, rec.State())
	require.Eventually(t, func() bool { return events.count("stopped") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"started", "stopped"}, events.names())
}

func TestCaptureErrorEmitsEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	in := &fakeInput{}
	rec, events := newTestRecording(t, in)
	require.NoError(t, rec.Start(ctx))

	src := in.last()
	src.endErr = errBoom
	close(src.chunks)

	_, err := rec.Read(ctx, 16)
	assert.ErrorIs(t, err, io.EOF)
	require.Eventually(t, func() bool { return events.count("stopped") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"started", "error", "stopped"}, events.names())
}

func TestRecordingCloseUnblocksRead(t *testing.T) {
	in := &fakeInput{}
	rec, events := newTestRecording(t, in)
	require.NoError(t, rec.Start(context.Background()))

	errc := make(chan error, 1)
	go func() {
		_, err := rec.Read(context.Background(), 16)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Close")
	}
	assert.Equal(t, 1, events.count("stopped"))
}

func TestRecordingOpenFailure(t *testing.T) {
	in := &fakeInput{openErr: errBoom}
	rec, _ := newTestRecording(t, in)

	_, err := rec.Read(context.Background(), 16)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateError, rec.State())
}

func TestReadRejectsBadSize(t *testing.T) {
	rec, _ := newTestRecording(t, &fakeInput{})
	_, err := rec.Read(context.Background(), 0)
	assert.ErrorIs(t, err, audio.ErrInvalidConfig)
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	in := &fakeInput{}
	params := testRecordingParams()
	r := NewRecording(params, in.open, Settings{Logger: zerolog.Nop()}).(*recording)
	defer r.Close()
	require.NoError(t, r.Start(context.Background()))

	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	// 10s at 16 kHz mono s16 is 320000 bytes
	chunk := make([]byte, 32000)
	for i := 0; i < 12; i++ {
		r.push(gen, chunk)
	}

	h := r.Health()
	assert.Equal(t, 1.0, h.FillLevel)
	assert.Equal(t, uint64(2), h.Overruns)
	r.mu.Lock()
	assert.Equal(t, 320000, r.queued)
	r.mu.Unlock()
}

func TestChunks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	in := &fakeInput{}
	rec, _ := newTestRecording(t, in)
	require.NoError(t, rec.Start(ctx))

	src := in.last()
	src.chunks <- []byte{1, 2, 3}
	src.chunks <- []byte{4, 5, 6}
	close(src.chunks)

	var got []byte
	for chunk := range Chunks(ctx, rec, 2) {
		assert.LessOrEqual(t, len(chunk), 2)
		got = append(got, chunk...)
	}
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got)
}
