// ABOUTME: record subcommand
// ABOUTME: Captures from the default input into raw PCM on stdout or a WAV file
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Sendspin/sendspin-voice/internal/source"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
)

// recordChunkMs is how much audio each write to the output carries
const recordChunkMs = 100

func runRecord(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("record")
	seconds := fs.Float64("seconds", 5, "Recording length in seconds")
	out := fs.String("out", "", "Write a 16-bit WAV file instead of raw PCM to stdout")
	device := fs.String("device", "", "Input device id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *seconds <= 0 {
		return errors.New("-seconds must be positive")
	}

	rec, err := a.manager.CreateRecordingStream(ctx, stream.RecordingOptions{Name: "voicectl", Device: *device})
	if err != nil {
		return err
	}
	defer rec.Close()

	unsubscribe := rec.Subscribe(logEvents(a.log))
	defer unsubscribe()

	format := rec.Format()
	var w io.Writer = a.stdout
	finish := func() error { return nil }
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *out, err)
		}
		wav := source.NewWAVWriter(f, format)
		w = wav
		finish = func() error {
			return errors.Join(wav.Close(), f.Close())
		}
	}

	rctx, cancel := context.WithTimeout(ctx, secondsToDuration(*seconds))
	defer cancel()

	if err := rec.Start(rctx); err != nil {
		_ = finish()
		return err
	}
	a.log.Info().
		Str("stream", rec.ID()).
		Str("format", format.String()).
		Str("backend", a.manager.BackendName()).
		Msg("recording")

	total := 0
	var writeErr error
	for chunk := range stream.Chunks(rctx, rec, format.BytesFor(recordChunkMs)) {
		if writeErr != nil {
			continue
		}
		n, err := w.Write(chunk)
		total += n
		if err != nil {
			writeErr = fmt.Errorf("write recording: %w", err)
			cancel()
		}
	}
	_ = rec.Stop(ctx)

	a.log.Info().
		Int("bytes", total).
		Float64("ms", format.DurationMs(total)).
		Msg("recording finished")

	if err := errors.Join(writeErr, finish()); err != nil {
		return err
	}
	return ctx.Err()
}
