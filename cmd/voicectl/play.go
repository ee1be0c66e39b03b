// ABOUTME: play and duck-demo subcommands
// ABOUTME: Feed files or tones into playback streams created by the manager
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sendspin/sendspin-voice/internal/source"
	"github.com/Sendspin/sendspin-voice/pkg/audio/ducking"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func runPlay(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("play")
	file := fs.String("file", "", "Audio file to play (.mp3, .flac, .wav)")
	tone := fs.Bool("tone", false, "Play a 440 Hz test tone")
	seconds := fs.Float64("seconds", 3, "Tone length in seconds")
	priority := fs.Int("priority", stream.DefaultPriority, "Ducking priority (0-100)")
	device := fs.String("device", "", "Output device id")
	volume := fs.Float64("volume", 1, "Initial volume (0.0-1.0)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *file == "" && !*tone:
		return errors.New("play needs -file or -tone")
	case *file != "" && *tone:
		return errors.New("-file and -tone are mutually exclusive")
	}

	src, err := source.Open(*file, secondsToDuration(*seconds))
	if err != nil {
		return err
	}
	defer src.Close()

	pb, err := a.manager.CreatePlaybackStream(ctx, stream.PlaybackOptions{
		Name:       src.Name(),
		Device:     *device,
		SampleRate: src.SampleRate(),
		Channels:   src.Channels(),
		Priority:   stream.Int(*priority),
	})
	if err != nil {
		return err
	}
	defer pb.Close()
	pb.SetVolume(*volume)

	unsubscribe := pb.Subscribe(logEvents(a.log))
	defer unsubscribe()

	a.log.Info().
		Str("source", src.Name()).
		Str("stream", pb.ID()).
		Str("format", pb.Format().String()).
		Str("backend", a.manager.BackendName()).
		Msg("playing")

	return source.Play(ctx, src, pb, source.DefaultChunkMs)
}

// duckVoice describes one tone in the ducking demo
type duckVoice struct {
	name      string
	frequency float64
	priority  int
	delay     time.Duration
	length    time.Duration
	// report prints the ducking state once this voice has started
	report bool
}

func runDuckDemo(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("duck-demo")
	strategy := fs.String("strategy", string(ducking.StrategySimple), "Ducking strategy: none, simple, proportional, fade")
	level := fs.Float64("level", ducking.DefaultDuckLevel, "Volume applied to ducked streams")
	seconds := fs.Float64("seconds", 6, "Length of the background tone")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := ducking.ParseStrategy(*strategy)
	if err != nil {
		return err
	}
	a.manager.SetDuckingStrategy(st, *level)

	background := secondsToDuration(*seconds)
	voices := []duckVoice{
		{name: "background", frequency: 220, priority: 20, length: background},
		{name: "announcement", frequency: 660, priority: 80, delay: background / 3, length: background / 3, report: true},
	}

	fmt.Fprintf(a.stdout, "ducking %s at level %.2f: %s (priority %d) is ducked while %s (priority %d) plays\n",
		st, *level, voices[0].name, voices[0].priority, voices[1].name, voices[1].priority)

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range voices {
		v := v
		g.Go(func() error {
			return playVoice(gctx, a, v)
		})
	}
	return g.Wait()
}

func playVoice(ctx context.Context, a *app, v duckVoice) error {
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cfg := a.manager.Config()
	src := source.NewTone(v.frequency, cfg.SampleRate, cfg.Channels, v.length)
	pb, err := a.manager.CreatePlaybackStream(ctx, stream.PlaybackOptions{
		Name:     v.name,
		Priority: stream.Int(v.priority),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", v.name, err)
	}
	defer pb.Close()

	log := a.log.With().Str("voice", v.name).Logger()
	unsubscribe := pb.Subscribe(logEvents(log))
	defer unsubscribe()

	log.Info().Int("priority", v.priority).Float64("volume", pb.Volume()).Msg("voice started")
	if v.report {
		for _, info := range a.manager.DuckingState() {
			fmt.Fprintf(a.stdout, "  %s priority=%d volume=%.2f ducked=%t\n", info.ID, info.Priority, info.Volume, info.Ducked)
		}
	}
	return source.Play(ctx, src, pb, source.DefaultChunkMs)
}

// logEvents returns a stream handler that logs lifecycle events
func logEvents(log zerolog.Logger) stream.Handler {
	return func(ev stream.Event) {
		switch e := ev.(type) {
		case stream.ErrorEvent:
			log.Error().Err(e.Err).Str("stream", e.ID).Msg("stream error")
		case stream.Underrun:
			log.Warn().Str("stream", e.ID).Uint64("count", e.Count).Msg("underrun")
		default:
			log.Debug().Str("stream", ev.StreamID()).Str("event", ev.Name()).Msg("stream event")
		}
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
