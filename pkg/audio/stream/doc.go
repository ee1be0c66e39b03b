// ABOUTME: Package documentation for the stream package
// ABOUTME: Describes the playback/recording lifecycle shared by all backends
// Package stream implements the lifecycle of playback and recording streams.
//
// Backends only supply the OS transport: a Sink for playback or a Source for
// recording, opened once per activation. Everything else lives here and behaves
// the same on every backend:
//
//   - prebuffering: the first writes accumulate until PrebufferMs of audio is
//     queued, then the output is acquired and the backlog flushed in order
//   - activation: Stop, a drain, or the transport exiting ends an activation;
//     the next Write starts a new one on the same handle
//   - events: Started, Stopped, Paused, Resumed, Drained, Underrun and
//     ErrorEvent are delivered to handlers registered with Subscribe
//   - health: fill level, latency and monotonic underrun/overrun counters
//
// Example:
//
//	pb := stream.NewPlayback(params, backendOpener, stream.Settings{Logger: log})
//	unsubscribe := pb.Subscribe(func(ev stream.Event) {
//	    if u, ok := ev.(stream.Underrun); ok {
//	        log.Warn().Uint64("count", u.Count).Msg("underrun")
//	    }
//	})
//	defer unsubscribe()
//
//	for chunk := range tts {
//	    if err := pb.Write(ctx, chunk); err != nil {
//	        return err
//	    }
//	}
//	return pb.Drain(ctx)
package stream
