// ABOUTME: Package documentation for the voice package
// ABOUTME: Shows how to construct a Manager and stream speech through it
// Package voice is the entry point to the audio core.
//
// A Manager picks a backend (native first, then command-line tools when the
// preference is "auto"), creates playback and recording streams on it and
// registers playback streams with a ducking coordinator so lower-priority
// audio is attenuated while higher-priority audio plays.
//
// Construct one Manager at the top of the program and pass it to whatever
// needs audio:
//
//	m := voice.New(voice.WithLogger(log))
//	defer m.Shutdown(ctx)
//
//	pb, err := m.CreatePlaybackStream(ctx, stream.PlaybackOptions{
//	    Name:     "assistant",
//	    Priority: stream.Int(80),
//	})
//	if err != nil {
//	    return err
//	}
//	defer pb.Close()
//
//	for chunk := range speech {
//	    if err := pb.Write(ctx, chunk); err != nil {
//	        return err
//	    }
//	}
//	return pb.Drain(ctx)
package voice
