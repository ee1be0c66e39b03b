// ABOUTME: Package documentation for the ducking package
// ABOUTME: Explains how priorities and strategies map to playback volumes
// Package ducking keeps playback volumes in line with stream priorities.
//
// A Coordinator holds the priority of every registered playback stream and
// recomputes target volumes whenever a stream is added, removed or
// reprioritized, or the strategy changes. The result depends only on the
// current registry, so concurrent registrations converge to the same volumes
// whatever order they land in.
//
// Example:
//
//	c := ducking.New(log)
//	c.AddStream(music, 20)
//	c.AddStream(speech, 80) // music drops to 0.3, speech stays at 1.0
//	c.RemoveStream(speech.ID()) // music returns to 1.0
package ducking
