// ABOUTME: Pumps a Source into a playback stream chunk by chunk
// ABOUTME: Converts rate, channels and sample encoding to the stream's format
package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/stream"
)

// DefaultChunkMs is the amount of audio written per Write call
const DefaultChunkMs = 20

// Play writes src into pb until src is exhausted, then drains pb.
// It returns early when ctx ends or a write fails.
func Play(ctx context.Context, src Source, pb stream.Playback, chunkMs int) error {
	if chunkMs <= 0 {
		chunkMs = DefaultChunkMs
	}
	f := pb.Format()
	src = Conform(src, f.SampleRate, f.Channels)

	frames := f.SampleRate * chunkMs / 1000
	if frames < 1 {
		frames = 1
	}
	buf := make([]int32, frames*f.Channels)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(buf)
		if n > 0 {
			if werr := pb.Write(ctx, audio.EncodeSamples(buf[:n], f.Sample)); werr != nil {
				return fmt.Errorf("write %s: %w", pb.Name(), werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return pb.Drain(ctx)
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", src.Name(), err)
		}
	}
}
