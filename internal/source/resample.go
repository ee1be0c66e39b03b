// ABOUTME: Linear interpolation resampler and format-conforming source wrappers
// ABOUTME: Lets any source feed a stream whose rate or channel count differs
package source

import (
	"errors"
	"io"
)

// Resampler converts interleaved samples between rates by linear interpolation.
// The last input frame of each call is kept so chunk boundaries stay continuous.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	// position of the next output frame, in input frames after prev
	position float64
	prev     []int32
	primed   bool
}

// NewResampler creates a resampler for the given rates and channel count
func NewResampler(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		prev:       make([]int32, channels),
	}
}

// Resample converts input into output and returns the number of samples
// written. Output must have room for OutputSamplesNeeded(len(input)) plus one
// frame; input that does not fit is lost.
func (r *Resampler) Resample(input, output []int32) int {
	inFrames := len(input) / r.channels
	if inFrames == 0 {
		return 0
	}

	offset := 0
	if r.primed {
		offset = 1
	}
	total := inFrames + offset
	frame := func(i, ch int) int32 {
		if i < offset {
			return r.prev[ch]
		}
		return input[(i-offset)*r.channels+ch]
	}

	outFrames := len(output) / r.channels
	out := 0
	for out < outFrames {
		idx := int(r.position)
		if idx+1 >= total {
			break
		}
		frac := r.position - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			a, b := float64(frame(idx, ch)), float64(frame(idx+1, ch))
			output[out*r.channels+ch] = int32(a*(1-frac) + b*frac)
		}
		out++
		r.position += r.ratio
	}

	copy(r.prev, input[(inFrames-1)*r.channels:inFrames*r.channels])
	r.position -= float64(total - 1)
	if r.position < 0 {
		r.position = 0
	}
	r.primed = true

	return out * r.channels
}

// OutputSamplesNeeded estimates how many samples inputSamples produce
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	return int(float64(inputFrames)/r.ratio) * r.channels
}

// InputSamplesNeeded estimates how many input samples produce outputSamples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	return int(float64(outputFrames)*r.ratio) * r.channels
}

// Resampled wraps a source and converts it to targetRate
type Resampled struct {
	src        Source
	resampler  *Resampler
	targetRate int
	in         []int32
	out        []int32
	pending    []int32
	eof        bool
}

// NewResampled wraps src so it produces samples at targetRate
func NewResampled(src Source, targetRate int) *Resampled {
	return &Resampled{
		src:        src,
		resampler:  NewResampler(src.SampleRate(), targetRate, src.Channels()),
		targetRate: targetRate,
	}
}

func (r *Resampled) Read(samples []int32) (int, error) {
	ch := r.src.Channels()
	limit := wholeFrames(len(samples), ch)

	for len(r.pending) < limit && !r.eof {
		need := r.resampler.InputSamplesNeeded(limit - len(r.pending))
		if need < ch {
			need = ch
		}
		if cap(r.in) < need {
			r.in = make([]int32, need)
		}
		n, err := r.src.Read(r.in[:need])
		if n > 0 {
			room := r.resampler.OutputSamplesNeeded(n) + 2*ch
			if cap(r.out) < room {
				r.out = make([]int32, room)
			}
			m := r.resampler.Resample(r.in[:n], r.out[:room])
			r.pending = append(r.pending, r.out[:m]...)
		}
		if errors.Is(err, io.EOF) {
			r.eof = true
		} else if err != nil {
			return 0, err
		}
	}

	if len(r.pending) == 0 && r.eof {
		return 0, io.EOF
	}
	n := copy(samples[:limit], r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Resampled) SampleRate() int { return r.targetRate }
func (r *Resampled) Channels() int   { return r.src.Channels() }
func (r *Resampled) Name() string    { return r.src.Name() }
func (r *Resampled) Close() error    { return r.src.Close() }

// Remixed converts a source to a different channel count. Mono is copied to
// every output channel, folding to mono averages, otherwise channels are
// taken in order and repeated as needed.
type Remixed struct {
	src      Source
	channels int
	in       []int32
}

// NewRemixed wraps src so it produces the given number of channels
func NewRemixed(src Source, channels int) *Remixed {
	return &Remixed{src: src, channels: channels}
}

func (r *Remixed) Read(samples []int32) (int, error) {
	inCh := r.src.Channels()
	frames := len(samples) / r.channels
	if cap(r.in) < frames*inCh {
		r.in = make([]int32, frames*inCh)
	}

	n, err := r.src.Read(r.in[:frames*inCh])
	got := n / inCh
	for f := 0; f < got; f++ {
		frame := r.in[f*inCh : (f+1)*inCh]
		if r.channels == 1 {
			var sum int64
			for _, s := range frame {
				sum += int64(s)
			}
			samples[f] = int32(sum / int64(inCh))
			continue
		}
		for ch := 0; ch < r.channels; ch++ {
			samples[f*r.channels+ch] = frame[ch%inCh]
		}
	}
	return got * r.channels, err
}

func (r *Remixed) SampleRate() int { return r.src.SampleRate() }
func (r *Remixed) Channels() int   { return r.channels }
func (r *Remixed) Name() string    { return r.src.Name() }
func (r *Remixed) Close() error    { return r.src.Close() }

// Conform wraps src so it matches rate and channels
func Conform(src Source, rate, channels int) Source {
	if src.Channels() != channels {
		src = NewRemixed(src, channels)
	}
	if src.SampleRate() != rate {
		src = NewResampled(src, rate)
	}
	return src
}
