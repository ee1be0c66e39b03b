// ABOUTME: PCM sample helpers
// ABOUTME: Software volume scaling and int32 to wire-format encoding
package audio

import (
	"encoding/binary"
	"math"
)

// ApplyVolume scales interleaved PCM in place with clipping protection.
// A volume of 1 leaves the buffer untouched.
func ApplyVolume(buf []byte, format SampleFormat, volume float64) {
	if volume >= 1 {
		return
	}
	if volume < 0 {
		volume = 0
	}

	switch format {
	case FormatS16LE:
		for i := 0; i+1 < len(buf); i += 2 {
			s := int16(binary.LittleEndian.Uint16(buf[i:]))
			scaled := int32(float64(s) * volume)
			if scaled > math.MaxInt16 {
				scaled = math.MaxInt16
			} else if scaled < math.MinInt16 {
				scaled = math.MinInt16
			}
			binary.LittleEndian.PutUint16(buf[i:], uint16(int16(scaled)))
		}
	case FormatFloat32LE:
		for i := 0; i+3 < len(buf); i += 4 {
			s := math.Float32frombits(binary.LittleEndian.Uint32(buf[i:]))
			scaled := s * float32(volume)
			if scaled > 1 {
				scaled = 1
			} else if scaled < -1 {
				scaled = -1
			}
			binary.LittleEndian.PutUint32(buf[i:], math.Float32bits(scaled))
		}
	}
}

// EncodeSamples converts 24-bit range int32 samples into the given wire format
func EncodeSamples(samples []int32, format SampleFormat) []byte {
	switch format {
	case FormatFloat32LE:
		out := make([]byte, len(samples)*4)
		for i, s := range samples {
			f := float32(s) / float32(Max24Bit+1)
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
		}
		return out
	default:
		out := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(SampleToInt16(s)))
		}
		return out
	}
}
