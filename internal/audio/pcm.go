package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Format describes signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Duration returns the play time of n bytes in this format.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / (2 * f.Channels)
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Convert changes pcm from one format to another. Only mono and stereo are
// supported; stereo to mono averages the two channels.
func Convert(pcm []byte, from, to Format) ([]byte, error) {
	if from == to {
		return pcm, nil
	}
	if from.Channels < 1 || from.Channels > 2 || to.Channels < 1 || to.Channels > 2 {
		return nil, fmt.Errorf("unsupported channel conversion %d -> %d", from.Channels, to.Channels)
	}
	if from.SampleRate <= 0 || to.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d -> %d", from.SampleRate, to.SampleRate)
	}

	samples := decode(pcm)
	switch {
	case from.Channels == 2 && to.Channels == 1:
		samples = downmix(samples)
	case from.Channels == 1 && to.Channels == 2:
		samples = upmix(samples)
	}
	samples = resample(samples, to.Channels, from.SampleRate, to.SampleRate)
	return encode(samples), nil
}

func decode(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

func encode(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func downmix(stereo []int16) []int16 {
	out := make([]int16, len(stereo)/2)
	for i := range out {
		out[i] = int16((int32(stereo[2*i]) + int32(stereo[2*i+1])) / 2)
	}
	return out
}

func upmix(mono []int16) []int16 {
	out := make([]int16, 2*len(mono))
	for i, s := range mono {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

// resample converts interleaved samples by linear interpolation.
func resample(samples []int16, channels, from, to int) []int16 {
	if from == to || len(samples) == 0 {
		return samples
	}
	inFrames := len(samples) / channels
	outFrames := int(int64(inFrames) * int64(to) / int64(from))
	out := make([]int16, outFrames*channels)
	ratio := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)
		for c := 0; c < channels; c++ {
			a := float64(samples[j*channels+c])
			b := a
			if j+1 < inFrames {
				b = float64(samples[(j+1)*channels+c])
			}
			out[i*channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}
