// Package audio decodes uploaded audio into the single-channel float sample
// stream the model consumes.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

// ModelSampleRate is the sampling rate the speech encoder expects.
const ModelSampleRate = 16000

var ErrNoAudio = errors.New("no audio data")

// Clip holds decoded PCM audio as interleaved float32 samples in [-1,1].
type Clip struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// DecodeWAV decodes a WAV file into float32 samples.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, ErrNoAudio
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrNoAudio
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(math.Pow(2, float64(bitDepth-1)))

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / scale
	}

	return &Clip{
		Samples:    samples,
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// Downmix collapses a clip to mono by averaging channels per sample frame.
func Downmix(clip *Clip) []float32 {
	if clip.Channels <= 1 {
		return clip.Samples
	}

	frames := len(clip.Samples) / clip.Channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range clip.Channels {
			sum += clip.Samples[i*clip.Channels+c]
		}
		mono[i] = sum / float32(clip.Channels)
	}
	return mono
}

// Resample converts mono samples from one sampling rate to another by linear
// interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 {
		return samples
	}

	ratio := float64(from) / float64(to)
	n := int(float64(len(samples)) / ratio)
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		left := int(pos)
		if left >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(left))
		out[i] = samples[left]*(1-frac) + samples[left+1]*frac
	}
	return out
}

// Prepare runs the full input pipeline: WAV decode, downmix to mono, and
// resample to the model rate.
func Prepare(data []byte) ([]float32, error) {
	clip, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}

	mono := Downmix(clip)
	return Resample(mono, clip.SampleRate, ModelSampleRate), nil
}
