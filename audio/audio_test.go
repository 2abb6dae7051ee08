package audio

import (
	"bytes"
	"io"
	"math"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeWAV(t *testing.T, samples []int, channels, sampleRate int) []byte {
	t.Helper()

	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, channels, 1)
	err := enc.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	})
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	data, err := io.ReadAll(ws.Reader())
	require.NoError(t, err)
	return data
}

func TestDecodeWAV(t *testing.T) {
	data := encodeWAV(t, []int{0, 16384, -16384, 0}, 1, 16000)

	clip, err := DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 1, clip.Channels)
	assert.Equal(t, 16000, clip.SampleRate)
	require.Len(t, clip.Samples, 4)
	assert.InDelta(t, 0.5, clip.Samples[1], 1e-4)
	assert.InDelta(t, -0.5, clip.Samples[2], 1e-4)
}

func TestDecodeWAVMalformed(t *testing.T) {
	_, err := DecodeWAV([]byte("garbage"))
	assert.Error(t, err)

	_, err = DecodeWAV(nil)
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestDownmixAveragesChannels(t *testing.T) {
	clip := &Clip{
		// Interleaved stereo: left [1.0, -1.0], right [0.0, 0.0].
		Samples:    []float32{1.0, 0.0, -1.0, 0.0},
		Channels:   2,
		SampleRate: 16000,
	}

	mono := Downmix(clip)
	assert.Equal(t, []float32{0.5, -0.5}, mono)
}

func TestDownmixMonoPassthrough(t *testing.T) {
	clip := &Clip{Samples: []float32{0.1, 0.2}, Channels: 1, SampleRate: 16000}
	assert.Equal(t, clip.Samples, Downmix(clip))
}

func TestResample(t *testing.T) {
	// Constant signal survives any rate conversion.
	in := make([]float32, 100)
	for i := range in {
		in[i] = 0.25
	}

	out := Resample(in, 48000, 16000)
	assert.InDelta(t, 100.0/3.0, float64(len(out)), 1.0)
	for _, s := range out {
		assert.InDelta(t, 0.25, s, 1e-6)
	}
}

func TestResampleIdentity(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	assert.Equal(t, in, Resample(in, 16000, 16000))
}

func TestResampleInterpolates(t *testing.T) {
	// Upsampling a ramp stays monotonic.
	in := []float32{0, 1}
	out := Resample(in, 1, 4)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i], out[i-1])
	}
}

func TestPrepare(t *testing.T) {
	// Stereo at 32 kHz: decoded, downmixed and resampled to the model rate.
	samples := make([]int, 3200*2)
	for i := range samples {
		samples[i] = int(8192 * math.Sin(float64(i)/50))
	}
	data := encodeWAV(t, samples, 2, 32000)

	mono, err := Prepare(data)
	require.NoError(t, err)
	assert.InDelta(t, 1600, len(mono), 2)
}

func TestPrepareRejectsGarbage(t *testing.T) {
	_, err := Prepare(bytes.Repeat([]byte{0xff}, 64))
	assert.Error(t, err)
}
