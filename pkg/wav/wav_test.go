package wav

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avsync/pkg/xdf"
)

func readPCM16File(t *testing.T, path string) (sampleRate int, channels int, samples []int16) {
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), riffHeaderSize)

	assert.Equal(t, "RIFF", string(raw[0:4]))
	assert.Equal(t, "WAVE", string(raw[8:12]))
	assert.Equal(t, "fmt ", string(raw[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[20:22])) // PCM
	assert.Equal(t, "data", string(raw[36:40]))

	channels = int(binary.LittleEndian.Uint16(raw[22:24]))
	sampleRate = int(binary.LittleEndian.Uint32(raw[24:28]))
	dataSize := int(binary.LittleEndian.Uint32(raw[40:44]))
	require.Equal(t, len(raw)-riffHeaderSize, dataSize)

	for pos := riffHeaderSize; pos+1 < len(raw); pos += 2 {
		samples = append(samples, int16(binary.LittleEndian.Uint16(raw[pos:pos+2])))
	}
	return
}

func TestMaterialize(t *testing.T) {
	ctx := context.Background()

	t.Run("normalized float samples are rescaled to int16", func(t *testing.T) {
		stream := &xdf.Stream{
			Name:       "Mic",
			Format:     xdf.ChannelFormatFloat32,
			Samples:    [][]float64{{0.5}, {-0.25}, {1.0}, {-1.0}},
			Timestamps: []float64{2.0, 2.25, 2.5, 2.75},
		}
		asset, err := Materialize(ctx, stream, 4, 0)
		require.NoError(t, err)
		defer os.Remove(asset.Path)

		assert.Equal(t, 4, asset.SampleRate)
		assert.Equal(t, 2.0, asset.Start)

		sampleRate, channels, samples := readPCM16File(t, asset.Path)
		assert.Equal(t, 4, sampleRate)
		assert.Equal(t, 1, channels)
		assert.Equal(t, []int16{16384, -8192, 32767, -32767}, samples)
	})

	t.Run("integer samples are written as-is with clamping", func(t *testing.T) {
		stream := &xdf.Stream{
			Name:       "Mic",
			Format:     xdf.ChannelFormatInt16,
			Samples:    [][]float64{{1000}, {40000}, {-40000}},
			Timestamps: []float64{0, 1, 2},
		}
		asset, err := Materialize(ctx, stream, 8000, 0)
		require.NoError(t, err)
		defer os.Remove(asset.Path)

		_, _, samples := readPCM16File(t, asset.Path)
		assert.Equal(t, []int16{1000, 32767, -32768}, samples)
	})

	t.Run("float samples above magnitude 1 are not rescaled", func(t *testing.T) {
		stream := &xdf.Stream{
			Name:       "Mic",
			Format:     xdf.ChannelFormatFloat64,
			Samples:    [][]float64{{0.5}, {2.0}},
			Timestamps: []float64{0, 1},
		}
		asset, err := Materialize(ctx, stream, 8000, 0)
		require.NoError(t, err)
		defer os.Remove(asset.Path)

		_, _, samples := readPCM16File(t, asset.Path)
		assert.Equal(t, []int16{1, 2}, samples)
	})

	t.Run("multichannel frames are interleaved", func(t *testing.T) {
		stream := &xdf.Stream{
			Name:       "Mic",
			Format:     xdf.ChannelFormatFloat32,
			Samples:    [][]float64{{0.5, -0.5}, {0.25, -0.25}},
			Timestamps: []float64{0, 1},
		}
		asset, err := Materialize(ctx, stream, 8000, 0)
		require.NoError(t, err)
		defer os.Remove(asset.Path)

		_, channels, samples := readPCM16File(t, asset.Path)
		assert.Equal(t, 2, channels)
		assert.Equal(t, []int16{16384, -16384, 8192, -8192}, samples)
	})

	t.Run("a target rate resamples the payload", func(t *testing.T) {
		// 160 frames of a constant signal: 20ms at 8kHz.
		frames := make([][]float64, 160)
		timestamps := make([]float64, 160)
		for i := range frames {
			frames[i] = []float64{0.25}
			timestamps[i] = float64(i) / 8000
		}
		stream := &xdf.Stream{
			Name:       "Mic",
			Format:     xdf.ChannelFormatFloat32,
			Samples:    frames,
			Timestamps: timestamps,
		}
		asset, err := Materialize(ctx, stream, 8000, 16000)
		require.NoError(t, err)
		defer os.Remove(asset.Path)

		assert.Equal(t, 16000, asset.SampleRate)
		sampleRate, channels, samples := readPCM16File(t, asset.Path)
		assert.Equal(t, 16000, sampleRate)
		assert.Equal(t, 1, channels)
		// Doubling the rate keeps the duration: still 20ms of audio.
		assert.Len(t, samples, 320)
		// Interpolating a constant signal keeps its level.
		assert.InDelta(t, 8192, float64(samples[100]), 2)
	})

	t.Run("an empty stream fails with AudioWriteError", func(t *testing.T) {
		stream := &xdf.Stream{Name: "Mic", Format: xdf.ChannelFormatFloat32}
		_, err := Materialize(ctx, stream, 8000, 0)
		var writeErr AudioWriteError
		assert.True(t, errors.As(err, &writeErr))
	})

	t.Run("an invalid sample rate fails with AudioWriteError", func(t *testing.T) {
		stream := &xdf.Stream{
			Name:       "Mic",
			Format:     xdf.ChannelFormatFloat32,
			Samples:    [][]float64{{0.5}},
			Timestamps: []float64{0},
		}
		_, err := Materialize(ctx, stream, 0, 0)
		var writeErr AudioWriteError
		assert.True(t, errors.As(err, &writeErr))
	})
}

func TestEncode(t *testing.T) {
	t.Run("the payload has to be a multiple of the frame size", func(t *testing.T) {
		err := Encode(io.Discard, []byte{1, 2, 3}, 8000, 1)
		assert.Error(t, err)
	})
}
