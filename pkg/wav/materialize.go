// Package wav converts an in-memory audio stream from the log
// container into a standalone decodable asset: a 16-bit PCM WAV file
// in a temporary location.
//
// The asset outlives the call on purpose: its path is handed to the
// external encoder, and nothing here deletes it afterwards. Cleaning
// up is the caller's (or the OS's) responsibility.
package wav

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/winlinvip/go-aresample/aresample"
	"github.com/xaionaro-go/avsync/pkg/xdf"
	"github.com/xaionaro-go/datacounter"
)

// Asset is a materialized audio file plus the metadata the alignment
// step needs.
type Asset struct {
	Path       string
	SampleRate int
	Start      float64
}

// Materialize writes the stream's samples to a fresh temporary WAV
// file at the given sample rate and returns the resulting asset.
//
// Floating-point sample data with a peak magnitude within [-1, 1] is
// treated as normalized audio and rescaled to the int16 range;
// anything else is cast (and clamped) to int16 as-is. When targetRate
// is non-zero and differs from sampleRate, the PCM payload is
// resampled to targetRate before writing.
func Materialize(
	ctx context.Context,
	stream *xdf.Stream,
	sampleRate int,
	targetRate int,
) (Asset, error) {
	asset, err := materialize(ctx, stream, sampleRate, targetRate)
	if err != nil {
		return Asset{}, AudioWriteError{Err: err}
	}
	return asset, nil
}

func materialize(
	ctx context.Context,
	stream *xdf.Stream,
	sampleRate int,
	targetRate int,
) (Asset, error) {
	if sampleRate <= 0 {
		return Asset{}, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if len(stream.Samples) == 0 {
		return Asset{}, fmt.Errorf("the stream contains no samples")
	}
	channels := len(stream.Samples[0])
	if channels == 0 {
		return Asset{}, fmt.Errorf("the stream contains no numeric channels")
	}

	pcm := toPCM16(stream)

	if targetRate != 0 && targetRate != sampleRate {
		logger.Debugf(ctx, "resampling the audio from %dHz to %dHz", sampleRate, targetRate)
		resampler, err := aresample.NewPcmS16leResampler(channels, sampleRate, targetRate)
		if err != nil {
			return Asset{}, fmt.Errorf("unable to initialize a resampler from %dHz to %dHz: %w", sampleRate, targetRate, err)
		}
		pcm, err = resampler.Resample(pcm)
		if err != nil {
			return Asset{}, fmt.Errorf("unable to resample the audio from %dHz to %dHz: %w", sampleRate, targetRate, err)
		}
		sampleRate = targetRate
	}

	f, err := os.CreateTemp("", "avsync-*.wav")
	if err != nil {
		return Asset{}, fmt.Errorf("unable to create a temporary file: %w", err)
	}
	defer f.Close()

	wc := datacounter.NewWriterCounter(f)
	if err := Encode(wc, pcm, sampleRate, channels); err != nil {
		return Asset{}, fmt.Errorf("unable to encode '%s': %w", f.Name(), err)
	}
	logger.Debugf(ctx, "written %d bytes to '%s'", wc.Count(), f.Name())

	return Asset{
		Path:       f.Name(),
		SampleRate: sampleRate,
		Start:      stream.Start(),
	}, nil
}

// toPCM16 converts the stream's sample matrix to interleaved s16le.
func toPCM16(stream *xdf.Stream) []byte {
	normalized := stream.Format.IsFloat() && peakMagnitude(stream.Samples) <= 1.0

	channels := len(stream.Samples[0])
	pcm := make([]byte, 0, len(stream.Samples)*channels*bytesPerSample)
	for _, frame := range stream.Samples {
		for _, v := range frame {
			var sample int16
			if normalized {
				sample = int16(math.Round(v * 32767))
			} else {
				sample = clampToInt16(v)
			}
			pcm = append(pcm, byte(sample), byte(sample>>8))
		}
	}
	return pcm
}

func peakMagnitude(frames [][]float64) float64 {
	peak := 0.0
	for _, frame := range frames {
		for _, v := range frame {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	return peak
}

func clampToInt16(v float64) int16 {
	r := math.Round(v)
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}

// AudioWriteError means the temporary audio asset could not be
// produced; the original cause is preserved.
type AudioWriteError struct {
	Err error
}

func (e AudioWriteError) Error() string {
	return fmt.Sprintf("unable to write the audio asset: %v", e.Err)
}

func (e AudioWriteError) Unwrap() error {
	return e.Err
}
