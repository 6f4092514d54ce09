// Package merge wires the whole pipeline together: load the log
// container, locate the audio and the camera stream, materialize the
// audio, compute the alignment plan and run the external encode.
//
// Everything is sequential and blocking; one call produces one output
// file. No failure is retried, every error aborts the merge and is
// propagated with its cause preserved.
package merge

import (
	"context"
	"fmt"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/avsync/pkg/align"
	"github.com/xaionaro-go/avsync/pkg/align/implementations/offsetdelay"
	"github.com/xaionaro-go/avsync/pkg/align/implementations/overlap"
	"github.com/xaionaro-go/avsync/pkg/ffmpeg"
	"github.com/xaionaro-go/avsync/pkg/locator"
	"github.com/xaionaro-go/avsync/pkg/wav"
	"github.com/xaionaro-go/avsync/pkg/xdf"
)

// Policy selects the alignment strategy.
type Policy string

const (
	// PolicyOverlap restricts the output to the time window present
	// in both streams. The default, and the only policy that keeps
	// the whole output time-accurate.
	PolicyOverlap = Policy("overlap")
	// PolicyOffsetDelay shifts the audio by a scalar offset anchored
	// at the video's start, ignoring end timestamps. Kept for
	// compatibility with the old tool; see package offsetdelay.
	PolicyOffsetDelay = Policy("offset-delay")
)

func (p Policy) Aligner() (align.Aligner, error) {
	switch p {
	case PolicyOverlap:
		return overlap.New(), nil
	case PolicyOffsetDelay:
		return offsetdelay.New(), nil
	}
	return nil, fmt.Errorf("unknown alignment policy: '%s'", p)
}

// OutputSuffix is appended to the video's base name when no explicit
// output path is configured.
func (p Policy) OutputSuffix() string {
	if p == PolicyOffsetDelay {
		return "_merged"
	}
	return "_synced"
}

// Config is one merge invocation.
type Config struct {
	// VideoPath is the video container file; consumed as an opaque
	// byte stream by the external encoder.
	VideoPath string
	// LogPath is the XDF file holding the audio stream and the
	// camera stream's timestamps.
	LogPath string
	// VideoStreamName overrides the "Cam" name-prefix heuristic.
	VideoStreamName string
	// AudioStreamName overrides the type=="Audio" heuristic.
	AudioStreamName string
	// Policy defaults to PolicyOverlap when empty.
	Policy Policy
	// OutputPath defaults to the video path with the policy's suffix
	// inserted before the extension.
	OutputPath string
	// FFmpegPath defaults to "ffmpeg" on PATH.
	FFmpegPath string
	// AudioSampleRate, when non-zero, resamples the materialized
	// audio to this rate.
	AudioSampleRate int
}

func (cfg Config) Validate() error {
	var mErr *multierror.Error
	if cfg.VideoPath == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("the video path is not set"))
	}
	if cfg.LogPath == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("the log container path is not set"))
	}
	if cfg.Policy != "" {
		if _, err := cfg.Policy.Aligner(); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	if cfg.AudioSampleRate < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("invalid audio sample rate: %d", cfg.AudioSampleRate))
	}
	return mErr.ErrorOrNil()
}

// Merge synchronizes the video with the audio stream from the log
// container and returns the path of the written output file.
//
// The temporary WAV produced along the way is handed to the external
// encoder and deliberately not deleted afterwards.
func Merge(ctx context.Context, cfg Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid config: %w", err)
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyOverlap
	}
	aligner, err := policy.Aligner()
	if err != nil {
		return "", err
	}

	streams, err := xdf.Load(ctx, cfg.LogPath)
	if err != nil {
		return "", fmt.Errorf("unable to load the log container: %w", err)
	}

	videoStream, err := selectStream(ctx, streams, cfg.VideoStreamName, locator.Camera)
	if err != nil {
		return "", fmt.Errorf("unable to select the video stream: %w", err)
	}
	audioStream, err := selectStream(ctx, streams, cfg.AudioStreamName, locator.Audio)
	if err != nil {
		return "", fmt.Errorf("unable to select the audio stream: %w", err)
	}
	for _, stream := range []*xdf.Stream{videoStream, audioStream} {
		if err := stream.Validate(); err != nil {
			return "", err
		}
	}
	warnOnRateDeviation(ctx, audioStream)

	asset, err := wav.Materialize(ctx, audioStream, int(audioStream.NominalSRate), cfg.AudioSampleRate)
	if err != nil {
		return "", err
	}
	logger.Infof(ctx, "materialized the audio to '%s' (%dHz); the file is not deleted automatically", asset.Path, asset.SampleRate)

	plan, err := aligner.Align(
		ctx,
		align.Range{Start: videoStream.Start(), End: videoStream.End()},
		align.Range{Start: asset.Start, End: audioStream.End()},
	)
	if err != nil {
		return "", err
	}

	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = ffmpeg.DeriveOutputPath(cfg.VideoPath, policy.OutputSuffix())
	}

	encoder := ffmpeg.NewEncoder(cfg.FFmpegPath)
	err = encoder.Encode(ctx, ffmpeg.Input{
		VideoPath:  cfg.VideoPath,
		AudioPath:  asset.Path,
		OutputPath: outputPath,
		Plan:       plan,
	})
	if err != nil {
		return "", err
	}

	logger.Infof(ctx, "synchronized output written to: '%s'", outputPath)
	return outputPath, nil
}

func selectStream(
	ctx context.Context,
	streams []*xdf.Stream,
	explicitName string,
	heuristic func(context.Context, []*xdf.Stream) (*xdf.Stream, error),
) (*xdf.Stream, error) {
	if explicitName != "" {
		return locator.ByName(streams, explicitName)
	}
	return heuristic(ctx, streams)
}

// warnOnRateDeviation compares the declared nominal rate against the
// rate implied by the timestamps. The nominal rate is a hint, not a
// guarantee, so a mismatch is logged rather than treated as fatal.
func warnOnRateDeviation(ctx context.Context, stream *xdf.Stream) {
	if stream.NominalSRate <= 0 || len(stream.Timestamps) < 2 {
		return
	}
	span := stream.End() - stream.Start()
	if span <= 0 {
		return
	}
	effective := float64(len(stream.Timestamps)-1) / span
	deviation := math.Abs(effective-stream.NominalSRate) / stream.NominalSRate
	if deviation > 0.01 {
		logger.Warnf(ctx, "stream '%s' declares %.1fHz but its timestamps imply %.1fHz",
			stream.Name, stream.NominalSRate, effective)
	}
}
