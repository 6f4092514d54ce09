package main

import (
	"context"
	"fmt"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avsync/pkg/merge"
)

func usage() {
	fmt.Fprintf(os.Stderr, "syntax: avsync [flags] <video.mp4> <recording.xdf> [video_stream_name] [audio_stream_name]\n")
	pflag.PrintDefaults()
}

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	policy := pflag.String("policy", string(merge.PolicyOverlap), "Alignment policy: 'overlap' or 'offset-delay'")
	outputPath := pflag.String("output", "", "Output file path (default: the video path with the policy's suffix)")
	ffmpegPath := pflag.String("ffmpeg", "", "Path to the ffmpeg binary (default: 'ffmpeg' on PATH)")
	audioRate := pflag.Int("audio-rate", 0, "Resample the extracted audio to this rate (default: keep the stream's nominal rate)")
	pflag.Usage = usage
	pflag.Parse()

	if pflag.NArg() < 2 || pflag.NArg() > 4 {
		usage()
		os.Exit(2)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	cfg := merge.Config{
		VideoPath:       pflag.Arg(0),
		LogPath:         pflag.Arg(1),
		VideoStreamName: pflag.Arg(2),
		AudioStreamName: pflag.Arg(3),
		Policy:          merge.Policy(*policy),
		OutputPath:      *outputPath,
		FFmpegPath:      *ffmpegPath,
		AudioSampleRate: *audioRate,
	}

	if _, err := merge.Merge(ctx, cfg); err != nil {
		logger.Errorf(ctx, "failed to merge the audio and the video: %v", err)
		belt.Flush(ctx)
		os.Exit(1)
	}
}
