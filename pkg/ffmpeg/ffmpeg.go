// Package ffmpeg executes the external encode that applies a computed
// alignment plan: the video stream is copied without re-encoding, the
// audio is trimmed or delayed per the plan and re-encoded to AAC, and
// the output is truncated to the shorter of the two inputs as a
// defensive floor against timestamp rounding.
//
// Any existing file at the output path is overwritten without
// prompting, and no partial-output cleanup happens on failure.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avsync/pkg/align"
	"github.com/xaionaro-go/observability"
)

const DefaultBinaryPath = "ffmpeg"

type Encoder struct {
	// BinaryPath is the ffmpeg executable to run; looked up on PATH
	// when it is not absolute. Empty means DefaultBinaryPath.
	BinaryPath string
}

func NewEncoder(binaryPath string) *Encoder {
	if binaryPath == "" {
		binaryPath = DefaultBinaryPath
	}
	return &Encoder{BinaryPath: binaryPath}
}

// Input is everything one encode invocation needs.
type Input struct {
	VideoPath  string
	AudioPath  string
	OutputPath string
	Plan       align.Plan
}

// Encode blocks until the external process finishes. A non-zero exit
// is returned as an EncodeError carrying the process's stderr.
func (e *Encoder) Encode(ctx context.Context, in Input) error {
	args := BuildArgs(in)
	logger.Debugf(ctx, "running: %s %s", e.BinaryPath, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.BinaryPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return EncodeError{Args: args, Err: fmt.Errorf("unable to open the stderr pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return EncodeError{Args: args, Err: fmt.Errorf("unable to start '%s': %w", e.BinaryPath, err)}
	}

	var stderrLines []string
	stderrDone := make(chan struct{})
	observability.Go(ctx, func(ctx context.Context) {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			stderrLines = append(stderrLines, line)
			logger.Debugf(ctx, "ffmpeg: %s", line)
		}
	})

	// The pipe has to be fully drained before Wait, otherwise Wait
	// closes it and whatever stderr was still buffered is lost.
	<-stderrDone
	err = cmd.Wait()
	if err != nil {
		return EncodeError{
			Args:   args,
			Stderr: strings.Join(stderrLines, "\n"),
			Err:    err,
		}
	}
	return nil
}

// BuildArgs constructs the ffmpeg command line for the given input.
//
// Head trims are applied as input seeking (`-ss` before `-i`), which
// also rebases the stream's presentation timestamps to zero; an audio
// delay becomes an adelay filter on all channels.
func BuildArgs(in Input) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	if in.Plan.VideoTrim > 0 {
		args = append(args, "-ss", formatSeconds(in.Plan.VideoTrim))
	}
	args = append(args, "-i", in.VideoPath)

	if in.Plan.AudioTrim > 0 {
		args = append(args, "-ss", formatSeconds(in.Plan.AudioTrim))
	}
	args = append(args, "-i", in.AudioPath)

	args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	args = append(args, "-c:v", "copy")
	args = append(args, "-c:a", "aac", "-b:a", "192k")
	if in.Plan.AudioDelay > 0 {
		args = append(args, "-filter:a", fmt.Sprintf("adelay=%d:all=1", millis(in.Plan.AudioDelay)))
	}
	if in.Plan.Duration > 0 {
		args = append(args, "-t", formatSeconds(in.Plan.Duration))
	}
	args = append(args, "-avoid_negative_ts", "make_zero", "-shortest")
	args = append(args, in.OutputPath)
	return args
}

// DeriveOutputPath inserts the suffix between the video path's base
// name and its extension: "a/b.mp4" + "_synced" -> "a/b_synced.mp4".
func DeriveOutputPath(videoPath string, suffix string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + suffix + ext
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

func millis(seconds float64) int {
	return int(seconds*1000 + 0.5)
}

// EncodeError means the external encode process failed; the original
// cause and the process's stderr are preserved.
type EncodeError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e EncodeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("the encode process failed: %v", e.Err)
	}
	return fmt.Sprintf("the encode process failed: %v: %s", e.Err, e.Stderr)
}

func (e EncodeError) Unwrap() error {
	return e.Err
}
