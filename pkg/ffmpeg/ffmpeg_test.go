package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avsync/pkg/align"
)

func TestBuildArgs(t *testing.T) {
	t.Run("overlap plan", func(t *testing.T) {
		args := BuildArgs(Input{
			VideoPath:  "in.mp4",
			AudioPath:  "in.wav",
			OutputPath: "out.mp4",
			Plan: align.Plan{
				VideoTrim: 2,
				AudioTrim: 0,
				Duration:  6,
			},
		})
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-ss 2.000000 -i in.mp4")
		assert.Contains(t, joined, "-i in.wav")
		assert.NotContains(t, joined, "-ss 0")
		assert.Contains(t, joined, "-c:v copy")
		assert.Contains(t, joined, "-c:a aac")
		assert.Contains(t, joined, "-t 6.000000")
		assert.Contains(t, joined, "-shortest")
		assert.Contains(t, args, "-y")
		assert.Equal(t, "out.mp4", args[len(args)-1])
	})

	t.Run("audio trim applies to the audio input only", func(t *testing.T) {
		args := BuildArgs(Input{
			VideoPath:  "in.mp4",
			AudioPath:  "in.wav",
			OutputPath: "out.mp4",
			Plan: align.Plan{
				AudioTrim: 5,
				Duration:  5,
			},
		})
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-i in.mp4 -ss 5.000000 -i in.wav")
	})

	t.Run("audio delay becomes an adelay filter in milliseconds", func(t *testing.T) {
		args := BuildArgs(Input{
			VideoPath:  "in.mp4",
			AudioPath:  "in.wav",
			OutputPath: "out.mp4",
			Plan: align.Plan{
				AudioDelay: 1.5,
			},
		})
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-filter:a adelay=1500:all=1")
		assert.NotContains(t, joined, "-t ")
	})
}

func fakeEncoderBinary(t *testing.T, script string) *Encoder {
	if runtime.GOOS == "windows" {
		t.Skip("requires a shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return NewEncoder(path)
}

func TestEncoderEncode(t *testing.T) {
	ctx := context.Background()
	input := Input{VideoPath: "in.mp4", AudioPath: "in.wav", OutputPath: "out.mp4"}

	t.Run("success", func(t *testing.T) {
		e := fakeEncoderBinary(t, "exit 0\n")
		assert.NoError(t, e.Encode(ctx, input))
	})

	t.Run("a failure preserves the whole stderr", func(t *testing.T) {
		e := fakeEncoderBinary(t, "echo 'in.wav: Invalid data found' >&2\nexit 1\n")
		err := e.Encode(ctx, input)
		var encodeErr EncodeError
		require.True(t, errors.As(err, &encodeErr))
		assert.Contains(t, encodeErr.Stderr, "in.wav: Invalid data found")
		assert.Contains(t, encodeErr.Error(), "in.wav: Invalid data found")
	})

	t.Run("a missing binary fails with EncodeError", func(t *testing.T) {
		e := NewEncoder(filepath.Join(t.TempDir(), "does-not-exist"))
		err := e.Encode(ctx, input)
		var encodeErr EncodeError
		assert.True(t, errors.As(err, &encodeErr))
	})
}

func TestDeriveOutputPath(t *testing.T) {
	assert.Equal(t, "session_synced.mp4", DeriveOutputPath("session.mp4", "_synced"))
	assert.Equal(t, "a/b/c_merged.mkv", DeriveOutputPath("a/b/c.mkv", "_merged"))
	assert.Equal(t, "noext_synced", DeriveOutputPath("noext", "_synced"))
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 1500, millis(1.5))
	assert.Equal(t, 0, millis(0))
	assert.Equal(t, 33, millis(0.0333))
}
