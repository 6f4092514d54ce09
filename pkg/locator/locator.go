// Package locator selects the audio and the camera stream out of the
// list of streams parsed from a log container.
//
// All heuristics are first-match-wins in the order the streams appear
// in the file. This is deliberately simple and ambiguous when multiple
// cameras were recorded; callers that know better pass an explicit
// stream name to ByName instead.
package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avsync/pkg/xdf"
)

// The stream type value an audio stream declares (case-sensitive) and
// the name prefix a camera stream is expected to carry.
const (
	AudioStreamType    = "Audio"
	CameraStreamPrefix = "Cam"
)

// ByName returns the first stream whose name equals the given name.
func ByName(streams []*xdf.Stream, name string) (*xdf.Stream, error) {
	for _, stream := range streams {
		if stream.Name == name {
			return stream, nil
		}
	}
	return nil, StreamNotFoundError{Name: name}
}

// Audio returns the first stream whose declared type is "Audio".
// Streams without a type field never match.
func Audio(ctx context.Context, streams []*xdf.Stream) (*xdf.Stream, error) {
	for _, stream := range streams {
		if stream.Type == AudioStreamType {
			logger.Infof(ctx, "using the audio stream with name: '%s'", stream.Name)
			return stream, nil
		}
	}
	return nil, NoAudioStreamError{}
}

// Camera returns the first stream whose name starts with "Cam".
func Camera(ctx context.Context, streams []*xdf.Stream) (*xdf.Stream, error) {
	for _, stream := range streams {
		if strings.HasPrefix(stream.Name, CameraStreamPrefix) {
			logger.Infof(ctx, "using the camera stream with name: '%s'", stream.Name)
			return stream, nil
		}
	}
	return nil, NoCameraStreamError{}
}

// StreamNotFoundError means no stream carries the requested name.
type StreamNotFoundError struct {
	Name string
}

func (e StreamNotFoundError) Error() string {
	return fmt.Sprintf("stream '%s' not found in the log container", e.Name)
}

// NoAudioStreamError means no stream declares the type "Audio".
type NoAudioStreamError struct{}

func (e NoAudioStreamError) Error() string {
	return fmt.Sprintf("no stream with type '%s' found in the log container", AudioStreamType)
}

// NoCameraStreamError means no stream name starts with "Cam".
type NoCameraStreamError struct{}

func (e NoCameraStreamError) Error() string {
	return fmt.Sprintf("no stream with a name starting with '%s' found in the log container", CameraStreamPrefix)
}
