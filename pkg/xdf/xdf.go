// Package xdf implements a reader for the XDF (Extensible Data Format)
// multi-stream recording container.
//
// An XDF file bundles independently captured data channels (audio, video
// frame timestamps, sensor data) under one shared clock. Each stream
// carries an XML header describing its name, type, channel layout and
// nominal sampling rate, followed by sample chunks with optional
// per-sample timestamps. Only the subset of the format required for
// numeric streams is implemented; string-valued streams are skipped
// while parsing (their bytes are consumed, their values discarded).
package xdf

import (
	"fmt"
)

// ChannelFormat is the on-disk encoding of one sample value.
type ChannelFormat string

const (
	ChannelFormatInt8    ChannelFormat = "int8"
	ChannelFormatInt16   ChannelFormat = "int16"
	ChannelFormatInt32   ChannelFormat = "int32"
	ChannelFormatInt64   ChannelFormat = "int64"
	ChannelFormatFloat32 ChannelFormat = "float32"
	ChannelFormatFloat64 ChannelFormat = "double64"
	ChannelFormatString  ChannelFormat = "string"
)

// Size returns the amount of bytes one value occupies, or 0 for
// variable-length (string) values.
func (f ChannelFormat) Size() int {
	switch f {
	case ChannelFormatInt8:
		return 1
	case ChannelFormatInt16:
		return 2
	case ChannelFormatInt32, ChannelFormatFloat32:
		return 4
	case ChannelFormatInt64, ChannelFormatFloat64:
		return 8
	case ChannelFormatString:
		return 0
	}
	return 0
}

// IsFloat reports whether the format stores floating-point values
// (as opposed to raw integer PCM).
func (f ChannelFormat) IsFloat() bool {
	return f == ChannelFormatFloat32 || f == ChannelFormatFloat64
}

// ClockOffset is one clock synchronization measurement: the estimated
// difference between the stream's local clock and the recorder's clock
// at the given collection time.
type ClockOffset struct {
	CollectionTime float64
	Offset         float64
}

// Stream is one channel of timestamped sample data from an XDF file.
//
// Name and Type come from the stream's XML header; both are empty when
// the header omits them. NominalSRate is the declared sampling rate, a
// hint rather than a guarantee. Samples holds one row per frame,
// Timestamps one value per frame in the file's shared clock domain.
type Stream struct {
	ID           uint32
	Name         string
	Type         string
	ChannelCount int
	NominalSRate float64
	Format       ChannelFormat
	Samples      [][]float64
	Timestamps   []float64
	ClockOffsets []ClockOffset
}

// Start returns the timestamp of the first sample frame.
func (s *Stream) Start() float64 {
	if len(s.Timestamps) == 0 {
		return 0
	}
	return s.Timestamps[0]
}

// End returns the timestamp of the last sample frame.
func (s *Stream) End() float64 {
	if len(s.Timestamps) == 0 {
		return 0
	}
	return s.Timestamps[len(s.Timestamps)-1]
}

// Validate checks the invariants the rest of the pipeline relies on:
// at least one sample frame, one timestamp per frame, and timestamps
// in ascending order.
func (s *Stream) Validate() error {
	if len(s.Samples) == 0 {
		return MalformedStreamError{Name: s.Name, Reason: "stream contains no samples"}
	}
	if len(s.Timestamps) != len(s.Samples) {
		return MalformedStreamError{
			Name:   s.Name,
			Reason: fmt.Sprintf("got %d timestamps for %d sample frames", len(s.Timestamps), len(s.Samples)),
		}
	}
	for i := 1; i < len(s.Timestamps); i++ {
		if s.Timestamps[i] < s.Timestamps[i-1] {
			return MalformedStreamError{
				Name:   s.Name,
				Reason: fmt.Sprintf("timestamps are not in ascending order at frame %d", i),
			}
		}
	}
	return nil
}

// MalformedStreamError means a stream violates the container's own
// invariants and cannot be used for alignment.
type MalformedStreamError struct {
	Name   string
	Reason string
}

func (e MalformedStreamError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("malformed stream: %s", e.Reason)
	}
	return fmt.Sprintf("malformed stream '%s': %s", e.Name, e.Reason)
}
