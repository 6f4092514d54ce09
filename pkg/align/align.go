package align

import (
	"context"
	"fmt"
)

// Range is the time span of one stream in the recording's shared clock
// domain: the timestamps of its first and its last sample.
type Range struct {
	Start float64
	End   float64
}

func (r Range) Duration() float64 {
	return r.End - r.Start
}

// Plan describes how the two inputs have to be cut to line up at
// output time zero.
//
// All values are seconds. VideoTrim and AudioTrim are cut from the
// head of the respective input; AudioDelay is silence prepended to the
// audio instead (the two are mutually exclusive, a policy sets one or
// the other). Duration bounds the output length; zero means the policy
// does not bound it.
type Plan struct {
	SyncStart  float64
	SyncEnd    float64
	VideoTrim  float64
	AudioTrim  float64
	AudioDelay float64
	Duration   float64
}

// Aligner computes the cut plan from the two streams' time ranges.
// Implementations are pure functions of the four timestamps.
type Aligner interface {
	Align(ctx context.Context, video Range, audio Range) (Plan, error)
}

// NoOverlapError means the two streams share no time range, so there
// is nothing that could be synchronized.
type NoOverlapError struct {
	Video Range
	Audio Range
}

func (e NoOverlapError) Error() string {
	return fmt.Sprintf(
		"no overlapping time window between video [%.3f, %.3f] and audio [%.3f, %.3f]",
		e.Video.Start, e.Video.End, e.Audio.Start, e.Audio.End,
	)
}

/* for easier copy&paste:

func () Align(
	ctx context.Context,
	video align.Range,
	audio align.Range,
) (align.Plan, error) {
}

*/
