// Package overlap implements the overlap-trim alignment policy.
//
// The output is restricted to the time window present in both streams:
// everything before max(starts) and after min(ends) is discarded, and
// both trimmed streams are rebased to start at zero. This is the only
// policy that keeps audio and video time-accurate for the entire output
// duration, at the cost of dropping the non-overlapping portions.
package overlap

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avsync/pkg/align"
)

type Aligner struct{}

var _ align.Aligner = (*Aligner)(nil)

func New() *Aligner {
	return &Aligner{}
}

func (a *Aligner) Align(
	ctx context.Context,
	video align.Range,
	audio align.Range,
) (align.Plan, error) {
	syncStart := max(video.Start, audio.Start)
	syncEnd := min(video.End, audio.End)
	if syncEnd <= syncStart {
		return align.Plan{}, align.NoOverlapError{Video: video, Audio: audio}
	}

	plan := align.Plan{
		SyncStart: syncStart,
		SyncEnd:   syncEnd,
		VideoTrim: syncStart - video.Start,
		AudioTrim: syncStart - audio.Start,
		Duration:  syncEnd - syncStart,
	}
	logger.Infof(ctx, "overlap from %.3fs to %.3fs (%.3fs)", syncStart, syncEnd, plan.Duration)
	return plan, nil
}
