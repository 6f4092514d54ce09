// Package offsetdelay implements the legacy offset-delay alignment
// policy: a single scalar shift anchored at the video's start.
//
// If the audio starts after the video, the audio is delayed by the
// difference; otherwise its head is trimmed by it. End timestamps are
// never consulted, so when the audio is shorter than the video (or
// starts after it ends) the output silently contains trailing video
// with no corresponding audio. That is a correctness defect kept only
// for compatibility with recordings processed by the old tool; prefer
// the overlap policy.
package offsetdelay

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
	offset := audio.Start - video.Start

	plan := align.Plan{
		SyncStart: video.Start,
		SyncEnd:   video.End,
	}
	if offset >= 0 {
		plan.AudioDelay = offset
		logger.Infof(ctx, "delaying the audio by %.3fs", offset)
	} else {
		plan.AudioTrim = -offset
		logger.Infof(ctx, "trimming %.3fs from the head of the audio", -offset)
	}
	return plan, nil
}
