package offsetdelay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xaionaro-go/avsync/pkg/align"
)

func TestAligner_Align(t *testing.T) {
	ctx := context.Background()
	a := New()

	t.Run("audio starts after video: delayed", func(t *testing.T) {
		plan, err := a.Align(ctx, align.Range{Start: 0, End: 60}, align.Range{Start: 1.5, End: 50})
		assert.NoError(t, err)
		assert.Equal(t, 1.5, plan.AudioDelay)
		assert.Equal(t, 0.0, plan.AudioTrim)
		assert.Equal(t, 0.0, plan.VideoTrim)
		assert.Equal(t, 0.0, plan.Duration)
	})

	t.Run("audio starts before video: trimmed", func(t *testing.T) {
		plan, err := a.Align(ctx, align.Range{Start: 2.0, End: 60}, align.Range{Start: 0.5, End: 50})
		assert.NoError(t, err)
		assert.Equal(t, 1.5, plan.AudioTrim)
		assert.Equal(t, 0.0, plan.AudioDelay)
		assert.Equal(t, 0.0, plan.VideoTrim)
	})

	t.Run("end timestamps are ignored", func(t *testing.T) {
		// The known defect of this policy: disjoint ranges still
		// produce a plan instead of an error.
		plan, err := a.Align(ctx, align.Range{Start: 0, End: 5}, align.Range{Start: 10, End: 20})
		assert.NoError(t, err)
		assert.Equal(t, 10.0, plan.AudioDelay)
	})
}
