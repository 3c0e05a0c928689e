package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inscenium-media/scene.render/internal/render"
)

func timelineRecords(placementID string, n int) []render.DecisionRecord {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	recs := make([]render.DecisionRecord, n)
	for i := range recs {
		recs[i] = render.DecisionRecord{
			PlacementID: placementID,
			EpochTime:   base.Add(time.Duration(i) * time.Second),
			State:       "full",
			Opacity:     1.0,
			FinalPRS:    85 + float64(i%5),
		}
	}
	return recs
}

func TestQualityBucket(t *testing.T) {
	t.Parallel()

	assert.Equal(t, BucketHigh, QualityBucket(80))
	assert.Equal(t, BucketHigh, QualityBucket(95.5))
	assert.Equal(t, BucketMedium, QualityBucket(79.999))
	assert.Equal(t, BucketMedium, QualityBucket(50))
	assert.Equal(t, BucketLow, QualityBucket(49.999))
	assert.Equal(t, BucketLow, QualityBucket(0))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	recs := []render.DecisionRecord{
		{State: "full", FinalPRS: 90},
		{State: "degraded", FinalPRS: 72},
		{State: "suppress", FinalPRS: 30},
		{State: "full", FinalPRS: 84},
	}
	s := Summarize(recs)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.High)
	assert.Equal(t, 1, s.Medium)
	assert.Equal(t, 1, s.Low)
	assert.Equal(t, 2, s.States["full"])
	assert.Equal(t, 1, s.States["degraded"])
	assert.Equal(t, 1, s.States["suppress"])
	assert.InDelta(t, 69.0, s.MeanPRS, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil)
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0.0, s.MeanPRS)
}

func TestGenerateWritesPlots(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "plots")
	tp := NewTimelinePlotter(dir)

	prsFile, opacityFile, err := tp.Generate("pl-001", timelineRecords("pl-001", 10))
	require.NoError(t, err)

	for _, f := range []string{prsFile, opacityFile} {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
	assert.Equal(t, filepath.Join(dir, "prs-pl-001.png"), prsFile)
	assert.Equal(t, filepath.Join(dir, "opacity-pl-001.png"), opacityFile)
}

func TestGenerateNoRecords(t *testing.T) {
	t.Parallel()

	tp := NewTimelinePlotter(t.TempDir())
	_, _, err := tp.Generate("pl-404", nil)
	assert.Error(t, err)
}
