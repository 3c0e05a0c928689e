// Package report produces offline summaries of the decision audit stream:
// quality-bucket counts for packaging dashboards and PNG timelines of PRS
// and delivered opacity per placement.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/inscenium-media/scene.render/internal/render"
)

// Quality buckets follow the packager's tiers: high-quality placements are
// promoted to premium inventory, low-quality ones flagged for review.
const (
	BucketHigh   = "high"   // PRS >= 80
	BucketMedium = "medium" // 50 <= PRS < 80
	BucketLow    = "low"    // PRS < 50
)

// QualityBucket maps a final PRS onto its packaging tier.
func QualityBucket(finalPRS float64) string {
	switch {
	case finalPRS >= 80:
		return BucketHigh
	case finalPRS >= 50:
		return BucketMedium
	}
	return BucketLow
}

// Summary aggregates one batch of decision records.
type Summary struct {
	Total   int
	High    int
	Medium  int
	Low     int
	States  map[string]int
	MeanPRS float64
}

// Summarize folds records into bucket and state counts.
func Summarize(records []render.DecisionRecord) Summary {
	s := Summary{States: make(map[string]int)}
	var sum float64
	for _, rec := range records {
		s.Total++
		s.States[rec.State]++
		sum += rec.FinalPRS
		switch QualityBucket(rec.FinalPRS) {
		case BucketHigh:
			s.High++
		case BucketMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	if s.Total > 0 {
		s.MeanPRS = sum / float64(s.Total)
	}
	return s
}

// TimelinePlotter writes per-placement timeline charts to an output
// directory.
type TimelinePlotter struct {
	outputDir string
}

func NewTimelinePlotter(outputDir string) *TimelinePlotter {
	return &TimelinePlotter{outputDir: outputDir}
}

// Generate renders two PNGs for one placement: final PRS over time and
// delivered opacity over time. Records must be in epoch order. Returns the
// paths of the written files.
func (tp *TimelinePlotter) Generate(placementID string, records []render.DecisionRecord) (prsFile, opacityFile string, err error) {
	if len(records) == 0 {
		return "", "", fmt.Errorf("no records for placement %s", placementID)
	}
	if err := os.MkdirAll(tp.outputDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create output dir: %w", err)
	}

	start := records[0].EpochTime
	prsPts := make(plotter.XYs, len(records))
	opacityPts := make(plotter.XYs, len(records))
	for i, rec := range records {
		x := rec.EpochTime.Sub(start).Seconds()
		prsPts[i] = plotter.XY{X: x, Y: rec.FinalPRS}
		opacityPts[i] = plotter.XY{X: x, Y: rec.Opacity}
	}

	prsFile = filepath.Join(tp.outputDir, fmt.Sprintf("prs-%s.png", placementID))
	if err := savePlot(prsFile,
		fmt.Sprintf("Final PRS: %s", placementID), "seconds", "final PRS",
		prsPts, color.RGBA{R: 31, G: 119, B: 180, A: 255}); err != nil {
		return "", "", err
	}

	opacityFile = filepath.Join(tp.outputDir, fmt.Sprintf("opacity-%s.png", placementID))
	if err := savePlot(opacityFile,
		fmt.Sprintf("Delivered opacity: %s", placementID), "seconds", "opacity",
		opacityPts, color.RGBA{R: 44, G: 160, B: 44, A: 255}); err != nil {
		return "", "", err
	}

	render.Diagf("report: wrote timeline plots for placement=%s to %s", placementID, tp.outputDir)
	return prsFile, opacityFile, nil
}

func savePlot(path, title, xLabel, yLabel string, pts plotter.XYs, c color.Color) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build line for %s: %w", path, err)
	}
	line.Width = vg.Points(1)
	line.Color = c
	p.Add(line)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
