package visualization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoValues is returned when there is nothing to plot.
var ErrNoValues = errors.New("no values to plot")

// HistogramOptions controls SaveHistogram.
type HistogramOptions struct {
	Title string
	Bins  int

	// SkipZeros drops voxels equal to 0, which otherwise dwarf the tissue
	// voxels in a mostly-empty brain volume
	SkipZeros bool
}

// SaveHistogram plots the distribution of values to path. The image format
// follows the file extension (png, svg, pdf, ...).
func SaveHistogram(values []float64, path string, opts HistogramOptions) error {
	if opts.Bins <= 0 {
		opts.Bins = 50
	}

	vals := make(plotter.Values, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || (opts.SkipZeros && v == 0) {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return fmt.Errorf("%s: %w", path, ErrNoValues)
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "Value"
	p.Y.Label.Text = "Voxels"

	h, err := plotter.NewHist(vals, opts.Bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(h)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram %s: %w", path, err)
	}
	return nil
}
