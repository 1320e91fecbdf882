package info

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveHistogram writes a histogram of the trajectory lengths to path. The
// image format follows the file extension.
func (r *Report) SaveHistogram(path string, bins int) error {
	if len(r.Lengths) == 0 {
		return errors.New("no trajectories to plot")
	}
	values := make(plotter.Values, len(r.Lengths))
	for i, l := range r.Lengths {
		values[i] = float64(l)
	}

	p := plot.New()
	p.Title.Text = "trajectory lengths"
	p.X.Label.Text = "steps"
	p.Y.Label.Text = "episodes"
	h, err := plotter.NewHist(values, max(bins, 1))
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	p.Add(h)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save histogram: %w", err)
	}
	return nil
}
