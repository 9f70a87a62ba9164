// Package report renders the finalised loss map as images and web pages.
package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/lossmap"
)

var (
	collimatorColor = color.RGBA{A: 255}
	apertureColor   = color.RGBA{R: 200, A: 255}
)

// LossMapPNG draws bin weights against position on a log scale, with
// collimator losses in black and other aperture losses in red.
func LossMapPNG(w io.Writer, bins []lossmap.Bin, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "s (m)"
	p.Y.Label.Text = "losses"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	var coll, warm plotter.XYs
	maxW := 1.0
	for _, b := range bins {
		pt := plotter.XY{X: b.S, Y: b.Weight}
		if b.Type == beamline.TypeCollimator {
			coll = append(coll, pt)
		} else {
			warm = append(warm, pt)
		}
		if b.Weight > maxW {
			maxW = b.Weight
		}
	}
	// Log axes cannot start at zero, and an empty map still needs a range.
	p.Y.Min, p.Y.Max = 0.5, maxW*2
	if len(bins) == 0 {
		p.X.Min, p.X.Max = 0, 1
	}

	for _, series := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{
		{"collimator", coll, collimatorColor},
		{"aperture", warm, apertureColor},
	} {
		if len(series.pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(series.pts)
		if err != nil {
			return fmt.Errorf("building %s series: %w", series.name, err)
		}
		s.GlyphStyle.Color = series.c
		s.GlyphStyle.Shape = draw.BoxGlyph{}
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add(series.name, s)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("rendering loss map: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing loss map png: %w", err)
	}
	return nil
}
