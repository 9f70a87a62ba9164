package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/lossmap"
)

// LossMapHTML writes an interactive bar chart of the loss map with one
// series for collimators and one for the rest of the aperture.
func LossMapHTML(w io.Writer, bins []lossmap.Bin, title string) error {
	x := make([]string, 0, len(bins))
	coll := make([]opts.BarData, 0, len(bins))
	warm := make([]opts.BarData, 0, len(bins))
	for _, b := range bins {
		x = append(x, strconv.FormatFloat(b.S, 'f', 1, 64))
		name := fmt.Sprintf("%s (%d)", b.Element, b.Count)
		if b.Type == beamline.TypeCollimator {
			coll = append(coll, opts.BarData{Name: name, Value: b.Weight})
			warm = append(warm, opts.BarData{Value: 0})
		} else {
			coll = append(coll, opts.BarData{Value: 0})
			warm = append(warm, opts.BarData{Name: name, Value: b.Weight})
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("bins=%d", len(bins))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "s (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "losses", Type: "log"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	bar.SetXAxis(x).
		AddSeries("collimator", coll, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#000000"})).
		AddSeries("aperture", warm, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#c80000"}))

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("rendering loss map html: %w", err)
	}
	return nil
}
