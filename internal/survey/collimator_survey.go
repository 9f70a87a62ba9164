package survey

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/lossmap/internal/beamline"
)

// BetaSource supplies the beta functions at an element entry.
type BetaSource interface {
	Beta(element int) (betaX, betaY float64)
}

// CollimatorRow describes one collimator's opening in metres and in beam
// sigma.
type CollimatorRow struct {
	Name               string
	S, Length          float64
	HalfGapX, HalfGapY float64
	BetaX, BetaY       float64
	SigmaX, SigmaY     float64
	GapSigmaX          float64
	GapSigmaY          float64
}

// CollimatorSurvey measures every collimator in line at its entry and
// expresses the opening in units of the local beam size.
func CollimatorSurvey(line beamline.Beamline, optics BetaSource, emitX, emitY float64) []CollimatorRow {
	var rows []CollimatorRow
	_ = line.Each(func(e beamline.Element) error {
		if !e.IsCollimator() || !e.HasAperture() {
			return nil
		}
		lims := CheckAperture(e.Aperture, 0)
		bx, by := optics.Beta(e.Index)
		r := CollimatorRow{
			Name:     e.Name,
			S:        e.Position,
			Length:   e.Length,
			HalfGapX: (lims[PlusX] + lims[MinusX]) / 2,
			HalfGapY: (lims[PlusY] + lims[MinusY]) / 2,
			BetaX:    bx,
			BetaY:    by,
			SigmaX:   math.Sqrt(bx * emitX),
			SigmaY:   math.Sqrt(by * emitY),
		}
		r.GapSigmaX = r.HalfGapX / r.SigmaX
		r.GapSigmaY = r.HalfGapY / r.SigmaY
		rows = append(rows, r)
		return nil
	})
	diagf("collimator survey: %d collimators", len(rows))
	return rows
}

// WriteCollimatorSurvey writes rows as a tab separated table.
func WriteCollimatorSurvey(w io.Writer, rows []CollimatorRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"#name", "s", "length", "half_gap_x", "half_gap_y",
		"beta_x", "beta_y", "sigma_x", "sigma_y", "gap_sigma_x", "gap_sigma_y"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Name}
		for _, v := range []float64{r.S, r.Length, r.HalfGapX, r.HalfGapY, r.BetaX, r.BetaY,
			r.SigmaX, r.SigmaY, r.GapSigmaX, r.GapSigmaY} {
			rec = append(rec, formatFloat(v))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing collimator %s: %w", r.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
