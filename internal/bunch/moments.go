package bunch

import (
	"gonum.org/v1/gonum/stat"
)

// Moments are the per-coordinate means and standard deviations of a
// population, in x, xp, y, yp, ct, dp order.
type Moments struct {
	Mean [6]float64
	Std  [6]float64
}

// ComputeMoments summarises pop. Fewer than two particles give zero
// standard deviations.
func ComputeMoments(pop *Population) Moments {
	var m Moments
	n := pop.Len()
	if n == 0 {
		return m
	}
	cols := make([][]float64, 6)
	for k := range cols {
		cols[k] = make([]float64, 0, n)
	}
	pop.Each(func(p *Particle) {
		for k, v := range p.Coords() {
			cols[k] = append(cols[k], v)
		}
	})
	for k, col := range cols {
		if n < 2 {
			m.Mean[k] = col[0]
			continue
		}
		m.Mean[k], m.Std[k] = stat.MeanStdDev(col, nil)
	}
	return m
}
