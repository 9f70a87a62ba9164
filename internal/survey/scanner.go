package survey

import (
	"fmt"

	"github.com/banshee-data/lossmap/internal/aperture"
	"github.com/banshee-data/lossmap/internal/beamline"
)

// Precision is the bracket width at which the bisection stops.
const Precision = 1e-6

// Directions scanned by CheckAperture, in output order.
const (
	PlusX = iota
	MinusX
	PlusY
	MinusY
)

var directions = [4][2]float64{
	PlusX:  {+1, 0},
	MinusX: {-1, 0},
	PlusY:  {0, +1},
	MinusY: {0, -1},
}

// Open is reported for every direction of an element without an aperture.
var Open = [4]float64{1, 1, 1, 1}

// CheckAperture bisects t in [0,1] along +x, -x, +y, -y from the element
// centre at local offset z and returns the limit for each direction. The
// result is the midpoint of the final bracket, so it lies within Precision
// of the true boundary for any shape that is monotone along rays. A
// blocked centre, such as a collimator offset past its own half gap,
// reports 0 in every direction.
func CheckAperture(ap aperture.Aperture, z float64) [4]float64 {
	var lims [4]float64
	if !ap.PointInside(0, 0, z) {
		return lims
	}
	for dir, d := range directions {
		below, above := 0.0, 1.0
		for above-below > Precision {
			guess := (above + below) / 2
			if ap.PointInside(d[0]*guess, d[1]*guess, z) {
				below = guess
			} else {
				above = guess
			}
		}
		lims[dir] = (above + below) / 2
	}
	return lims
}

// Sample is one row of the survey.
type Sample struct {
	Element beamline.Element
	Z       float64 // local offset inside the element
	S       float64 // reported position
	Limits  [4]float64
}

// Sink receives samples as they are produced.
type Sink interface {
	WriteSample(Sample) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Sample) error

func (f SinkFunc) WriteSample(s Sample) error { return f(s) }

// Scanner walks a beamline and samples every element's aperture.
type Scanner struct {
	Sampler Sampler

	// FromOrigin requires the first element to start at s = 0. Set it when
	// surveying the whole machine; sub-beamlines start wherever their first
	// element sits.
	FromOrigin bool
}

// Survey streams one sample per offset to sink and returns the number of
// rows written. Element positions must add up to within
// beamline.ContinuityTolerance, starting from 0 with FromOrigin and from
// the first element's recorded position otherwise; the first mismatch
// aborts the survey before any row for that element is written.
func (sc *Scanner) Survey(line beamline.Beamline, sink Sink) (int, error) {
	first, ok := line.First()
	if !ok {
		return 0, nil
	}
	origin := first.Position
	if sc.FromOrigin {
		origin = 0
	}
	cursor := beamline.NewCursor(origin)
	sc.Sampler.Reset(origin)
	diagf("surveying %d elements from s=%g", line.Len(), origin)

	rows := 0
	err := line.Each(func(e beamline.Element) error {
		if err := cursor.Advance(e); err != nil {
			opsf("survey aborted: %v", err)
			return err
		}
		zs := sc.Sampler.Offsets(e)
		tracef("%s at s=%g: %d samples", e.Name, e.Position, len(zs))
		for _, z := range zs {
			lims := Open
			if e.HasAperture() {
				lims = CheckAperture(e.Aperture, z)
			}
			s := Sample{Element: e, Z: z, S: sc.Sampler.ReportPosition(e, z), Limits: lims}
			if err := sink.WriteSample(s); err != nil {
				return fmt.Errorf("writing survey row for %s: %w", e.Name, err)
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return rows, err
	}
	diagf("survey complete: %d rows", rows)
	return rows, nil
}
