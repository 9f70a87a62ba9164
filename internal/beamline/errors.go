package beamline

import (
	"errors"
	"fmt"
)

// ContinuityTolerance is the largest allowed mismatch between an element's
// recorded position and the sum of the preceding lengths.
const ContinuityTolerance = 1e-6

var (
	// ErrDiscontinuous marks a beamline whose positions do not add up.
	ErrDiscontinuous = errors.New("beamline: discontinuous element positions")

	// ErrElementNotFound is returned by name lookups.
	ErrElementNotFound = errors.New("beamline: element not found")

	// ErrBadRange is returned for inverted or out-of-bounds segments.
	ErrBadRange = errors.New("beamline: invalid element range")
)

// ContinuityError carries the element where the position check failed.
type ContinuityError struct {
	Element  string
	Index    int
	Expected float64
	Got      float64
}

func (e *ContinuityError) Error() string {
	return fmt.Sprintf("beamline: element %s (#%d) at s=%.9g, expected s=%.9g (diff %.3g)",
		e.Element, e.Index, e.Got, e.Expected, e.Got-e.Expected)
}

func (e *ContinuityError) Unwrap() error {
	return ErrDiscontinuous
}
