package optics

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConverged is returned when the bend path length scale reaches
	// its doubling cap without producing a valid lattice function table.
	ErrNotConverged = errors.New("optics: lattice functions did not converge")

	// ErrEmptyModel is returned when there are no elements to compute on.
	ErrEmptyModel = errors.New("optics: empty model")

	// ErrBadConvergence marks unusable convergence parameters.
	ErrBadConvergence = errors.New("optics: invalid convergence parameters")
)

// NotConvergedError records how far the convergence loop got.
type NotConvergedError struct {
	Doublings int
	LastScale float64
}

func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("optics: lattice functions still invalid after %d doublings (scale %g)", e.Doublings, e.LastScale)
}

func (e *NotConvergedError) Unwrap() error {
	return ErrNotConverged
}
