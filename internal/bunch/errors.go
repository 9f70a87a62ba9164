package bunch

import "errors"

var (
	// ErrInvalidBeam marks beam parameters that cannot seed a bunch.
	ErrInvalidBeam = errors.New("bunch: invalid beam data")

	// ErrUnknownDistribution is returned for an unrecognised distribution
	// name.
	ErrUnknownDistribution = errors.New("bunch: unknown distribution")

	// ErrBadRecord is returned when a particle file row cannot be parsed.
	ErrBadRecord = errors.New("bunch: malformed particle record")
)
