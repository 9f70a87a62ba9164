package run

import (
	"errors"

	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/fsutil"
)

// ErrNumeric marks results that are not numbers: optics that never
// converge, a NaN impact factor or beam parameters.
var ErrNumeric = errors.New("numeric result invalid")

// Exit codes for the commands.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConsistency = 2
	ExitOutput      = 3
	ExitNumeric     = 4
)

// ExitCode maps a run error to the process exit status. A consistency
// failure wins over the output error it may be wrapped in.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, beamline.ErrDiscontinuous):
		return ExitConsistency
	case errors.Is(err, ErrNumeric):
		return ExitNumeric
	case errors.Is(err, fsutil.ErrOutput):
		return ExitOutput
	}
	return ExitFailure
}
