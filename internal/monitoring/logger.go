// Package monitoring carries the run-level observability of a loss map run:
// the stage log the driver writes through Logf, the per-package log levels
// and the prometheus metrics of a single run.
package monitoring

import "log"

// Logf reports run stages (lattice, optics, survey, tracking summary). It
// writes through log.Printf until SetLogger or ConfigureLogging changes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger routes the stage log to f; nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
