package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/banshee-data/lossmap/internal/bunch"
	"github.com/banshee-data/lossmap/internal/collimation"
	"github.com/banshee-data/lossmap/internal/lossmap"
	"github.com/banshee-data/lossmap/internal/optics"
	"github.com/banshee-data/lossmap/internal/store"
	"github.com/banshee-data/lossmap/internal/survey"
	"github.com/banshee-data/lossmap/internal/tracking"
)

// EnvLogLevel selects which log streams are written.
const EnvLogLevel = "LOSSMAP_LOG_LEVEL"

// Level is a cumulative verbosity: diag includes ops, trace includes both.
type Level int

const (
	LevelOff Level = iota
	LevelOps
	LevelDiag
	LevelTrace
)

// ParseLevel accepts off, ops, diag and trace. Empty means diag.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LevelOff, nil
	case "ops":
		return LevelOps, nil
	case "", "diag":
		return LevelDiag, nil
	case "trace":
		return LevelTrace, nil
	}
	return LevelOff, fmt.Errorf("unknown log level %q (want off, ops, diag or trace)", s)
}

var logWriterSetters = []func(ops, diag, trace io.Writer){
	survey.SetLogWriters,
	optics.SetLogWriters,
	bunch.SetLogWriters,
	lossmap.SetLogWriters,
	tracking.SetLogWriters,
	collimation.SetLogWriters,
	store.SetLogWriters,
}

// ConfigureLogging points every package's log streams at w according to
// level. Streams above the level are disabled.
func ConfigureLogging(level Level, w io.Writer) {
	var ops, diag, trace io.Writer
	if level >= LevelOps {
		ops = w
	}
	if level >= LevelDiag {
		diag = w
	}
	if level >= LevelTrace {
		trace = w
	}
	for _, set := range logWriterSetters {
		set(ops, diag, trace)
	}
	if level == LevelOff {
		SetLogger(nil)
	}
}

// ConfigureLoggingFromEnv reads LOSSMAP_LOG_LEVEL and logs to stderr.
func ConfigureLoggingFromEnv() error {
	level, err := ParseLevel(os.Getenv(EnvLogLevel))
	if err != nil {
		return err
	}
	ConfigureLogging(level, os.Stderr)
	return nil
}
