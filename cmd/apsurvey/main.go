// Command apsurvey writes the aperture survey of the configured lattice
// without tracking anything. It reads LOSSMAP_CONFIG and
// LOSSMAP_LOG_LEVEL like lossmap and takes no arguments.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/lossmap/internal/config"
	"github.com/banshee-data/lossmap/internal/fsutil"
	"github.com/banshee-data/lossmap/internal/monitoring"
	"github.com/banshee-data/lossmap/internal/run"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(argv []string) int {
	if len(argv) > 0 {
		log.Print("usage: apsurvey")
		return run.ExitFailure
	}
	if err := monitoring.ConfigureLoggingFromEnv(); err != nil {
		log.Print(err)
		return run.ExitFailure
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Print(err)
		return run.ExitFailure
	}

	r := run.NewRunner(cfg, fsutil.OSFileSystem{})
	rows, err := r.Survey()
	if err != nil {
		log.Printf("apsurvey failed: %v", err)
		return run.ExitCode(err)
	}
	fmt.Printf("%d survey rows written to %s\n", rows, cfg.GetOutputDir())
	return run.ExitOK
}
