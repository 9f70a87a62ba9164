// Command lossmap tracks a bunch round the configured ring and writes the
// beam loss map.
//
//	lossmap [npart [seed]]
//
// The run configuration is read from the TOML file named by LOSSMAP_CONFIG
// and LOSSMAP_LOG_LEVEL selects the log streams (off, ops, diag, trace).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/banshee-data/lossmap/internal/config"
	"github.com/banshee-data/lossmap/internal/fsutil"
	"github.com/banshee-data/lossmap/internal/monitoring"
	"github.com/banshee-data/lossmap/internal/run"
	"github.com/banshee-data/lossmap/internal/timeutil"
)

const defaultNPart = 1

// parseArgs reads the optional positionals. Without a seed the current
// time in seconds is used.
func parseArgs(args []string, clock timeutil.Clock) (run.Args, error) {
	out := run.Args{NPart: defaultNPart, Seed: timeutil.SeedFrom(clock.Now())}
	if len(args) > 2 {
		return out, fmt.Errorf("usage: lossmap [npart [seed]]")
	}
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return out, fmt.Errorf("invalid npart %q", args[0])
		}
		out.NPart = n
	}
	if len(args) > 1 {
		s, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return out, fmt.Errorf("invalid seed %q", args[1])
		}
		out.Seed = s
	}
	return out, nil
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(argv []string) int {
	if err := monitoring.ConfigureLoggingFromEnv(); err != nil {
		log.Print(err)
		return run.ExitFailure
	}
	args, err := parseArgs(argv, timeutil.RealClock{})
	if err != nil {
		log.Print(err)
		return run.ExitFailure
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Print(err)
		return run.ExitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := run.Run(ctx, cfg, args, fsutil.OSFileSystem{})
	if err != nil {
		log.Printf("lossmap failed: %v", err)
		return run.ExitCode(err)
	}
	fmt.Printf("npart = %d\nleft = %d\nabsorbed = %d\n", sum.NPart, sum.Left, sum.Absorbed)
	if sum.RunID != "" {
		fmt.Printf("run = %s\n", sum.RunID)
	}
	return run.ExitOK
}
