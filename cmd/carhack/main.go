package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/carhack/internal/config"
	"github.com/banshee-data/carhack/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("failed to load environment: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{env: env, out: os.Stdout, logf: log.Printf}
	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "record":
		err = a.record(ctx, args)
	case "recalc":
		err = a.recalc(args)
	case "list":
		err = a.list(args)
	case "show":
		err = a.show(args)
	case "plot":
		err = a.plot(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func printUsage() {
	fmt.Println(`carhack - vehicle sensor trip recorder

Usage: carhack <command> [options]

Commands:
  record     Record a live trip until interrupted
  recalc     Regenerate a trip's derived series from its recorded data
  list       List catalogued trips (use --scan to index the trips directory)
  show       Print a trip summary and its samples in time order
  plot       Render trip series to an image
  version    Show carhack version
  help       Show this help message

Common Flags:
  --trips <dir>      Trips directory (env CARHACK_TRIPS_DIR, default trips)
  --config <file>    Trip configuration JSON (env CARHACK_CONFIG)
  --db <file>        Trip catalog database (env CARHACK_DB, default carhack.db)

Examples:
  # Record from the radar on a specific port for ten minutes
  carhack record --port /dev/ttyUSB0 --duration 10m

  # Apply changed processor settings to an old trip
  carhack recalc 0190a5c2-6f1e-7c3a-9d2b-3c4d5e6f7a8b

  # Plot smoothed and raw speed
  carhack plot --series radar.speed,smooth.speed --out speed.png <tid>`)
}
