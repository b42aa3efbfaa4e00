package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/agreement.report/internal/monitoring"
	"github.com/banshee-data/agreement.report/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to a .json or .yaml config file (defaults are used when empty)")
	dataDir    = flag.String("data", "", "Rating tree root, overrides config and AGREEMENT_DATA_DIR")
	listen     = flag.String("listen", "", "Listen address for serve, overrides config")
	dbPath     = flag.String("db", "", "SQLite run archive path, overrides config")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

var errUsage = errors.New("usage")

func main() {
	flag.Usage = printUsage
	flag.Parse()
	monitoring.SetVerbose(*verbose)

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := globalOptions{
		ConfigPath: *configPath,
		DataDir:    *dataDir,
		Listen:     *listen,
		DBPath:     *dbPath,
	}
	if err := run(ctx, opts, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
			os.Exit(2)
		}
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func run(ctx context.Context, opts globalOptions, command string, args []string) error {
	switch command {
	case "serve":
		return handleServe(ctx, opts, args)
	case "report":
		return handleReport(ctx, opts, args, os.Stdout)
	case "export":
		return handleExport(ctx, opts, args, os.Stdout)
	case "migrate":
		return handleMigrate(opts, args, os.Stdout)
	case "runs":
		return handleRuns(ctx, opts, args, os.Stdout)
	case "version":
		fmt.Printf("agreement %s\n", version.String())
		return nil
	case "help":
		printUsage()
		return nil
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		return errUsage
	}
}

func printUsage() {
	fmt.Println(`agreement - inter-annotator agreement over rating rounds

Usage: agreement [global flags] <command> [options]

Commands:
  serve      Serve the dashboard, JSON API and metrics
  report     Print kappa and within/between tables (-plots dir writes PNGs)
  export     Run the pipeline once and archive the result in the database
  migrate    Manage the archive schema: up, down, status, force <version>
  runs       List archived runs (-show <id> prints kappas, -delete <id> removes one)
  version    Show version
  help       Show this help message

Global Flags:
  -config <file>   Config file (.json, .yaml, .yml)
  -data <dir>      Rating tree root (<dir>/round<R>/group<G>/*)
  -listen <addr>   Listen address for serve
  -db <path>       SQLite run archive
  -verbose         Debug logging

Environment:
  AGREEMENT_DATA_DIR, AGREEMENT_LISTEN, AGREEMENT_CACHE_TTL, AGREEMENT_DB`)
}
