package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-envconfig"

	"github.com/banshee-data/agreement.report/internal/config"
	"github.com/banshee-data/agreement.report/internal/dashboard"
	"github.com/banshee-data/agreement.report/internal/db"
	"github.com/banshee-data/agreement.report/internal/monitoring"
	"github.com/banshee-data/agreement.report/internal/pipeline"
	"github.com/banshee-data/agreement.report/internal/report"
)

// globalOptions are the flags shared by every command. Non-empty values win
// over the config file and environment.
type globalOptions struct {
	ConfigPath string
	DataDir    string
	Listen     string
	DBPath     string

	// Lookuper reads environment overrides; nil means the process environment.
	Lookuper envconfig.Lookuper
}

func loadConfig(ctx context.Context, opts globalOptions) (*config.Config, error) {
	cfg := config.Empty()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(ctx, opts.Lookuper); err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		cfg.DataDir = &opts.DataDir
	}
	if opts.Listen != "" {
		cfg.Listen = &opts.Listen
	}
	if opts.DBPath != "" {
		cfg.DBPath = &opts.DBPath
	}
	return cfg, nil
}

func newPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	dir := cfg.GetDataDir()
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", dir)
	}
	return pipeline.New(os.DirFS(dir), cfg.Scheme(), cfg.GetWeighting()), nil
}

func openArchive(cfg *config.Config) (*db.DB, error) {
	path := cfg.GetDBPath()
	if path == "" {
		return nil, errors.New("no database configured (use -db or AGREEMENT_DB)")
	}
	return db.NewDB(path)
}

func handleServe(ctx context.Context, opts globalOptions, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	refresh := fs.Duration("refresh", 0, "Recompute in the background at this interval (0 disables)")
	assetsHost := fs.String("assets-host", "", "Override the echarts asset host")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	cache := pipeline.NewCache(p, cfg.GetCacheTTL(), nil)

	dash := dashboard.NewServer(cache, cfg.Scheme())
	if *assetsHost != "" {
		dash.SetAssetsHost(*assetsHost)
	}
	mux := http.NewServeMux()
	mux.Handle("/", dash.ServeMux())

	if cfg.GetDBPath() != "" {
		archive, err := openArchive(cfg)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer archive.Close()

		// mount the admin debugging routes (accessible only locally or over Tailscale)
		if err := archive.AttachAdminRoutes(mux); err != nil {
			return err
		}
		cache.OnSnapshot(func(s *pipeline.Snapshot) {
			if err := archive.SaveRun(context.Background(), s.RunID, s.ComputedAt, s.Duration, s.Result); err != nil {
				monitoring.Logf("failed to archive run %s: %v", s.RunID, err)
			}
		})
	}

	// Warm the cache so the first page load is fast. A failure here is
	// reported again on every request until the data is fixed.
	go func() {
		if _, err := cache.Get(ctx); err != nil && ctx.Err() == nil {
			log.Printf("initial pipeline run failed: %v", err)
		}
	}()
	if *refresh > 0 {
		go cache.RefreshEvery(ctx, *refresh)
	}

	server := &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           dashboard.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("serving %s on %s", cfg.GetDataDir(), server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

func handleReport(ctx context.Context, opts globalOptions, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	plots := fs.String("plots", "", "Also write PNG plots into this directory")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if err := report.WriteText(w, res); err != nil {
		return err
	}
	if *plots == "" {
		return nil
	}

	plotter, err := report.NewPlotter(*plots)
	if err != nil {
		return err
	}
	paths, err := plotter.WriteAll(res)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	for _, path := range paths {
		fmt.Fprintf(w, "wrote %s\n", path)
	}
	return nil
}

func handleExport(ctx context.Context, opts globalOptions, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	start := time.Now()
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	id := uuid.New()
	if err := archive.SaveRun(ctx, id, start, time.Since(start), res); err != nil {
		return fmt.Errorf("failed to archive run: %w", err)
	}
	fmt.Fprintf(w, "archived run %s (%d kappa rows) in %s\n", id, len(res.Kappas), cfg.GetDBPath())
	return nil
}

func handleMigrate(opts globalOptions, args []string, w io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	cfg, err := loadConfig(context.Background(), opts)
	if err != nil {
		return err
	}
	if cfg.GetDBPath() == "" {
		return errors.New("no database configured (use -db or AGREEMENT_DB)")
	}

	// Open without migrating: the schema is what this command manages.
	database, err := db.OpenDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch args[0] {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(w, "all migrations applied")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(w, "rolled back one migration")
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force needs a version: %w", errUsage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateForce(version); err != nil {
			return err
		}
		fmt.Fprintf(w, "forced schema version %d\n", version)
	case "status":
		version, dirty, err := database.MigrateVersion()
		if err != nil {
			return err
		}
		latest, err := db.LatestMigrationVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "schema version %d of %d", version, latest)
		if dirty {
			fmt.Fprint(w, " (dirty)")
		}
		fmt.Fprintln(w)
	default:
		return fmt.Errorf("unknown migrate action %q: %w", args[0], errUsage)
	}
	return nil
}

func handleRuns(ctx context.Context, opts globalOptions, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	show := fs.String("show", "", "Print the kappa table of this run ID")
	del := fs.String("delete", "", "Delete this run ID and all of its rows")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *show != "" && *del != "" {
		return fmt.Errorf("-show and -delete are exclusive: %w", errUsage)
	}

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	switch {
	case *show != "":
		id, err := uuid.Parse(*show)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", *show, err)
		}
		run, err := archive.RunByID(ctx, id)
		if err != nil {
			return err
		}
		rows, err := archive.Kappas(ctx, id)
		if err != nil {
			return err
		}
		return report.WriteArchivedKappas(w, run, rows)
	case *del != "":
		id, err := uuid.Parse(*del)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", *del, err)
		}
		counts, err := archive.RowCounts(ctx, id)
		if err != nil {
			return err
		}
		if err := archive.DeleteRun(ctx, id); err != nil {
			return err
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		fmt.Fprintf(w, "deleted run %s (%d rows)\n", id, total)
		return nil
	default:
		runs, err := archive.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "no archived runs")
			return nil
		}
		return report.WriteRunsTable(w, runs)
	}
}
