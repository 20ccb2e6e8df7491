// Command cohortmatch builds matched diagnosed/control Reddit cohorts.
//
// Usage:
//
//	cohortmatch candidates diagnosed.json expanded.json
//	cohortmatch match -workers 8 -db matches.db expanded.json out/
//	cohortmatch export controls.csv out/control_batch_*.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/arctic"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/config"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/httpcache"
)

var errUsage = errors.New("usage")

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	config   string
	debug    bool
	verbose  bool
	noCache  bool
	cacheTTL time.Duration
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.config, "config", "", "YAML settings file")
	fs.BoolVar(&g.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&g.verbose, "v", false, "verbose logging (same as -debug)")
	fs.BoolVar(&g.noCache, "no-cache", false, "disable HTTP caching")
	fs.DurationVar(&g.cacheTTL, "cache-ttl", 0, "cache time-to-live (default from settings, 72h)")
}

func (g *globalFlags) logger() *slog.Logger {
	logLevel := slog.LevelInfo
	if g.debug || g.verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:])
	stop()

	if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		if !errors.Is(err, flag.ErrHelp) && err != errUsage { //nolint:errorlint // bare usage carries no detail
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		}
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: cohortmatch <command> [options] <args>")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	fmt.Fprintln(os.Stderr, "  candidates <diagnosed.json> <out.json>   collect candidate controls from each user's subreddits")
	fmt.Fprintln(os.Stderr, "  match <candidates.json> <out-dir>        match controls and write numbered batches")
	fmt.Fprintln(os.Stderr, "  export <out.csv> <batch.json>...         write cleaned control posts as TID,text CSV")
	fmt.Fprintln(os.Stderr, "\nRun 'cohortmatch <command> -h' for command options.")
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "candidates":
		return runCandidates(ctx, args[1:])
	case "match":
		return runMatch(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "-h", "-help", "--help", "help":
		return errUsage
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

// setup loads settings and builds the archive client shared by the network commands.
// The returned cleanup closes the HTTP cache.
func setup(ctx context.Context, g *globalFlags, logger *slog.Logger) (*config.Config, *arctic.Client, func(), error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load settings: %w", err)
	}
	if g.cacheTTL > 0 {
		cfg.CacheTTL = g.cacheTTL
	}

	cleanup := func() {}
	opts := []arctic.Option{
		arctic.WithLogger(logger),
		arctic.WithBaseURL(cfg.APIBaseURL),
		arctic.WithRateLimit(cfg.RequestsPerSecond),
	}

	if !g.noCache {
		var httpCache *httpcache.Cache
		if cfg.CacheDir != "" {
			httpCache, err = httpcache.NewWithPath(cfg.CacheTTL, cfg.CacheDir)
		} else {
			httpCache, err = httpcache.New(cfg.CacheTTL)
		}
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without cache", "error", err)
		} else {
			cleanup = func() {
				if err := httpCache.Close(); err != nil {
					logger.Warn("failed to close cache", "error", err)
				}
			}
			opts = append(opts, arctic.WithHTTPCache(httpCache))
			logger.Debug("HTTP cache initialized", "ttl", cfg.CacheTTL.String())
		}
	}

	client, err := arctic.New(ctx, opts...)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return cfg, client, cleanup, nil
}
