package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/batch"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/candidates"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/export"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/filter"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/httpcache"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/match"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/patterns"
	"github.com/codeGROOVE-dev/cohortmatch/pkg/store"
)

func runCandidates(ctx context.Context, args []string) error {
	var g globalFlags
	fs := flag.NewFlagSet("candidates", flag.ContinueOnError)
	g.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: candidates <diagnosed.json> <out.json>", errUsage)
	}
	in, out := fs.Arg(0), fs.Arg(1)

	logger := g.logger()
	cfg, client, cleanup, err := setup(ctx, &g, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	users, err := readUsers(in)
	if err != nil {
		return err
	}

	start := time.Now()
	expanded, err := candidates.Expand(ctx, client, users,
		candidates.WithWorkers(cfg.CandidateWorkers),
		candidates.WithLimit(cfg.SubredditLimit),
		candidates.WithMinDiagnosedPosts(cfg.MinDiagnosedPosts),
		candidates.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return err
	}
	if err := batch.WriteJSON(out, expanded); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("candidates written", "path", out, "users", len(expanded),
		"elapsed", time.Since(start).Round(time.Millisecond), "cache_hit_rate", fmt.Sprintf("%.1f%%", httpcache.CacheStats().HitRate()))
	return nil
}

func runMatch(ctx context.Context, args []string) (err error) {
	var g globalFlags
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	g.register(fs)
	minControls := fs.Int("min-controls", 0, "controls per diagnosed user (default from settings, 9)")
	workers := fs.Int("workers", 0, "candidates fetched concurrently (default from settings, 8)")
	prefix := fs.String("prefix", "control", "batch file name prefix")
	startBatch := fs.Int("start-batch", 0, "number batches after this index, e.g. when resuming")
	dbPath := fs.String("db", "", "also store results in this SQLite database and skip controls it already holds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: match [options] <candidates.json> <out-dir>", errUsage)
	}
	in, outDir := fs.Arg(0), fs.Arg(1)

	logger := g.logger()
	cfg, client, cleanup, err := setup(ctx, &g, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	if *minControls > 0 {
		cfg.ControlsPerUser = *minControls
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	f, err := loadFilter(cfg.MHSubredditsFile, cfg.MHPatternsFile, cfg.MinWords)
	if err != nil {
		return err
	}
	users, err := readUsers(in)
	if err != nil {
		return err
	}

	writer, err := batch.NewWriter(outDir, *prefix, cfg.BatchSize,
		batch.WithLogger(logger), batch.WithStartIndex(*startBatch))
	if err != nil {
		return err
	}
	var sink match.Sink = writer
	used := match.NewUsed()

	if *dbPath != "" {
		st, serr := store.Open(*dbPath)
		if serr != nil {
			return fmt.Errorf("open %s: %w", *dbPath, serr)
		}
		defer func() {
			if cerr := st.Close(ctx); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}()
		names, serr := st.UsedControls(ctx)
		if serr != nil {
			return serr
		}
		used = match.NewUsed(names...)
		sink = match.Tee(writer, st)
		logger.Info("loaded used controls", "db", *dbPath, "controls", used.Len())
	}

	m := match.New(client, f,
		match.WithMinControls(cfg.ControlsPerUser),
		match.WithMinPosts(cfg.MinControlPosts),
		match.WithWorkers(cfg.Workers),
		match.WithUsed(used),
		match.WithLogger(logger))

	start := time.Now()
	stats, runErr := m.Run(ctx, users, sink)
	// Flush what was matched even when the run stopped early.
	if cerr := writer.Close(context.WithoutCancel(ctx)); cerr != nil {
		runErr = errors.Join(runErr, cerr)
	}

	logger.Info("match complete",
		"diagnosed", stats.Diagnosed,
		"fully_matched", stats.FullyMatched,
		"invalid", stats.Invalid,
		"controls", stats.Accepted,
		"excluded", stats.Excluded,
		"too_few_posts", stats.TooFewPosts,
		"outside_window", stats.OutsideWindow,
		"already_used", stats.AlreadyUsed,
		"fetch_failures", stats.FetchFailures,
		"rate_limited", stats.RateLimited,
		"batches", len(writer.Files()),
		"elapsed", time.Since(start).Round(time.Millisecond),
		"cache_hit_rate", fmt.Sprintf("%.1f%%", httpcache.CacheStats().HitRate()))
	return runErr
}

func runExport(_ context.Context, args []string) (err error) {
	var g globalFlags
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	g.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("%w: export <out.csv> <batch.json>...", errUsage)
	}
	logger := g.logger()
	out := fs.Arg(0)

	results, err := export.ReadBatches(fs.Args()[1:])
	if err != nil {
		return err
	}

	file, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	rows, err := export.WriteCSV(file, results)
	if err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("export complete", "path", out, "results", len(results), "rows", rows)
	return nil
}

func loadFilter(subredditsFile, patternsFile string, minWords int) (*filter.Filter, error) {
	subs, err := patterns.LoadSet(subredditsFile)
	if err != nil {
		return nil, fmt.Errorf("load mental-health subreddits: %w", err)
	}
	entries, err := patterns.Load(patternsFile)
	if err != nil {
		return nil, fmt.Errorf("load mental-health patterns: %w", err)
	}
	return filter.New(subs, patterns.Compile(entries), filter.WithMinWords(minWords)), nil
}

func readUsers(path string) ([]cohort.DiagnosedUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var users []cohort.DiagnosedUser
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return users, nil
}
