package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/scrobbled/scrobbled/internal/lastfm"
	"github.com/scrobbled/scrobbled/internal/report"
	"github.com/scrobbled/scrobbled/internal/scrobble"
	"github.com/scrobbled/scrobbled/internal/store"
	"github.com/scrobbled/scrobbled/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var playsCmd = &cobra.Command{
	Use:   "plays",
	Short: "Import play history from Last.fm/Libre.fm",
	Long: `Import play history from Last.fm or Libre.fm into the scrobble database.

Each play is stored together with its artist, album and track, and the
full-text search index is kept in sync. Re-running the command is safe:
entities are upserted by their natural key and (with --skip-duplicates)
already-imported plays are skipped.`,
	RunE: runPlays,
}

func init() {
	rootCmd.AddCommand(playsCmd)

	playsCmd.Flags().Bool("since", false, "only fetch plays newer than the latest play in the database")
	playsCmd.Flags().String("since-date", "", "only fetch plays after DATE")
	playsCmd.Flags().String("until-date", "", "only fetch plays before DATE")
	playsCmd.Flags().Int("limit", 0, "maximum number of plays to import (0 = unlimited)")
	playsCmd.Flags().Int("start-page", 0, "resume fetching from this page")
	playsCmd.Flags().Int("batch-size", scrobble.DefaultBatchSize, "records per write batch")
	playsCmd.Flags().Bool("skip-duplicates", false, "skip plays already present in the database")
	playsCmd.Flags().Bool("dry-run", false, "fetch and normalize but do not write to the database")
}

func runPlays(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	applyLogFlags()

	sinceLatest, _ := cmd.Flags().GetBool("since")
	sinceDate, _ := cmd.Flags().GetString("since-date")
	untilDate, _ := cmd.Flags().GetString("until-date")
	limit, _ := cmd.Flags().GetInt("limit")
	startPage, _ := cmd.Flags().GetInt("start-page")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	skipDuplicates, _ := cmd.Flags().GetBool("skip-duplicates")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if sinceLatest && sinceDate != "" {
		return fmt.Errorf("use either --since or --since-date, not both")
	}

	auth, err := lastfm.LoadAuth(authPath())
	if err != nil {
		return err
	}
	if err := auth.Validate(); err != nil {
		return err
	}

	util.InfoLog("Opening database: %s", dbPath())
	db, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// Remember whether the index predates this run; a fresh index needs a
	// backfill because the triggers missed every row already present
	hadIndex, err := db.HasSearchIndex()
	if err != nil {
		return err
	}

	opts := lastfm.HistoryOptions{
		Limit:     limit,
		StartPage: startPage,
	}
	if sinceLatest {
		if latest, ok, err := db.MaxPlayTimestamp(); err != nil {
			return err
		} else if ok {
			opts.Since = latest
			util.InfoLog("Fetching plays since %s", latest.Format(time.RFC3339))
		}
	}
	if sinceDate != "" {
		if opts.Since, err = scrobble.ParseTimestamp(sinceDate); err != nil {
			return fmt.Errorf("invalid --since-date: %w", err)
		}
	}
	if untilDate != "" {
		if opts.Until, err = scrobble.ParseTimestamp(untilDate); err != nil {
			return fmt.Errorf("invalid --until-date: %w", err)
		}
	}

	logger := newEventLogger()
	defer logger.Close()

	client, err := lastfm.NewClient(lastfm.ClientConfig{
		BaseURL: auth.BaseURL(),
		APIKey:  auth.APIKey,
		User:    auth.Username,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	estimate := client.RecentTracksCount(ctx, opts)
	if estimate.Known {
		util.InfoLog("Importing up to %s plays for %s", humanize.Comma(int64(estimate.Total)), auth.Username)
	} else {
		util.InfoLog("Importing plays for %s (count estimate unavailable)", auth.Username)
	}

	pipeline, err := scrobble.NewPipeline(scrobble.Config{
		Store:          db,
		BatchSize:      batchSize,
		SkipDuplicates: skipDuplicates,
		DryRun:         dryRun,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	bar := newProgressBar(estimate, "Importing plays")

	start := time.Now()
	fetchErr := client.RecentTracks(ctx, opts, func(raw scrobble.RawPlay) error {
		if err := pipeline.Add(raw); err != nil {
			return err
		}
		if bar != nil {
			bar.Add(1)
		}
		return nil
	})

	result, closeErr := pipeline.Close()
	if bar != nil {
		bar.Finish()
	}

	// The limit sentinel marks a clean stop, not a failure
	if fetchErr != nil && !errors.Is(fetchErr, util.ErrLimitReached) {
		reportResult(result, time.Since(start), dryRun)
		return fmt.Errorf("import aborted: %w", fetchErr)
	}
	if closeErr != nil {
		reportResult(result, time.Since(start), dryRun)
		return closeErr
	}

	if !dryRun && !hadIndex {
		util.InfoLog("Search index was just created, backfilling from existing rows")
		rebuildStart := time.Now()
		if err := db.RebuildSearchIndex(); err != nil {
			return err
		}
		if rows, err := db.SearchIndexCount(); err == nil {
			logger.LogRebuild(rows, time.Since(rebuildStart))
		}
	}

	reportResult(result, time.Since(start), dryRun)
	return nil
}

// newEventLogger builds the per-run JSONL event log under the data directory
func newEventLogger() *report.EventLogger {
	level := report.LevelInfo
	if viper.GetBool("quiet") {
		level = report.LevelWarning
	} else if viper.GetBool("verbose") {
		level = report.LevelDebug
	}

	dir := viper.GetString("artifacts")
	if dir == "" {
		dir = filepath.Join(dataDir(), "logs")
	}

	logger, err := report.NewEventLogger(dir, level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.DebugLog("Event log: %s (run %s)", logger.Path(), logger.RunID())
	return logger
}

// newProgressBar builds a progress bar sized to the estimate, or an
// indeterminate one when no estimate is available. Returns nil when output
// is not a terminal.
func newProgressBar(estimate lastfm.Estimate, description string) *progressbar.ProgressBar {
	if !util.IsTerminal(os.Stdout.Fd()) || util.IsQuiet() {
		return nil
	}

	total := -1
	if estimate.Known {
		total = estimate.Total
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("plays"),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// reportResult prints the run summary; counts are reported even when a run
// failed partway so progress is never silently lost
func reportResult(result *scrobble.Result, elapsed time.Duration, dryRun bool) {
	verb := "Imported"
	if dryRun {
		verb = "Dry run: would import"
	}

	util.SuccessLog("%s %s plays in %v", verb,
		humanize.Comma(int64(result.Added)), elapsed.Round(time.Millisecond))
	util.InfoLog("  Processed: %s", humanize.Comma(int64(result.Processed)))
	if result.Skipped > 0 {
		util.InfoLog("  Skipped (duplicates): %s", humanize.Comma(int64(result.Skipped)))
	}
	if result.LimitReached {
		util.InfoLog("  Stopped at the configured limit")
	}
	if len(result.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(result.Errors))
		for i, msg := range result.Errors {
			if i >= 5 {
				util.WarnLog("  ... and %d more", len(result.Errors)-5)
				break
			}
			util.WarnLog("  - %s", msg)
		}
	}
}
