package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scrobbled/scrobbled/internal/importer"
	"github.com/scrobbled/scrobbled/internal/lastfm"
	"github.com/scrobbled/scrobbled/internal/scrobble"
	"github.com/scrobbled/scrobbled/internal/store"
	"github.com/scrobbled/scrobbled/internal/util"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import plays from a JSONL, CSV or TSV file",
	Long: `Import plays from a file into the scrobble database.

The format is detected from the first line unless --format is given. Field
names are matched flexibly (e.g. "artist_name", "song", "played_at").
Records missing a required field abort the import unless --skip-errors is
set, in which case they are counted and reported at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("format", "", "input format: jsonl, csv or tsv (default: auto-detect)")
	importCmd.Flags().Int("limit", 0, "maximum number of plays to import (0 = unlimited)")
	importCmd.Flags().Int("batch-size", scrobble.DefaultBatchSize, "records per write batch")
	importCmd.Flags().Bool("skip-errors", false, "skip malformed records instead of aborting")
	importCmd.Flags().Bool("skip-duplicates", false, "skip plays already present in the database")
	importCmd.Flags().Float64("sample", 0, "probability (0-1) of keeping each record")
	importCmd.Flags().Int64("seed", 0, "random seed for reproducible sampling")
	importCmd.Flags().Bool("dry-run", false, "parse and normalize but do not write to the database")
}

func runImport(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	formatName, _ := cmd.Flags().GetString("format")
	limit, _ := cmd.Flags().GetInt("limit")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	skipErrors, _ := cmd.Flags().GetBool("skip-errors")
	skipDuplicates, _ := cmd.Flags().GetBool("skip-duplicates")
	sample, _ := cmd.Flags().GetFloat64("sample")
	seed, _ := cmd.Flags().GetInt64("seed")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	format, err := importer.ParseFormat(formatName)
	if err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	util.InfoLog("Opening database: %s", dbPath())
	db, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	hadIndex, err := db.HasSearchIndex()
	if err != nil {
		return err
	}

	logger := newEventLogger()
	defer logger.Close()

	pipeline, err := scrobble.NewPipeline(scrobble.Config{
		Store:          db,
		BatchSize:      batchSize,
		SkipErrors:     skipErrors,
		SkipDuplicates: skipDuplicates,
		DryRun:         dryRun,
		Limit:          limit,
		Sample:         sample,
		Seed:           seed,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	bar := newProgressBar(lastfm.Estimate{}, "Importing file")

	start := time.Now()
	readErr := importer.ReadRecords(file, format, func(raw scrobble.RawPlay, line int, parseErr error) error {
		if parseErr != nil {
			if skipErrors {
				pipeline.Result().Errors = append(pipeline.Result().Errors,
					fmt.Sprintf("line %d: %v", line, parseErr))
				logger.LogRecordError(fmt.Sprintf("line %d", line), parseErr)
				return nil
			}
			return fmt.Errorf("line %d: %w", line, parseErr)
		}
		if err := pipeline.Add(raw); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
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

	if readErr != nil && !isLimitStop(readErr) {
		reportResult(result, time.Since(start), dryRun)
		return fmt.Errorf("import aborted: %w", readErr)
	}
	if closeErr != nil {
		reportResult(result, time.Since(start), dryRun)
		return closeErr
	}

	if !dryRun && !hadIndex {
		util.InfoLog("Search index was just created, backfilling from existing rows")
		if err := db.RebuildSearchIndex(); err != nil {
			return err
		}
	}

	if sample > 0 {
		util.InfoLog("Sampling kept %s of %s records",
			humanize.Comma(int64(result.Sampled)), humanize.Comma(int64(result.Processed)))
	}

	reportResult(result, time.Since(start), dryRun)
	return nil
}

// isLimitStop unwraps through the line-number annotation added above
func isLimitStop(err error) bool {
	return errors.Is(err, util.ErrLimitReached)
}
