package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scrobbled/scrobbled/internal/store"
	"github.com/scrobbled/scrobbled/internal/util"
	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the full-text search index from the database",
	Long: `Rebuild the full-text search index from the entity tables.

This re-declares the change-propagation triggers (a no-op when they already
exist) and then re-derives every index row from the tracks, albums and
artists tables. Use it when the index is suspected stale, for example after
the database was modified by another tool.`,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSearchIndex(); err != nil {
		return err
	}
	triggers, err := db.SearchTriggerCount()
	if err != nil {
		return err
	}
	util.InfoLog("Search index present with %d propagation triggers", triggers)

	start := time.Now()
	if err := db.RebuildSearchIndex(); err != nil {
		return err
	}

	rows, err := db.SearchIndexCount()
	if err != nil {
		return err
	}
	tracks, err := db.CountTracks()
	if err != nil {
		return err
	}

	if rows != tracks {
		return fmt.Errorf("index row count (%d) does not match track count (%d) after rebuild", rows, tracks)
	}

	util.SuccessLog("Rebuilt search index: %s rows in %v",
		humanize.Comma(int64(rows)), time.Since(start).Round(time.Millisecond))
	return nil
}
