package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/scrobbled/scrobbled/internal/store"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Full-text search over artists, albums and tracks",
	Long: `Search the full-text index for tracks whose artist name, album title or
track title matches QUERY. Results are ranked by relevance, then play count.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int("limit", 20, "maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	db, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// The index may predate this binary or be missing entirely; ensure is
	// idempotent and cheap
	if err := db.EnsureSearchIndex(); err != nil {
		return err
	}

	results, err := db.SearchTracks(query, limit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for _, r := range results {
		line := fmt.Sprintf("%s - %s", r.ArtistName, r.TrackTitle)
		if r.AlbumTitle != "" {
			line += fmt.Sprintf(" [%s]", r.AlbumTitle)
		}
		if r.PlayCount > 0 {
			line += fmt.Sprintf("  (%d plays, last %s)",
				r.PlayCount, humanize.Time(r.LastPlayed))
		}
		fmt.Println(line)
	}

	return nil
}
