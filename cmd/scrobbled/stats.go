package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scrobbled/scrobbled/internal/store"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show listening statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Int("top", 10, "number of top artists/tracks to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	top, _ := cmd.Flags().GetInt("top")

	db, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	plays, err := db.CountPlays()
	if err != nil {
		return err
	}
	tracks, err := db.CountTracks()
	if err != nil {
		return err
	}
	albums, err := db.CountAlbums()
	if err != nil {
		return err
	}
	artists, err := db.CountArtists()
	if err != nil {
		return err
	}

	fmt.Printf("Plays:   %s\n", humanize.Comma(int64(plays)))
	fmt.Printf("Tracks:  %s\n", humanize.Comma(int64(tracks)))
	fmt.Printf("Albums:  %s\n", humanize.Comma(int64(albums)))
	fmt.Printf("Artists: %s\n", humanize.Comma(int64(artists)))

	if latest, ok, err := db.MaxPlayTimestamp(); err == nil && ok {
		fmt.Printf("Last play: %s (%s)\n",
			latest.Format(time.RFC3339), humanize.Time(latest))
	}

	if plays == 0 {
		return nil
	}

	topArtists, err := db.TopArtists(top)
	if err != nil {
		return err
	}
	if len(topArtists) > 0 {
		fmt.Printf("\nTop artists:\n")
		for i, a := range topArtists {
			fmt.Printf("  %2d. %s (%s plays)\n", i+1, a.ArtistName, humanize.Comma(int64(a.PlayCount)))
		}
	}

	topTracks, err := db.TopTracks(top)
	if err != nil {
		return err
	}
	if len(topTracks) > 0 {
		fmt.Printf("\nTop tracks:\n")
		for i, t := range topTracks {
			fmt.Printf("  %2d. %s - %s (%s plays)\n", i+1, t.ArtistName, t.TrackTitle, humanize.Comma(int64(t.PlayCount)))
		}
	}

	return nil
}
