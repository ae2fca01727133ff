package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scrobbled/scrobbled/internal/importer"
	"github.com/scrobbled/scrobbled/internal/store"
	"github.com/scrobbled/scrobbled/internal/util"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export plays to a JSONL, CSV or TSV file",
	Long: `Export every play, joined with its track, album and artist, to a file.

The format follows the file extension (.jsonl, .csv, .tsv) unless --format
is given. The output can be re-imported with 'scrobbled import', preserving
the original ids.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("format", "", "output format: jsonl, csv or tsv (default: from file extension)")
}

// exportRecord is one exported play; field names line up with the import
// aliases so round-tripping works
type exportRecord struct {
	Timestamp  string `json:"timestamp"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Track      string `json:"track"`
	ArtistMBID string `json:"artist_mbid"`
	AlbumMBID  string `json:"album_mbid"`
	TrackMBID  string `json:"track_mbid"`
}

func runExport(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	formatName, _ := cmd.Flags().GetString("format")
	if formatName == "" {
		formatName = strings.TrimPrefix(filepath.Ext(args[0]), ".")
	}
	format, err := importer.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if format == "" {
		format = importer.FormatJSONL
	}

	db, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	out, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	count := 0
	start := time.Now()

	switch format {
	case importer.FormatJSONL:
		encoder := json.NewEncoder(out)
		err = db.ForEachPlay(func(row store.PlayRow) error {
			count++
			return encoder.Encode(toExportRecord(row))
		})
	case importer.FormatCSV, importer.FormatTSV:
		writer := csv.NewWriter(out)
		if format == importer.FormatTSV {
			writer.Comma = '\t'
		}
		header := []string{"timestamp", "artist", "album", "track", "artist_mbid", "album_mbid", "track_mbid"}
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		err = db.ForEachPlay(func(row store.PlayRow) error {
			count++
			r := toExportRecord(row)
			return writer.Write([]string{
				r.Timestamp, r.Artist, r.Album, r.Track,
				r.ArtistMBID, r.AlbumMBID, r.TrackMBID,
			})
		})
		if err == nil {
			writer.Flush()
			err = writer.Error()
		}
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	util.SuccessLog("Exported %s plays to %s in %v",
		humanize.Comma(int64(count)), args[0], time.Since(start).Round(time.Millisecond))
	return nil
}

func toExportRecord(row store.PlayRow) exportRecord {
	return exportRecord{
		Timestamp:  row.Timestamp.UTC().Format(time.RFC3339),
		Artist:     row.ArtistName,
		Album:      row.AlbumTitle,
		Track:      row.TrackTitle,
		ArtistMBID: row.ArtistID,
		AlbumMBID:  row.AlbumID,
		TrackMBID:  row.TrackID,
	}
}
