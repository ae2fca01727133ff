package store

import (
	"fmt"
	"time"
)

// Read-only query surface consumed by the stats, export and search commands.
// These never participate in the ingestion consistency protocol.

func (s *Store) count(table string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// CountArtists returns the number of artist rows
func (s *Store) CountArtists() (int, error) { return s.count("artists") }

// CountAlbums returns the number of album rows
func (s *Store) CountAlbums() (int, error) { return s.count("albums") }

// CountTracks returns the number of track rows
func (s *Store) CountTracks() (int, error) { return s.count("tracks") }

// CountPlays returns the number of play rows
func (s *Store) CountPlays() (int, error) { return s.count("plays") }

// MaxPlayTimestamp returns the most recent play timestamp, with ok=false
// when no plays are stored
func (s *Store) MaxPlayTimestamp() (time.Time, bool, error) {
	var ts string
	err := s.db.QueryRow("SELECT COALESCE(MAX(timestamp), '') FROM plays").Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query max play timestamp: %w", err)
	}
	if ts == "" {
		return time.Time{}, false, nil
	}
	t, err := parseTimestamp(ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stored timestamp %q is invalid: %w", ts, err)
	}
	return t, true, nil
}

// ArtistPlayCount is the play total for one artist
type ArtistPlayCount struct {
	ArtistID   string
	ArtistName string
	PlayCount  int
}

// TopArtists returns artists ordered by play count
func (s *Store) TopArtists(limit int) ([]ArtistPlayCount, error) {
	rows, err := s.db.Query(`
		SELECT artists.id, artists.name, COUNT(plays.timestamp) AS play_count
		FROM plays
		JOIN tracks ON plays.track_id = tracks.id
		JOIN albums ON tracks.album_id = albums.id
		JOIN artists ON albums.artist_id = artists.id
		GROUP BY artists.id
		ORDER BY play_count DESC, artists.name
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top artists: %w", err)
	}
	defer rows.Close()

	var results []ArtistPlayCount
	for rows.Next() {
		var r ArtistPlayCount
		if err := rows.Scan(&r.ArtistID, &r.ArtistName, &r.PlayCount); err != nil {
			return nil, fmt.Errorf("failed to scan artist play count: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// TrackPlayCount is the play total for one track
type TrackPlayCount struct {
	TrackID    string
	TrackTitle string
	ArtistName string
	PlayCount  int
}

// TopTracks returns tracks ordered by play count
func (s *Store) TopTracks(limit int) ([]TrackPlayCount, error) {
	rows, err := s.db.Query(`
		SELECT tracks.id, tracks.title, artists.name, COUNT(plays.timestamp) AS play_count
		FROM plays
		JOIN tracks ON plays.track_id = tracks.id
		JOIN albums ON tracks.album_id = albums.id
		JOIN artists ON albums.artist_id = artists.id
		GROUP BY tracks.id
		ORDER BY play_count DESC, tracks.title
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tracks: %w", err)
	}
	defer rows.Close()

	var results []TrackPlayCount
	for rows.Next() {
		var r TrackPlayCount
		if err := rows.Scan(&r.TrackID, &r.TrackTitle, &r.ArtistName, &r.PlayCount); err != nil {
			return nil, fmt.Errorf("failed to scan track play count: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// PlayRow is one play joined to its track, album and artist, used by export
type PlayRow struct {
	Timestamp  time.Time
	TrackID    string
	TrackTitle string
	AlbumID    string
	AlbumTitle string
	ArtistID   string
	ArtistName string
}

// ForEachPlay streams every play in timestamp order through fn
func (s *Store) ForEachPlay(fn func(PlayRow) error) error {
	rows, err := s.db.Query(`
		SELECT plays.timestamp, tracks.id, tracks.title,
		       albums.id, albums.title, artists.id, artists.name
		FROM plays
		JOIN tracks ON plays.track_id = tracks.id
		JOIN albums ON tracks.album_id = albums.id
		JOIN artists ON albums.artist_id = artists.id
		ORDER BY plays.timestamp
	`)
	if err != nil {
		return fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r PlayRow
		var ts string
		err := rows.Scan(&ts, &r.TrackID, &r.TrackTitle,
			&r.AlbumID, &r.AlbumTitle, &r.ArtistID, &r.ArtistName)
		if err != nil {
			return fmt.Errorf("failed to scan play row: %w", err)
		}
		if r.Timestamp, err = parseTimestamp(ts); err != nil {
			return fmt.Errorf("stored timestamp %q is invalid: %w", ts, err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}

	return rows.Err()
}

// CheckReferentialIntegrity verifies the foreign-key chain: every album's
// artist, every track's album and every play's track must exist
func (s *Store) CheckReferentialIntegrity() error {
	checks := []struct {
		name  string
		query string
	}{
		{"albums with missing artist", `
			SELECT COUNT(*) FROM albums
			LEFT JOIN artists ON albums.artist_id = artists.id
			WHERE artists.id IS NULL`},
		{"tracks with missing album", `
			SELECT COUNT(*) FROM tracks
			LEFT JOIN albums ON tracks.album_id = albums.id
			WHERE albums.id IS NULL`},
		{"plays with missing track", `
			SELECT COUNT(*) FROM plays
			LEFT JOIN tracks ON plays.track_id = tracks.id
			WHERE tracks.id IS NULL`},
	}

	for _, check := range checks {
		var count int
		if err := s.db.QueryRow(check.query).Scan(&count); err != nil {
			return fmt.Errorf("integrity query failed (%s): %w", check.name, err)
		}
		if count > 0 {
			return fmt.Errorf("referential integrity violated: %d %s", count, check.name)
		}
	}

	return nil
}
