package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Timestamps are stored as RFC 3339 UTC strings so that lexicographic
// ordering matches chronological ordering.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// UpsertArtists inserts or updates artists by id within the given transaction
func (s *Store) UpsertArtists(tx *sql.Tx, artists []Artist) error {
	stmt, err := tx.Prepare(`
		INSERT INTO artists (id, name)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare artist upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range artists {
		if _, err := stmt.Exec(a.ID, a.Name); err != nil {
			return fmt.Errorf("failed to upsert artist %s: %w", a.ID, err)
		}
	}

	return nil
}

// UpsertAlbums inserts or updates albums by id within the given transaction.
// Referenced artists must already be upserted in the same transaction.
func (s *Store) UpsertAlbums(tx *sql.Tx, albums []Album) error {
	stmt, err := tx.Prepare(`
		INSERT INTO albums (id, title, artist_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist_id = excluded.artist_id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare album upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range albums {
		if _, err := stmt.Exec(a.ID, a.Title, a.ArtistID); err != nil {
			return fmt.Errorf("failed to upsert album %s: %w", a.ID, err)
		}
	}

	return nil
}

// UpsertTracks inserts or updates tracks by id within the given transaction.
// Referenced albums must already be upserted in the same transaction.
func (s *Store) UpsertTracks(tx *sql.Tx, tracks []Track) error {
	stmt, err := tx.Prepare(`
		INSERT INTO tracks (id, title, album_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			album_id = excluded.album_id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare track upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		if _, err := stmt.Exec(t.ID, t.Title, t.AlbumID); err != nil {
			return fmt.Errorf("failed to upsert track %s: %w", t.ID, err)
		}
	}

	return nil
}

// InsertPlays inserts plays within the given transaction, ignoring
// (timestamp, track) pairs that already exist. Returns the number of rows
// actually inserted.
func (s *Store) InsertPlays(tx *sql.Tx, plays []Play) (int, error) {
	stmt, err := tx.Prepare(`
		INSERT INTO plays (timestamp, track_id)
		VALUES (?, ?)
		ON CONFLICT(timestamp, track_id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare play insert: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, p := range plays {
		result, err := stmt.Exec(formatTimestamp(p.Timestamp), p.TrackID)
		if err != nil {
			return added, fmt.Errorf("failed to insert play for track %s: %w", p.TrackID, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	return added, nil
}

// HasPlay reports whether a play exists for the given (track, timestamp) pair
func (s *Store) HasPlay(trackID string, timestamp time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM plays WHERE timestamp = ? AND track_id = ?
	`, formatTimestamp(timestamp), trackID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check for play: %w", err)
	}
	return count > 0, nil
}

// PlayKeys returns every stored (timestamp, track) pair, used to seed
// store-wide duplicate detection before an ingestion run
func (s *Store) PlayKeys() (map[[2]string]bool, error) {
	keys := make(map[[2]string]bool)

	exists, err := s.tableExists("plays")
	if err != nil {
		return nil, err
	}
	if !exists {
		return keys, nil
	}

	rows, err := s.db.Query("SELECT timestamp, track_id FROM plays")
	if err != nil {
		return nil, fmt.Errorf("failed to query play keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts, trackID string
		if err := rows.Scan(&ts, &trackID); err != nil {
			return nil, fmt.Errorf("failed to scan play key: %w", err)
		}
		keys[[2]string{ts, trackID}] = true
	}

	return keys, rows.Err()
}

// PlayKey builds the duplicate-detection key for a play
func PlayKey(trackID string, timestamp time.Time) [2]string {
	return [2]string{formatTimestamp(timestamp), trackID}
}

// GetArtist retrieves an artist by id, or nil if absent
func (s *Store) GetArtist(id string) (*Artist, error) {
	a := &Artist{}
	err := s.db.QueryRow("SELECT id, name FROM artists WHERE id = ?", id).Scan(&a.ID, &a.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artist: %w", err)
	}
	return a, nil
}

// GetAlbum retrieves an album by id, or nil if absent
func (s *Store) GetAlbum(id string) (*Album, error) {
	a := &Album{}
	err := s.db.QueryRow("SELECT id, title, artist_id FROM albums WHERE id = ?", id).
		Scan(&a.ID, &a.Title, &a.ArtistID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get album: %w", err)
	}
	return a, nil
}

// GetTrack retrieves a track by id, or nil if absent
func (s *Store) GetTrack(id string) (*Track, error) {
	t := &Track{}
	err := s.db.QueryRow("SELECT id, title, album_id FROM tracks WHERE id = ?", id).
		Scan(&t.ID, &t.Title, &t.AlbumID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return t, nil
}
