package store

import (
	"database/sql"
	"fmt"
	"time"
)

// The derived search index: one FTS5 row per track, denormalizing artist
// name, album title and track title into a single searchable document. It is
// a read optimization, never authoritative; the triggers declared below keep
// it following the entity tables, and RebuildSearchIndex re-derives it from
// scratch.

const createSearchIndexSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS tracks_fts USING fts5(
	artist_name,
	album_title,
	track_title,
	artist_id UNINDEXED,
	album_id UNINDEXED,
	track_id UNINDEXED
)`

// searchTriggers maps each source table to the DDL of its three
// change-propagation triggers. A table's triggers are only declared while the
// table itself exists; artist renames propagate through the artists_* set.
var searchTriggers = map[string][]string{
	"artists": {
		`CREATE TRIGGER IF NOT EXISTS artists_ai AFTER INSERT ON artists BEGIN
			DELETE FROM tracks_fts WHERE artist_id = new.id;
			INSERT INTO tracks_fts (artist_name, album_title, track_title, artist_id, album_id, track_id)
			SELECT new.name, albums.title, tracks.title, new.id, albums.id, tracks.id
			FROM albums JOIN tracks ON albums.id = tracks.album_id
			WHERE albums.artist_id = new.id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS artists_au AFTER UPDATE ON artists BEGIN
			DELETE FROM tracks_fts WHERE artist_id = new.id;
			INSERT INTO tracks_fts (artist_name, album_title, track_title, artist_id, album_id, track_id)
			SELECT new.name, albums.title, tracks.title, new.id, albums.id, tracks.id
			FROM albums JOIN tracks ON albums.id = tracks.album_id
			WHERE albums.artist_id = new.id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS artists_ad AFTER DELETE ON artists BEGIN
			DELETE FROM tracks_fts WHERE artist_id = old.id;
		END`,
	},
	"albums": {
		`CREATE TRIGGER IF NOT EXISTS albums_ai AFTER INSERT ON albums BEGIN
			DELETE FROM tracks_fts WHERE album_id = new.id;
			INSERT INTO tracks_fts (artist_name, album_title, track_title, artist_id, album_id, track_id)
			SELECT artists.name, new.title, tracks.title, new.artist_id, new.id, tracks.id
			FROM artists JOIN tracks ON tracks.album_id = new.id
			WHERE artists.id = new.artist_id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS albums_au AFTER UPDATE ON albums BEGIN
			DELETE FROM tracks_fts WHERE album_id = new.id;
			INSERT INTO tracks_fts (artist_name, album_title, track_title, artist_id, album_id, track_id)
			SELECT artists.name, new.title, tracks.title, new.artist_id, new.id, tracks.id
			FROM artists JOIN tracks ON tracks.album_id = new.id
			WHERE artists.id = new.artist_id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS albums_ad AFTER DELETE ON albums BEGIN
			DELETE FROM tracks_fts WHERE album_id = old.id;
		END`,
	},
	"tracks": {
		`CREATE TRIGGER IF NOT EXISTS tracks_ai AFTER INSERT ON tracks BEGIN
			INSERT INTO tracks_fts (artist_name, album_title, track_title, artist_id, album_id, track_id)
			SELECT artists.name, albums.title, new.title, artists.id, albums.id, new.id
			FROM albums JOIN artists ON albums.artist_id = artists.id
			WHERE albums.id = new.album_id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS tracks_au AFTER UPDATE ON tracks BEGIN
			DELETE FROM tracks_fts WHERE track_id = new.id;
			INSERT INTO tracks_fts (artist_name, album_title, track_title, artist_id, album_id, track_id)
			SELECT artists.name, albums.title, new.title, artists.id, albums.id, new.id
			FROM albums JOIN artists ON albums.artist_id = artists.id
			WHERE albums.id = new.album_id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS tracks_ad AFTER DELETE ON tracks BEGIN
			DELETE FROM tracks_fts WHERE track_id = old.id;
		END`,
	},
}

// EnsureSearchIndex creates the search index table and declares the
// change-propagation triggers for every entity table that currently exists.
//
// It is idempotent and cumulative: declaring an existing table or trigger is
// a no-op, and triggers for tables that do not exist yet are simply skipped
// on this call and picked up by a later one. Every write phase re-invokes it
// as a post-condition, so the full trigger set is reached no matter in which
// order schema creation and data loading happened.
func (s *Store) EnsureSearchIndex() error {
	if _, err := s.db.Exec(createSearchIndexSQL); err != nil {
		return fmt.Errorf("failed to create search index table: %w", err)
	}

	for _, table := range []string{"artists", "albums", "tracks"} {
		exists, err := s.tableExists(table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		for _, ddl := range searchTriggers[table] {
			if _, err := s.db.Exec(ddl); err != nil {
				return fmt.Errorf("failed to create trigger on %s: %w", table, err)
			}
		}
	}

	return nil
}

// HasSearchIndex reports whether the search index table has been created
func (s *Store) HasSearchIndex() (bool, error) {
	return s.tableExists("tracks_fts")
}

// RebuildSearchIndex re-derives the search index from the entity tables:
// every existing row is discarded and one row per track is rebuilt by joining
// tracks to albums to artists. Safe to run whether or not the triggers are in
// place, and safe to run repeatedly.
func (s *Store) RebuildSearchIndex() error {
	return s.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM tracks_fts"); err != nil {
			return fmt.Errorf("failed to clear search index: %w", err)
		}

		_, err := tx.Exec(`
			INSERT INTO tracks_fts (artist_name, album_title, track_title, artist_id, album_id, track_id)
			SELECT artists.name, albums.title, tracks.title, artists.id, albums.id, tracks.id
			FROM tracks
			JOIN albums ON tracks.album_id = albums.id
			JOIN artists ON albums.artist_id = artists.id
		`)
		if err != nil {
			return fmt.Errorf("failed to rebuild search index: %w", err)
		}

		return nil
	})
}

// SearchIndexCount returns the number of rows in the search index. When the
// index is in sync this equals the track count.
func (s *Store) SearchIndexCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM tracks_fts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count search index rows: %w", err)
	}
	return count, nil
}

// SearchTriggerCount returns the number of declared change-propagation
// triggers (9 when all entity tables exist)
func (s *Store) SearchTriggerCount() (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='trigger' AND tbl_name IN ('artists', 'albums', 'tracks')
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count triggers: %w", err)
	}
	return count, nil
}

// SearchResult is one track matched by a full-text search, with play
// statistics when available
type SearchResult struct {
	TrackID    string
	TrackTitle string
	AlbumID    string
	AlbumTitle string
	ArtistID   string
	ArtistName string
	PlayCount  int
	LastPlayed time.Time
}

// SearchTracks runs a full-text query against the search index, ranked by
// relevance then play count
func (s *Store) SearchTracks(query string, limit int) ([]SearchResult, error) {
	sqlStr := `
		SELECT
			tracks_fts.track_id,
			tracks_fts.track_title,
			tracks_fts.album_id,
			tracks_fts.album_title,
			tracks_fts.artist_id,
			tracks_fts.artist_name,
			COUNT(plays.timestamp) AS play_count,
			COALESCE(MAX(plays.timestamp), '') AS last_played
		FROM tracks_fts
		LEFT JOIN plays ON tracks_fts.track_id = plays.track_id
		WHERE tracks_fts MATCH ?
		GROUP BY tracks_fts.track_id, tracks_fts.album_id, tracks_fts.artist_id
		ORDER BY tracks_fts.rank, play_count DESC
	`
	args := []interface{}{query}
	if limit > 0 {
		sqlStr += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var lastPlayed string
		err := rows.Scan(
			&r.TrackID, &r.TrackTitle, &r.AlbumID, &r.AlbumTitle,
			&r.ArtistID, &r.ArtistName, &r.PlayCount, &lastPlayed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if lastPlayed != "" {
			if t, err := parseTimestamp(lastPlayed); err == nil {
				r.LastPlayed = t
			}
		}
		results = append(results, r)
	}

	return results, rows.Err()
}
