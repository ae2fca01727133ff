package store

import (
	"database/sql"
	"fmt"
	"testing"
	"time"
)

// seedLibrary inserts two artists with one album and one track each, with an
// uneven play distribution: tr1 has 3 plays, tr2 has 1
func seedLibrary(t *testing.T, store *Store) {
	t.Helper()

	base := time.Date(2020, 6, 15, 8, 0, 0, 0, time.UTC)
	err := store.Transaction(func(tx *sql.Tx) error {
		if err := store.UpsertArtists(tx, []Artist{
			{ID: "ar1", Name: "Daft Punk"},
			{ID: "ar2", Name: "Air"},
		}); err != nil {
			return err
		}
		if err := store.UpsertAlbums(tx, []Album{
			{ID: "al1", Title: "Discovery", ArtistID: "ar1"},
			{ID: "al2", Title: "Moon Safari", ArtistID: "ar2"},
		}); err != nil {
			return err
		}
		if err := store.UpsertTracks(tx, []Track{
			{ID: "tr1", Title: "One More Time", AlbumID: "al1"},
			{ID: "tr2", Title: "La Femme d'Argent", AlbumID: "al2"},
		}); err != nil {
			return err
		}
		_, err := store.InsertPlays(tx, []Play{
			{TrackID: "tr1", Timestamp: base},
			{TrackID: "tr1", Timestamp: base.Add(1 * time.Hour)},
			{TrackID: "tr1", Timestamp: base.Add(2 * time.Hour)},
			{TrackID: "tr2", Timestamp: base.Add(3 * time.Hour)},
		})
		return err
	})
	if err != nil {
		t.Fatalf("failed to seed library: %v", err)
	}
}

func TestCounts(t *testing.T) {
	store := testStore(t, "test-counts.db")
	seedLibrary(t, store)

	checks := []struct {
		name  string
		count func() (int, error)
		want  int
	}{
		{"artists", store.CountArtists, 2},
		{"albums", store.CountAlbums, 2},
		{"tracks", store.CountTracks, 2},
		{"plays", store.CountPlays, 4},
	}
	for _, c := range checks {
		got, err := c.count()
		if err != nil {
			t.Fatalf("failed to count %s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("expected %d %s, got %d", c.want, c.name, got)
		}
	}
}

func TestMaxPlayTimestamp(t *testing.T) {
	store := testStore(t, "test-maxts.db")

	// Empty store: no timestamp available
	_, ok, err := store.MaxPlayTimestamp()
	if err != nil {
		t.Fatalf("failed to query max timestamp: %v", err)
	}
	if ok {
		t.Error("expected ok=false on empty store")
	}

	seedLibrary(t, store)

	ts, ok, err := store.MaxPlayTimestamp()
	if err != nil {
		t.Fatalf("failed to query max timestamp: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true after seeding")
	}

	want := time.Date(2020, 6, 15, 11, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("expected max timestamp %v, got %v", want, ts)
	}
}

func TestTopArtistsAndTracks(t *testing.T) {
	store := testStore(t, "test-top.db")
	seedLibrary(t, store)

	artists, err := store.TopArtists(10)
	if err != nil {
		t.Fatalf("failed to query top artists: %v", err)
	}
	if len(artists) != 2 {
		t.Fatalf("expected 2 artists, got %d", len(artists))
	}
	if artists[0].ArtistName != "Daft Punk" || artists[0].PlayCount != 3 {
		t.Errorf("expected Daft Punk with 3 plays first, got %s with %d",
			artists[0].ArtistName, artists[0].PlayCount)
	}

	tracks, err := store.TopTracks(1)
	if err != nil {
		t.Fatalf("failed to query top tracks: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected limit to cap results at 1, got %d", len(tracks))
	}
	if tracks[0].TrackTitle != "One More Time" || tracks[0].PlayCount != 3 {
		t.Errorf("expected One More Time with 3 plays, got %s with %d",
			tracks[0].TrackTitle, tracks[0].PlayCount)
	}
}

func TestForEachPlayStreamsInOrder(t *testing.T) {
	store := testStore(t, "test-foreach.db")
	seedLibrary(t, store)

	var seen []PlayRow
	err := store.ForEachPlay(func(r PlayRow) error {
		seen = append(seen, r)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to stream plays: %v", err)
	}

	if len(seen) != 4 {
		t.Fatalf("expected 4 plays, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Timestamp.Before(seen[i-1].Timestamp) {
			t.Errorf("expected timestamp order, got %v before %v",
				seen[i-1].Timestamp, seen[i].Timestamp)
		}
	}
	if seen[0].ArtistName != "Daft Punk" || seen[0].AlbumTitle != "Discovery" {
		t.Errorf("expected joined artist/album data, got %q / %q",
			seen[0].ArtistName, seen[0].AlbumTitle)
	}

	// Callback errors abort the stream
	calls := 0
	err = store.ForEachPlay(func(r PlayRow) error {
		calls++
		return fmt.Errorf("stop")
	})
	if err == nil {
		t.Error("expected callback error to propagate")
	}
	if calls != 1 {
		t.Errorf("expected stream to stop after 1 call, got %d", calls)
	}
}

func TestCheckReferentialIntegrity(t *testing.T) {
	store := testStore(t, "test-integrity.db")
	seedLibrary(t, store)

	if err := store.CheckReferentialIntegrity(); err != nil {
		t.Errorf("expected consistent store to pass, got: %v", err)
	}

	// Introduce an orphaned track pointing at a missing album
	err := store.Transaction(func(tx *sql.Tx) error {
		return store.UpsertTracks(tx, []Track{{ID: "tr-orphan", Title: "Lost", AlbumID: "al-missing"}})
	})
	if err != nil {
		t.Fatalf("failed to insert orphan: %v", err)
	}

	if err := store.CheckReferentialIntegrity(); err == nil {
		t.Error("expected orphaned track to fail the integrity check")
	}
}
