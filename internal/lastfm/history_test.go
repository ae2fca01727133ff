package lastfm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/scrobbled/scrobbled/internal/scrobble"
	"github.com/scrobbled/scrobbled/internal/util"
)

// pageJSON renders a recent-tracks page body with the given track entries
func pageJSON(page, totalPages, total int, tracks ...string) string {
	return fmt.Sprintf(`{
		"recenttracks": {
			"track": [%s],
			"@attr": {"page": "%d", "perPage": "200", "totalPages": "%d", "total": "%d"}
		}
	}`, strings.Join(tracks, ","), page, totalPages, total)
}

func trackJSON(artist, album, title, uts string) string {
	return fmt.Sprintf(`{
		"name": "%s",
		"mbid": "",
		"artist": {"mbid": "", "#text": "%s"},
		"album": {"mbid": "", "#text": "%s"},
		"date": {"uts": "%s"}
	}`, title, artist, album, uts)
}

const nowPlayingJSON = `{
	"name": "Live Track",
	"mbid": "",
	"artist": {"mbid": "", "#text": "Someone"},
	"album": {"mbid": "", "#text": ""},
	"@attr": {"nowplaying": "true"}
}`

func collectTracks(t *testing.T, client *Client, opts HistoryOptions) []scrobble.RawPlay {
	t.Helper()

	var got []scrobble.RawPlay
	err := client.RecentTracks(context.Background(), opts, func(raw scrobble.RawPlay) error {
		got = append(got, raw)
		return nil
	})
	if err != nil {
		t.Fatalf("RecentTracks failed: %v", err)
	}
	return got
}

func TestRecentTracksPagination(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, pageJSON(1, 2, 3,
				trackJSON("Artist A", "Album A", "Track 1", "1500000120"),
				trackJSON("Artist A", "Album A", "Track 2", "1500000060")))
		case "2":
			fmt.Fprint(w, pageJSON(2, 2, 3,
				trackJSON("Artist B", "Album B", "Track 3", "1500000000")))
		default:
			t.Errorf("unexpected page request: %s", r.URL.Query().Get("page"))
		}
	})

	got := collectTracks(t, client, HistoryOptions{})

	if len(got) != 3 {
		t.Fatalf("expected 3 records across 2 pages, got %d", len(got))
	}
	if got[0].TrackTitle != "Track 1" || got[2].TrackTitle != "Track 3" {
		t.Errorf("expected source order preserved, got %q ... %q",
			got[0].TrackTitle, got[2].TrackTitle)
	}
	if got[0].ArtistName != "Artist A" || got[0].Timestamp != "1500000120" {
		t.Errorf("expected field mapping, got %+v", got[0])
	}
}

func TestRecentTracksSkipsNowPlaying(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageJSON(1, 1, 1,
			nowPlayingJSON,
			trackJSON("Artist", "Album", "Finished Track", "1500000000")))
	})

	got := collectTracks(t, client, HistoryOptions{})

	if len(got) != 1 {
		t.Fatalf("expected now-playing entry to be skipped, got %d records", len(got))
	}
	if got[0].TrackTitle != "Finished Track" {
		t.Errorf("expected the played track, got %q", got[0].TrackTitle)
	}
}

func TestRecentTracksSingleTrackObject(t *testing.T) {
	// The API returns a bare object instead of a one-element array
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"recenttracks": {
				"track": %s,
				"@attr": {"page": "1", "perPage": "200", "totalPages": "1", "total": "1"}
			}
		}`, trackJSON("Solo", "Album", "Only Track", "1500000000"))
	})

	got := collectTracks(t, client, HistoryOptions{})

	if len(got) != 1 {
		t.Fatalf("expected 1 record from object-shaped page, got %d", len(got))
	}
	if got[0].TrackTitle != "Only Track" {
		t.Errorf("expected 'Only Track', got %q", got[0].TrackTitle)
	}
}

func TestRecentTracksLimit(t *testing.T) {
	pagesServed := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		page := r.URL.Query().Get("page")
		fmt.Fprint(w, pageJSON(1, 10, 20,
			trackJSON("A", "B", "Track "+page+"a", "1500000000"),
			trackJSON("A", "B", "Track "+page+"b", "1500000060")))
	})

	got := collectTracks(t, client, HistoryOptions{Limit: 3})

	if len(got) != 3 {
		t.Errorf("expected exactly 3 records, got %d", len(got))
	}
	if pagesServed != 2 {
		t.Errorf("expected fetching to stop after 2 pages, got %d", pagesServed)
	}
}

func TestRecentTracksInvalidTotalPagesAssumesSinglePage(t *testing.T) {
	pagesServed := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		fmt.Fprintf(w, `{
			"recenttracks": {
				"track": [%s],
				"@attr": {"page": "1", "perPage": "200", "totalPages": "garbage", "total": "1"}
			}
		}`, trackJSON("A", "B", "T", "1500000000"))
	})

	got := collectTracks(t, client, HistoryOptions{})

	if len(got) != 1 {
		t.Errorf("expected 1 record, got %d", len(got))
	}
	if pagesServed != 1 {
		t.Errorf("expected single page assumption, got %d pages fetched", pagesServed)
	}
}

func TestRecentTracksYieldErrorAborts(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageJSON(1, 5, 10,
			trackJSON("A", "B", "T1", "1500000000"),
			trackJSON("A", "B", "T2", "1500000060")))
	})

	// Sentinel errors from yield come back unchanged, so callers can use
	// them as stop conditions
	calls := 0
	err := client.RecentTracks(context.Background(), HistoryOptions{}, func(raw scrobble.RawPlay) error {
		calls++
		return util.ErrLimitReached
	})

	if !errors.Is(err, util.ErrLimitReached) {
		t.Errorf("expected sentinel to pass through unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected iteration to stop after first yield, got %d calls", calls)
	}
}

func TestRecentTracksSinceUntilParams(t *testing.T) {
	var from, to string
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		from = r.URL.Query().Get("from")
		to = r.URL.Query().Get("to")
		fmt.Fprint(w, pageJSON(1, 1, 0))
	})

	since, _ := scrobble.ParseTimestamp("1500000000")
	until, _ := scrobble.ParseTimestamp("1600000000")
	collectTracks(t, client, HistoryOptions{Since: since, Until: until})

	if from != "1500000000" {
		t.Errorf("expected from=1500000000, got %q", from)
	}
	if to != "1600000000" {
		t.Errorf("expected to=1600000000, got %q", to)
	}
}

func TestRecentTracksCount(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "1" {
			t.Errorf("expected probe limit=1, got %q", r.URL.Query().Get("limit"))
		}
		fmt.Fprint(w, `{
			"recenttracks": {
				"track": [],
				"@attr": {"page": "1", "perPage": "200", "totalPages": "42", "total": "8301"}
			}
		}`)
	})

	est := client.RecentTracksCount(context.Background(), HistoryOptions{})

	if !est.Known {
		t.Fatal("expected a known estimate")
	}
	if est.Total != 42*200 {
		t.Errorf("expected estimate %d, got %d", 42*200, est.Total)
	}
}

func TestRecentTracksCountZeroIsKnown(t *testing.T) {
	// A user with no plays yields a genuine zero, not "unavailable"
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"recenttracks": {
				"track": [],
				"@attr": {"page": "1", "perPage": "200", "totalPages": "0", "total": "0"}
			}
		}`)
	})

	est := client.RecentTracksCount(context.Background(), HistoryOptions{})

	if !est.Known {
		t.Error("expected zero estimate to be known")
	}
	if est.Total != 0 {
		t.Errorf("expected 0, got %d", est.Total)
	}
}

func TestRecentTracksCountDegradesOnAnomalies(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing attrs", `{"recenttracks": {"track": []}}`},
		{"non-numeric totalPages", `{"recenttracks": {"track": [],
			"@attr": {"page": "1", "perPage": "200", "totalPages": "lots", "total": "1"}}}`},
		{"non-numeric perPage", `{"recenttracks": {"track": [],
			"@attr": {"page": "1", "perPage": "many", "totalPages": "3", "total": "1"}}}`},
		{"negative totalPages", `{"recenttracks": {"track": [],
			"@attr": {"page": "1", "perPage": "200", "totalPages": "-1", "total": "1"}}}`},
	}

	for _, tc := range cases {
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, tc.body)
		})

		est := client.RecentTracksCount(context.Background(), HistoryOptions{})
		if est.Known {
			t.Errorf("%s: expected unknown estimate, got %+v", tc.name, est)
		}
	}
}

func TestRecentTracksCountProbeFailureIsNotFatal(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": 10, "message": "Invalid API key"}`))
	})

	// Even a failed probe must not abort the run; it degrades to unknown
	est := client.RecentTracksCount(context.Background(), HistoryOptions{})
	if est.Known {
		t.Errorf("expected unknown estimate after probe failure, got %+v", est)
	}
}
