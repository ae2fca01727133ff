package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/scrobbled/scrobbled/internal/scrobble"
	"github.com/scrobbled/scrobbled/internal/util"
)

// DefaultPageSize is the per-page record count requested from the API
const DefaultPageSize = 200

// Estimate is a play-count estimate from the metadata probe. Known
// distinguishes a genuine zero from "the response was malformed and no
// estimate is available" - the two must not be conflated by progress
// reporting.
type Estimate struct {
	Known bool
	Total int
}

// HistoryOptions bounds a history fetch. Filtering happens at the source:
// pages outside [Since, Until] are never requested.
type HistoryOptions struct {
	Since     time.Time // Zero means from the beginning
	Until     time.Time // Zero means up to now
	Limit     int       // Hard record cap (0 = unlimited)
	StartPage int       // Resume offset; 0 or 1 starts from the first page
	PageSize  int       // Defaults to DefaultPageSize
}

func (o HistoryOptions) params() url.Values {
	params := url.Values{}
	if !o.Since.IsZero() {
		params.Set("from", strconv.FormatInt(o.Since.Unix(), 10))
	}
	if !o.Until.IsZero() {
		params.Set("to", strconv.FormatInt(o.Until.Unix(), 10))
	}
	return params
}

// recentTracksResponse mirrors the user.getRecentTracks JSON body. All
// numeric attributes arrive as strings.
type recentTracksResponse struct {
	RecentTracks struct {
		Track trackList `json:"track"`
		Attr  struct {
			Page       string `json:"page"`
			PerPage    string `json:"perPage"`
			TotalPages string `json:"totalPages"`
			Total      string `json:"total"`
		} `json:"@attr"`
	} `json:"recenttracks"`
}

type apiTrack struct {
	Name   string `json:"name"`
	MBID   string `json:"mbid"`
	Artist struct {
		MBID string `json:"mbid"`
		Name string `json:"#text"`
	} `json:"artist"`
	Album struct {
		MBID  string `json:"mbid"`
		Title string `json:"#text"`
	} `json:"album"`
	Date *struct {
		UTS string `json:"uts"`
	} `json:"date"`
	Attr *struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

// trackList tolerates the API quirk of returning a bare object instead of
// an array when a page holds a single track
type trackList []apiTrack

func (t *trackList) UnmarshalJSON(data []byte) error {
	var list []apiTrack
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var single apiTrack
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*t = trackList{single}
	return nil
}

// raw converts an API track to the pipeline's raw-record shape
func (t apiTrack) raw() scrobble.RawPlay {
	raw := scrobble.RawPlay{
		ArtistName: t.Artist.Name,
		ArtistID:   t.Artist.MBID,
		AlbumTitle: t.Album.Title,
		AlbumID:    t.Album.MBID,
		TrackTitle: t.Name,
		TrackID:    t.MBID,
	}
	if t.Date != nil {
		raw.Timestamp = t.Date.UTS
	}
	return raw
}

func (t apiTrack) nowPlaying() bool {
	return t.Attr != nil && t.Attr.NowPlaying == "true"
}

// RecentTracksCount probes the first history page for the page-count
// metadata and derives an upper-bound play estimate. Any structural anomaly
// (missing attributes, non-numeric or negative values) degrades to an
// unknown estimate with a logged anomaly; it is never surfaced as an error.
func (c *Client) RecentTracksCount(ctx context.Context, opts HistoryOptions) Estimate {
	params := opts.params()
	params.Set("user", c.user)
	params.Set("page", "1")
	params.Set("limit", "1")

	var resp recentTracksResponse
	if err := c.request(ctx, "user.getRecentTracks", params, &resp); err != nil {
		util.WarnLog("Count probe failed: %v", err)
		c.logger.LogAnomaly("user.getRecentTracks", fmt.Sprintf("count probe failed: %v", err))
		return Estimate{}
	}

	attr := resp.RecentTracks.Attr
	if attr.TotalPages == "" || attr.PerPage == "" {
		util.WarnLog("Count probe response missing totalPages or perPage attributes")
		c.logger.LogAnomaly("user.getRecentTracks", "missing totalPages or perPage attributes")
		return Estimate{}
	}

	totalPages, err := strconv.Atoi(attr.TotalPages)
	if err != nil {
		util.WarnLog("Count probe returned invalid totalPages %q", attr.TotalPages)
		c.logger.LogAnomaly("user.getRecentTracks", fmt.Sprintf("invalid totalPages: %q", attr.TotalPages))
		return Estimate{}
	}
	perPage, err := strconv.Atoi(attr.PerPage)
	if err != nil {
		util.WarnLog("Count probe returned invalid perPage %q", attr.PerPage)
		c.logger.LogAnomaly("user.getRecentTracks", fmt.Sprintf("invalid perPage: %q", attr.PerPage))
		return Estimate{}
	}
	if totalPages < 0 || perPage < 0 {
		util.WarnLog("Count probe returned negative totalPages (%d) or perPage (%d)", totalPages, perPage)
		c.logger.LogAnomaly("user.getRecentTracks", "negative totalPages or perPage")
		return Estimate{}
	}

	estimate := totalPages * perPage
	util.DebugLog("Count probe: %d pages x %d per page = up to %d plays", totalPages, perPage, estimate)

	return Estimate{Known: true, Total: estimate}
}

// RecentTracks iterates the play history page by page, converting each entry
// to a raw record and passing it to yield in source order. A non-nil error
// from yield aborts the iteration and is returned unchanged, so callers can
// use sentinel errors as stop conditions. Transient upstream failures are
// absorbed by the retry layer; the first fatal error aborts the sequence.
func (c *Client) RecentTracks(ctx context.Context, opts HistoryOptions, yield func(scrobble.RawPlay) error) error {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page := opts.StartPage
	if page <= 0 {
		page = 1
	}

	baseParams := opts.params()
	baseParams.Set("user", c.user)
	baseParams.Set("limit", strconv.Itoa(pageSize))

	yielded := 0
	totalPages := -1

	for {
		params := url.Values{}
		for key, values := range baseParams {
			params[key] = values
		}
		params.Set("page", strconv.Itoa(page))

		if totalPages > 0 {
			util.InfoLog("Fetching page %d of %d", page, totalPages)
		} else {
			util.InfoLog("Fetching page %d", page)
		}

		var resp recentTracksResponse
		if err := c.request(ctx, "user.getRecentTracks", params, &resp); err != nil {
			return fmt.Errorf("failed to fetch page %d: %w", page, err)
		}

		// Learn the page count from the first response
		if totalPages < 0 {
			tp, err := strconv.Atoi(resp.RecentTracks.Attr.TotalPages)
			if err != nil || tp < 1 {
				tp = page
				c.logger.LogAnomaly("user.getRecentTracks",
					fmt.Sprintf("invalid totalPages %q, assuming single page", resp.RecentTracks.Attr.TotalPages))
			}
			totalPages = tp
			util.InfoLog("Total pages to fetch: %d", totalPages)
		}

		inPage := 0
		for _, track := range resp.RecentTracks.Track {
			// The now-playing entry has no timestamp and is not history yet
			if track.nowPlaying() {
				continue
			}
			if err := yield(track.raw()); err != nil {
				return err
			}
			yielded++
			inPage++
			if opts.Limit > 0 && yielded >= opts.Limit {
				util.InfoLog("Reached limit of %d records", opts.Limit)
				return nil
			}
		}

		c.logger.LogPage(page, inPage)
		util.DebugLog("Yielded %d records from page %d (total: %d)", inPage, page, yielded)

		page++
		if page > totalPages {
			util.InfoLog("Completed fetching all %d records", yielded)
			return nil
		}
	}
}
