package scrobble

import (
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scrobbled/scrobbled/internal/store"
	"github.com/scrobbled/scrobbled/internal/util"
)

// UnknownAlbum is the placeholder title used when a play carries no album
// information
const UnknownAlbum = "(unknown album)"

// RawPlay is one listen event as delivered by an upstream source or an import
// file, before normalization. Only ArtistName, TrackTitle and Timestamp are
// required; missing ids are synthesized and a missing album falls back to the
// unknown-album placeholder.
type RawPlay struct {
	ArtistName string
	ArtistID   string
	AlbumTitle string
	AlbumID    string
	TrackTitle string
	TrackID    string
	Timestamp  string
}

// Record is one normalized listen event: the four linked entities sharing
// natural keys, ready for upserting in foreign-key order
type Record struct {
	Artist store.Artist
	Album  store.Album
	Track  store.Track
	Play   store.Play
}

// SynthesizeIDs derives stable md5-based ids for an artist, album and track
// from their name text. The chaining (album id covers the artist id, track id
// covers the album id) keeps identically-titled albums by different artists
// distinct.
func SynthesizeIDs(artistName, albumTitle, trackTitle string) (artistID, albumID, trackID string) {
	artistID = "md5:" + fmt.Sprintf("%x", md5.Sum([]byte(artistName)))

	h := md5.New()
	h.Write([]byte(artistID))
	h.Write([]byte(albumTitle))
	albumID = "md5:" + fmt.Sprintf("%x", h.Sum(nil))

	h = md5.New()
	h.Write([]byte(albumID))
	h.Write([]byte(trackTitle))
	trackID = "md5:" + fmt.Sprintf("%x", h.Sum(nil))

	return artistID, albumID, trackID
}

// Normalize decomposes a raw play into its four entities. Returns
// util.ErrMalformedRecord (wrapped) when a required field is missing or the
// timestamp cannot be parsed.
func Normalize(raw RawPlay) (Record, error) {
	artistName := strings.TrimSpace(raw.ArtistName)
	trackTitle := strings.TrimSpace(raw.TrackTitle)
	albumTitle := strings.TrimSpace(raw.AlbumTitle)

	if artistName == "" {
		return Record{}, fmt.Errorf("%w: missing required field: artist", util.ErrMalformedRecord)
	}
	if trackTitle == "" {
		return Record{}, fmt.Errorf("%w: missing required field: track", util.ErrMalformedRecord)
	}
	if raw.Timestamp == "" {
		return Record{}, fmt.Errorf("%w: missing required field: timestamp", util.ErrMalformedRecord)
	}

	timestamp, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid timestamp: %v", util.ErrMalformedRecord, err)
	}

	if albumTitle == "" {
		albumTitle = UnknownAlbum
	}

	artistID := raw.ArtistID
	albumID := raw.AlbumID
	trackID := raw.TrackID
	if artistID == "" || albumID == "" || trackID == "" {
		synthArtist, synthAlbum, synthTrack := SynthesizeIDs(artistName, albumTitle, trackTitle)
		if artistID == "" {
			artistID = synthArtist
		}
		if albumID == "" {
			albumID = synthAlbum
		}
		if trackID == "" {
			trackID = synthTrack
		}
	}

	return Record{
		Artist: store.Artist{ID: artistID, Name: artistName},
		Album:  store.Album{ID: albumID, Title: albumTitle, ArtistID: artistID},
		Track:  store.Track{ID: trackID, Title: trackTitle, AlbumID: albumID},
		Play:   store.Play{TrackID: trackID, Timestamp: timestamp},
	}, nil
}

// fieldAliases maps canonical field names to the spellings accepted in
// import files
var fieldAliases = map[string][]string{
	"timestamp":   {"timestamp", "time", "played_at", "date", "datetime", "when"},
	"artist":      {"artist", "artist_name", "artistname"},
	"album":       {"album", "album_title", "albumtitle", "album_name"},
	"track":       {"track", "track_title", "tracktitle", "song", "title", "track_name", "name"},
	"artist_mbid": {"artist_mbid", "artist_id"},
	"album_mbid":  {"album_mbid", "album_id"},
	"track_mbid":  {"track_mbid", "track_id"},
}

// NormalizeFieldName maps a field name to its canonical form, or returns it
// unchanged if unknown
func NormalizeFieldName(field string) string {
	fieldLower := strings.ToLower(strings.TrimSpace(field))
	for canonical, aliases := range fieldAliases {
		for _, alias := range aliases {
			if fieldLower == alias {
				return canonical
			}
		}
	}
	return field
}

// RawFromFields builds a RawPlay from a map of field name to value,
// resolving field-name aliases
func RawFromFields(fields map[string]string) RawPlay {
	normalized := make(map[string]string, len(fields))
	for key, value := range fields {
		normalized[NormalizeFieldName(key)] = value
	}

	return RawPlay{
		ArtistName: normalized["artist"],
		ArtistID:   normalized["artist_mbid"],
		AlbumTitle: normalized["album"],
		AlbumID:    normalized["album_mbid"],
		TrackTitle: normalized["track"],
		TrackID:    normalized["track_mbid"],
		Timestamp:  normalized["timestamp"],
	}
}

// timestampFormats are tried in order when a timestamp is not a Unix epoch
var timestampFormats = []string{
	// ISO 8601 / RFC 3339
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	// Common formats
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	// Date only (assumes 00:00:00)
	"2006-01-02",
	"2006/01/02",
}

// ParseTimestamp parses a timestamp in Unix-epoch, RFC 3339 or common
// date-time formats. Naive timestamps are interpreted as UTC; aware ones are
// converted to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	// Unix timestamp first (seconds, possibly fractional)
	if epoch, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), nil
	}

	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", s)
}
