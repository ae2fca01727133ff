package store

// Schema v1 - Initial database schema
//
// Entity tables in foreign-key order: artists <- albums <- tracks <- plays.
// Ids are MusicBrainz ids, or "md5:..." values synthesized from name text
// when the upstream source omits them.
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS artists (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS albums (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  artist_id TEXT NOT NULL REFERENCES artists(id)
);

CREATE INDEX IF NOT EXISTS idx_albums_artist_id ON albums(artist_id);

CREATE TABLE IF NOT EXISTS tracks (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  album_id TEXT NOT NULL REFERENCES albums(id)
);

CREATE INDEX IF NOT EXISTS idx_tracks_album_id ON tracks(album_id);

-- One row per listen event, keyed by the (timestamp, track) pair.
-- Timestamps are stored as RFC 3339 UTC strings.
CREATE TABLE IF NOT EXISTS plays (
  timestamp TEXT NOT NULL,
  track_id TEXT NOT NULL REFERENCES tracks(id),
  PRIMARY KEY (timestamp, track_id)
);

CREATE INDEX IF NOT EXISTS idx_plays_track_id ON plays(track_id);
`
