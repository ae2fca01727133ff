package scrobble

import (
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/scrobbled/scrobbled/internal/report"
	"github.com/scrobbled/scrobbled/internal/store"
	"github.com/scrobbled/scrobbled/internal/util"
)

// DefaultBatchSize is the number of records buffered before a flush. Batch
// size only affects write granularity, never the final store contents.
const DefaultBatchSize = 100

// Config holds pipeline configuration
type Config struct {
	Store     *store.Store
	BatchSize int

	// SkipErrors counts malformed records instead of aborting the run
	SkipErrors bool

	// SkipDuplicates skips plays whose (track, timestamp) pair already
	// exists, store-wide: the seen set is seeded from the plays table and
	// extended as records arrive
	SkipDuplicates bool

	// DryRun executes the full normalize path but suppresses all writes
	DryRun bool

	// Limit stops the pipeline after this many added records (0 = unlimited)
	Limit int

	// Sample keeps each record with this probability (0 disables sampling);
	// Seed makes sampling reproducible
	Sample float64
	Seed   int64

	Logger *report.EventLogger
}

// Result accumulates the outcome of one pipeline run. Counts survive a
// failed run so partial progress is never silently lost.
type Result struct {
	Processed    int
	Sampled      int
	Added        int
	Skipped      int
	Errors       []string
	LimitReached bool
}

// Pipeline buffers raw play records, normalizes them and flushes batched
// upserts to the store in foreign-key order: artists, then albums, then
// tracks, then plays, all inside one transaction per batch.
type Pipeline struct {
	cfg    Config
	buf    []Record
	seen   map[[2]string]bool
	rng    *rand.Rand
	result Result
	closed bool
}

// NewPipeline creates a pipeline. When SkipDuplicates is set the existing
// (track, timestamp) pairs are loaded from the store up front.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: pipeline requires a store", util.ErrInvalidConfig)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Sample < 0 || cfg.Sample > 1 {
		return nil, fmt.Errorf("%w: sample must be between 0 and 1", util.ErrInvalidConfig)
	}

	p := &Pipeline{
		cfg: cfg,
		buf: make([]Record, 0, cfg.BatchSize),
	}

	if cfg.Sample > 0 {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		p.rng = rand.New(rand.NewSource(seed))
	}

	if cfg.SkipDuplicates {
		seen, err := cfg.Store.PlayKeys()
		if err != nil {
			return nil, fmt.Errorf("failed to load existing plays: %w", err)
		}
		p.seen = seen
		util.DebugLog("Loaded %d existing plays for duplicate detection", len(seen))
	}

	return p, nil
}

// Add processes one raw record: normalize, apply sampling, duplicate and
// limit policies, and buffer for the next flush. Returns
// util.ErrLimitReached once the configured limit is hit; callers should stop
// feeding and Close.
func (p *Pipeline) Add(raw RawPlay) error {
	p.result.Processed++

	if p.rng != nil {
		if p.rng.Float64() >= p.cfg.Sample {
			return nil
		}
		p.result.Sampled++
	}

	if p.cfg.Limit > 0 && p.result.Added+len(p.buf) >= p.cfg.Limit {
		p.result.LimitReached = true
		return util.ErrLimitReached
	}

	rec, err := Normalize(raw)
	if err != nil {
		p.result.Errors = append(p.result.Errors, err.Error())
		p.cfg.Logger.LogRecordError(fmt.Sprintf("record %d", p.result.Processed), err)
		if p.cfg.SkipErrors {
			return nil
		}
		return err
	}

	if p.cfg.SkipDuplicates {
		key := store.PlayKey(rec.Play.TrackID, rec.Play.Timestamp)
		if p.seen[key] {
			p.result.Skipped++
			p.cfg.Logger.LogDuplicate(rec.Play.TrackID)
			return nil
		}
		p.seen[key] = true
	}

	p.buf = append(p.buf, rec)
	if len(p.buf) >= p.cfg.BatchSize {
		return p.flush()
	}

	return nil
}

// flush commits the buffered batch as one transaction. Within the batch each
// entity is deduplicated by natural key with last-write-wins semantics, so
// batch size is bounded by unique-entity count rather than raw-record count.
func (p *Pipeline) flush() error {
	if len(p.buf) == 0 {
		return nil
	}

	batch := p.buf
	p.buf = p.buf[:0]

	artists := dedupe(batch, func(r Record) (string, store.Artist) { return r.Artist.ID, r.Artist })
	albums := dedupe(batch, func(r Record) (string, store.Album) { return r.Album.ID, r.Album })
	tracks := dedupe(batch, func(r Record) (string, store.Track) { return r.Track.ID, r.Track })
	plays := make([]store.Play, 0, len(batch))
	for _, r := range batch {
		plays = append(plays, r.Play)
	}

	if p.cfg.DryRun {
		p.result.Added += len(batch)
		util.DebugLog("Dry run: would flush %d records (%d artists, %d albums, %d tracks)",
			len(batch), len(artists), len(albums), len(tracks))
		return nil
	}

	start := time.Now()

	err := p.cfg.Store.Transaction(func(tx *sql.Tx) error {
		// Upsert order matters: targets before dependents, so the
		// foreign-key chain holds at every commit
		if err := p.cfg.Store.UpsertArtists(tx, artists); err != nil {
			return err
		}
		if err := p.cfg.Store.UpsertAlbums(tx, albums); err != nil {
			return err
		}
		if err := p.cfg.Store.UpsertTracks(tx, tracks); err != nil {
			return err
		}
		if _, err := p.cfg.Store.InsertPlays(tx, plays); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		p.cfg.Logger.LogError(report.EventFlush, err)
		return fmt.Errorf("batch flush failed: %w", err)
	}

	p.result.Added += len(batch)
	p.cfg.Logger.LogFlush(len(batch), time.Since(start))
	util.DebugLog("Flushed %d records in %v", len(batch), time.Since(start).Round(time.Millisecond))

	return nil
}

// dedupe collapses a batch to unique entities by key, keeping the last
// occurrence's attributes
func dedupe[T any](batch []Record, extract func(Record) (string, T)) []T {
	byKey := make(map[string]int, len(batch))
	out := make([]T, 0, len(batch))
	for _, r := range batch {
		key, value := extract(r)
		if i, ok := byKey[key]; ok {
			out[i] = value
			continue
		}
		byKey[key] = len(out)
		out = append(out, value)
	}
	return out
}

// Close flushes the trailing partial batch and re-declares the search index
// triggers, then returns the accumulated result. Ensuring the index is a
// post-condition of every write phase, not an optional extra step.
func (p *Pipeline) Close() (*Result, error) {
	if p.closed {
		return &p.result, nil
	}
	p.closed = true

	if err := p.flush(); err != nil {
		return &p.result, err
	}

	if !p.cfg.DryRun {
		if err := p.cfg.Store.EnsureSearchIndex(); err != nil {
			return &p.result, fmt.Errorf("failed to ensure search index: %w", err)
		}
		if triggers, err := p.cfg.Store.SearchTriggerCount(); err == nil {
			p.cfg.Logger.LogIndex(triggers)
		}
	}

	return &p.result, nil
}

// Result returns the counts accumulated so far, useful when a run aborts
// with an error
func (p *Pipeline) Result() *Result {
	return &p.result
}
