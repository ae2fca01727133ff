package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventFetch     EventType = "fetch"
	EventRetry     EventType = "retry"
	EventPage      EventType = "page"
	EventAnomaly   EventType = "anomaly"
	EventFlush     EventType = "flush"
	EventSkip      EventType = "skip"
	EventDuplicate EventType = "duplicate"
	EventRecord    EventType = "record"
	EventIndex     EventType = "index"
	EventRebuild   EventType = "rebuild"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in an ingestion run
type Event struct {
	Timestamp time.Time         `json:"ts"`
	RunID     string            `json:"run_id"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	Method    string            `json:"method,omitempty"`
	Page      int               `json:"page,omitempty"`
	Attempt   int               `json:"attempt,omitempty"`
	Count     int               `json:"count,omitempty"`
	TrackID   string            `json:"track_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. Every event is stamped with the
// run id so interleaved log files can be attributed to one ingestion run.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    uuid.NewString(),
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	// Filter by minimum level
	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.RunID = l.runID

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogFetch logs the outcome of one upstream fetch
func (l *EventLogger) LogFetch(method string, page, attempts int, duration time.Duration, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventFetch,
		Method:   method,
		Page:     page,
		Attempt:  attempts,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogRetry logs one retried attempt against the upstream source
func (l *EventLogger) LogRetry(method string, attempt int, wait time.Duration, err error) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    EventRetry,
		Method:   method,
		Attempt:  attempt,
		Duration: wait.Milliseconds(),
		Error:    err.Error(),
	})
}

// LogPage logs a fully consumed history page
func (l *EventLogger) LogPage(page, records int) error {
	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventPage,
		Page:  page,
		Count: records,
	})
}

// LogAnomaly logs a malformed upstream response that was degraded to a
// default instead of raised
func (l *EventLogger) LogAnomaly(method, reason string) error {
	return l.Log(&Event{
		Level:  LevelWarning,
		Event:  EventAnomaly,
		Method: method,
		Reason: reason,
	})
}

// LogFlush logs one committed batch
func (l *EventLogger) LogFlush(records int, duration time.Duration) error {
	return l.Log(&Event{
		Level:    LevelDebug,
		Event:    EventFlush,
		Count:    records,
		Duration: duration.Milliseconds(),
	})
}

// LogDuplicate logs a play skipped because its (track, timestamp) pair
// already exists
func (l *EventLogger) LogDuplicate(trackID string) error {
	return l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventDuplicate,
		TrackID: trackID,
	})
}

// LogRecordError logs a malformed input record
func (l *EventLogger) LogRecordError(reason string, err error) error {
	return l.Log(&Event{
		Level:  LevelWarning,
		Event:  EventRecord,
		Reason: reason,
		Error:  err.Error(),
	})
}

// LogIndex logs a search-index ensure pass
func (l *EventLogger) LogIndex(triggers int) error {
	return l.Log(&Event{
		Level: LevelDebug,
		Event: EventIndex,
		Count: triggers,
	})
}

// LogRebuild logs a full search-index rebuild
func (l *EventLogger) LogRebuild(rows int, duration time.Duration) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventRebuild,
		Count:    rows,
		Duration: duration.Milliseconds(),
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Error: err.Error(),
	})
}

// RunID returns the id stamped on this logger's events
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
