// Package report writes an append-only JSONL audit trail of record changes.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/franz/pjsk-record/internal/store"
)

// EventType represents the type of event
type EventType string

const (
	EventSubmit EventType = "submit"
	EventAmend  EventType = "amend"
	EventReject EventType = "reject"
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

// Event represents a single change to the record table
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	RecordKey  string            `json:"record_key,omitempty"`
	User       string            `json:"user,omitempty"`
	SongID     int               `json:"song_id,omitempty"`
	Difficulty string            `json:"difficulty,omitempty"`
	Accuracy   float64           `json:"accuracy,omitempty"`
	Rating     float64           `json:"rating,omitempty"`
	Action     string            `json:"action,omitempty"`
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. A nil *EventLogger is valid
// and discards everything.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates events-<timestamp>.jsonl in outputDir.
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	// Append so two processes started in the same second share the file
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogSubmit logs a newly stored record
func (l *EventLogger) LogSubmit(r *store.Record, accuracy, rating float64) error {
	return l.Log(&Event{
		Level:      LevelInfo,
		Event:      EventSubmit,
		RecordKey:  r.Key().String(),
		User:       r.User,
		SongID:     r.SongID,
		Difficulty: r.Difficulty,
		Accuracy:   accuracy,
		Rating:     rating,
		Extra:      countsExtra(r),
	})
}

// LogAmend logs an in-place change, keeping the previous difficulty and counts
func (l *EventLogger) LogAmend(before, after *store.Record) error {
	extra := countsExtra(after)
	extra["previous_difficulty"] = before.Difficulty
	extra["previous_counts"] = fmt.Sprintf("%d/%d/%d/%d/%d",
		before.Perfect, before.Great, before.Good, before.Bad, before.Miss)

	return l.Log(&Event{
		Level:      LevelInfo,
		Event:      EventAmend,
		RecordKey:  after.Key().String(),
		User:       after.User,
		SongID:     after.SongID,
		Difficulty: after.Difficulty,
		Extra:      extra,
	})
}

// LogReject logs a submission or amendment that was not stored. recordKey
// is empty for submissions; songID is zero when it is not known.
func (l *EventLogger) LogReject(action EventType, recordKey, user string, songID int, err error) error {
	return l.Log(&Event{
		Level:     LevelWarning,
		Event:     EventReject,
		Action:    string(action),
		RecordKey: recordKey,
		User:      user,
		SongID:    songID,
		Error:     err.Error(),
	})
}

func countsExtra(r *store.Record) map[string]string {
	return map[string]string{
		"perfect": fmt.Sprintf("%d", r.Perfect),
		"great":   fmt.Sprintf("%d", r.Great),
		"good":    fmt.Sprintf("%d", r.Good),
		"bad":     fmt.Sprintf("%d", r.Bad),
		"miss":    fmt.Sprintf("%d", r.Miss),
	}
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
