// Package realtime delivers row change events on the jobs table to in-process
// subscribers. A single Source connection per process feeds a Hub, which fans
// events out to filtered, buffered subscriptions.
package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	// EventAll matches every change type in a Filter.
	EventAll EventType = "*"
)

// ErrMalformedEvent marks a payload that could not be decoded. The stream is
// still usable after it.
var ErrMalformedEvent = errors.New("realtime: malformed change event")

// ChangeEvent is one row change as published by the database trigger or by a
// worker publishing to Redis.
type ChangeEvent struct {
	Table           string          `json:"table"`
	Type            EventType       `json:"type"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record"`
	Truncated       bool            `json:"truncated"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

// DecodeChangeEvent parses a JSON change payload.
func DecodeChangeEvent(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Table == "" {
		return ChangeEvent{}, fmt.Errorf("%w: missing table", ErrMalformedEvent)
	}
	switch ev.Type {
	case EventInsert, EventUpdate, EventDelete:
	default:
		return ChangeEvent{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, ev.Type)
	}
	return ev, nil
}

// RowID returns the primary key of the changed row, taken from the new record
// or, for deletes, the old one.
func (e ChangeEvent) RowID() string {
	if id := recordID(e.Record); id != "" {
		return id
	}
	return recordID(e.OldRecord)
}

// HasRecord reports whether the event carries a new row image.
func (e ChangeEvent) HasRecord() bool {
	return !isNull(e.Record)
}

func recordID(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var row struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return ""
	}
	return row.ID
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Filter selects the events a subscription receives. Empty Event means
// EventAll; empty RowID means every row.
type Filter struct {
	Table string
	Event EventType
	RowID string
}

func (f Filter) Matches(e ChangeEvent) bool {
	if f.Table != e.Table {
		return false
	}
	if f.Event != "" && f.Event != EventAll && f.Event != e.Type {
		return false
	}
	if f.RowID != "" && f.RowID != e.RowID() {
		return false
	}
	return true
}

func (f Filter) String() string {
	ev := f.Event
	if ev == "" {
		ev = EventAll
	}
	if f.RowID == "" {
		return fmt.Sprintf("%s:%s", f.Table, ev)
	}
	return fmt.Sprintf("%s:%s:id=%s", f.Table, ev, f.RowID)
}
