// Package otel records structured events for a review session.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously through a buffered channel drained by one background
// goroutine. An optional RingBuffer keeps recent events in memory for the
// debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Stream fetches
	KindLoadStart     EventKind = "stream.load_start"
	KindLoadComplete  EventKind = "stream.load_complete"
	KindLoadError     EventKind = "stream.load_error"
	KindLoadCoalesced EventKind = "stream.load_coalesced"
	KindLoadDiscarded EventKind = "stream.load_discarded"
	KindExhausted     EventKind = "stream.exhausted"

	// Stream label updates
	KindPatchStart     EventKind = "stream.patch_start"
	KindPatchComplete  EventKind = "stream.patch_complete"
	KindPatchError     EventKind = "stream.patch_error"
	KindPatchDiscarded EventKind = "stream.patch_discarded"

	// Task and server status
	KindTaskLoaded    EventKind = "task.loaded"
	KindTaskError     EventKind = "task.error"
	KindStatusChanged EventKind = "status.changed"
	KindStatusError   EventKind = "status.error"

	// Navigation
	KindNavNext     EventKind = "nav.next"
	KindNavPrevious EventKind = "nav.previous"
	KindNavArmed    EventKind = "nav.armed"

	// System
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "stream", "session", "status", "ui"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for the whole run
	TaskID    string         `json:"task,omitempty"`
	SampleID  string         `json:"sample,omitempty"`
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
