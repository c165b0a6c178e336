// Package ui provides the Bubble Tea TUI for reviewing samples.
package ui

import "github.com/JackEngelmann/nlpanno/internal/sample"

// SessionOpened is sent when the initial task and sample loads finish.
type SessionOpened struct {
	Err error
}

// SessionChanged is sent from background work (patch or fetch resolved)
// so the view re-reads session state.
type SessionChanged struct{}

// StatusChanged is sent when the polled server status changes.
type StatusChanged struct {
	Status sample.Status
}

// Retried is sent when a retry finishes.
type Retried struct {
	Err error
}
