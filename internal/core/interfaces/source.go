// Package interfaces defines the contracts between the dispatch engine and
// its collaborators, so each side can be exercised against fakes in tests.
package interfaces

import (
	"github.com/direwatch/direwatch/pkg/models"
)

// EventSource produces raw filesystem-change notifications for directories
// registered at runtime. A subscription is per caller: two jobs watching the
// same directory hold two subscriptions, released independently.
type EventSource interface {
	// Subscribe registers a watch on an absolute directory path
	Subscribe(path string) error

	// Unsubscribe releases one subscription on the path
	Unsubscribe(path string) error

	// Events returns the channel delivering raw notifications
	Events() <-chan models.RawEvent

	// Errors returns the channel delivering source errors, including
	// kernel queue overflows
	Errors() <-chan error

	// Close stops the source and releases all watches
	Close() error
}

// RunRecorder persists execution history records. The executor treats it as
// optional; a nil recorder disables history.
type RunRecorder interface {
	// Save stores one finished run record
	Save(run *models.Run) error
}
