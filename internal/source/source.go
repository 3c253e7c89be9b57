// Package source reads conversational events from a messaging system and
// normalizes them into an ordered stream.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/raphaelgruber/threadsync/internal/models"
)

var (
	// ErrContainerNotFound is returned by providers when a channel or thread
	// does not exist or is not visible.
	ErrContainerNotFound = errors.New("container not found")

	// ErrSourceUnavailable is returned by the collector when the target
	// container cannot be located.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Provider is the read-only surface of a messaging system.
type Provider interface {
	// ContainerKind reports whether the container is flat or threaded.
	ContainerKind(ctx context.Context, containerID string) (models.ContainerKind, error)

	// ListThreads returns active threads and archived threads of a
	// threaded container. Archived threads may be returned regardless of
	// activity; the collector filters them.
	ListThreads(ctx context.Context, containerID string, since time.Time) ([]models.Thread, error)

	// ListEvents returns events posted in the container at or after since.
	// When the container is itself a thread the events carry its id as
	// ConversationID.
	ListEvents(ctx context.Context, containerID string, since time.Time) ([]models.Event, error)
}

// StartOfDay returns local midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
