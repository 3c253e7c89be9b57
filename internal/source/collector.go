package source

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/raphaelgruber/threadsync/internal/metrics"
	"github.com/raphaelgruber/threadsync/internal/models"
)

// Collector fetches and orders events from a Provider.
type Collector struct {
	provider Provider
	selfID   string
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewCollector creates a collector. Events authored by selfID are dropped;
// an empty selfID keeps everything.
func NewCollector(provider Provider, selfID string, collector *metrics.Collector, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		provider: provider,
		selfID:   selfID,
		metrics:  collector,
		logger:   logger,
	}
}

// FetchEvents returns every event in container posted at or after since,
// sorted by CreatedAt, then Sequence, then ID.
func (c *Collector) FetchEvents(ctx context.Context, container string, since time.Time) ([]models.Event, error) {
	defer c.metrics.Since(metrics.OpSourceRead, time.Now())

	kind, err := c.provider.ContainerKind(ctx, container)
	if err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, container)
		}
		return nil, fmt.Errorf("resolve container %s: %w", container, err)
	}

	var events []models.Event
	switch kind {
	case models.KindThreaded:
		events, err = c.fetchThreaded(ctx, container, since)
	default:
		events, err = c.provider.ListEvents(ctx, container, since)
		if errors.Is(err, ErrContainerNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, container)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("list events in %s: %w", container, err)
	}

	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if c.selfID != "" && ev.AuthorID == c.selfID {
			continue
		}
		if ev.CreatedAt.Before(since) {
			continue
		}
		out = append(out, ev)
	}
	SortEvents(out)

	c.logger.Debug("events collected",
		"container", container,
		"kind", kind.String(),
		"fetched", len(events),
		"kept", len(out))
	return out, nil
}

func (c *Collector) fetchThreaded(ctx context.Context, container string, since time.Time) ([]models.Event, error) {
	threads, err := c.provider.ListThreads(ctx, container, since)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	var events []models.Event
	for _, th := range threads {
		if th.Archived && th.LastActivityAt.Before(since) {
			continue
		}
		threadEvents, err := c.provider.ListEvents(ctx, th.ID, since)
		if err != nil {
			if errors.Is(err, ErrContainerNotFound) {
				// Deleted between listing and reading.
				c.logger.Warn("thread vanished", "thread_id", th.ID)
				continue
			}
			return nil, fmt.Errorf("thread %s: %w", th.ID, err)
		}
		for _, ev := range threadEvents {
			ev.ConversationID = th.ID
			ev.ConversationTitle = th.Name
			events = append(events, ev)
		}
	}
	return events, nil
}

// SortEvents orders events by CreatedAt, Sequence, then ID.
func SortEvents(events []models.Event) {
	slices.SortStableFunc(events, func(a, b models.Event) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		if n := cmp.Compare(a.Sequence, b.Sequence); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
