package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/store"
)

// ErrRelay indicates an attachment could not be relocated or recorded.
var ErrRelay = errors.New("attachment relay failed")

// Relocator copies a binary to durable storage and returns its public URL.
type Relocator interface {
	Relocate(ctx context.Context, sourceURL, filename, contentType string) (string, error)
}

// RelayFailure describes one skipped attachment.
type RelayFailure struct {
	EventID  string
	Filename string
	Err      error
}

// Relay turns attachments into asset records.
type Relay struct {
	relocator Relocator
	store     store.KnowledgeStore
	logger    *slog.Logger
}

// NewRelay creates a relay.
func NewRelay(relocator Relocator, st store.KnowledgeStore, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{relocator: relocator, store: st, logger: logger}
}

// Relocate moves one attachment and creates its asset record. No record is
// created if relocation fails.
func (r *Relay) Relocate(ctx context.Context, a models.Attachment, postedAt time.Time) (models.Asset, error) {
	url, err := r.relocator.Relocate(ctx, a.SourceURL, a.Filename, a.ContentType)
	if err != nil {
		return models.Asset{}, fmt.Errorf("%w: %s: %w", ErrRelay, a.Filename, err)
	}

	input := models.AssetInput{
		Filename:    a.Filename,
		URL:         url,
		ContentType: a.ContentType,
		ByteSize:    a.ByteSize,
		PostedAt:    postedAt,
	}
	id, err := r.store.CreateAsset(ctx, input)
	if err != nil {
		return models.Asset{}, fmt.Errorf("%w: %s: %w", ErrRelay, a.Filename, err)
	}

	return models.Asset{
		ID:          id,
		Filename:    input.Filename,
		URL:         input.URL,
		ContentType: input.ContentType,
		ByteSize:    input.ByteSize,
		PostedAt:    input.PostedAt,
	}, nil
}

// RelayAll relays every attachment in order. Failed attachments are
// skipped and returned as failures.
func (r *Relay) RelayAll(ctx context.Context, attachments []models.Attachment, postedAt time.Time) ([]models.Asset, []RelayFailure) {
	var (
		assets   []models.Asset
		failures []RelayFailure
	)
	for _, a := range attachments {
		asset, err := r.Relocate(ctx, a, postedAt)
		if err != nil {
			r.logger.Warn("attachment skipped", "filename", a.Filename, "error", err)
			failures = append(failures, RelayFailure{Filename: a.Filename, Err: err})
			continue
		}
		assets = append(assets, asset)
	}
	return assets, failures
}
