// Package store defines the knowledge store and dedup ledger contracts
// shared by every backend.
package store

import (
	"context"
	"errors"

	"github.com/raphaelgruber/threadsync/internal/models"
)

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrStoreWrite indicates a page create, append or link failed.
	// The event is left unmarked and retried on the next run.
	ErrStoreWrite = errors.New("store write failed")

	// ErrLedgerWrite indicates a done record could not be written.
	// The event is reprocessed on the next run.
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrNotFound indicates the requested page does not exist.
	ErrNotFound = errors.New("page not found")
)

// KnowledgeStore is the document store that pages and assets live in.
type KnowledgeStore interface {
	// FindPage returns the page id for a conversation, or found=false.
	FindPage(ctx context.Context, conversationID string) (pageID string, found bool, err error)
	// CreatePage creates a page seeded with input.Blocks.
	CreatePage(ctx context.Context, input models.PageInput) (string, error)
	// AppendBlocks appends blocks to the end of a page body, in order.
	AppendBlocks(ctx context.Context, pageID string, blocks []models.Block) error
	// ListPages enumerates every page as {id, title}.
	ListPages(ctx context.Context) ([]models.PageRef, error)
	// LinkAssets adds asset ids to the page's linked assets (set union).
	LinkAssets(ctx context.Context, pageID string, assetIDs []string) error
	// CreateAsset creates an asset record and returns its id.
	CreateAsset(ctx context.Context, input models.AssetInput) (string, error)
	// ReadAllText returns the page body as plain text.
	ReadAllText(ctx context.Context, pageID string) (string, error)
}

// Ledger records which source events were already projected.
type Ledger interface {
	// ListDoneIDs returns the ids of every projected event.
	ListDoneIDs(ctx context.Context) (map[string]struct{}, error)
	// RecordDone marks eventID as projected into pageID.
	// Recording an id twice is a no-op.
	RecordDone(ctx context.Context, eventID, pageID string) error
}
