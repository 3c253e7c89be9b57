package postgres

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/threadsync/internal/store"
)

// Ledger implements store.Ledger on the done_records table.
type Ledger struct {
	db *DB
}

var _ store.Ledger = (*Ledger)(nil)

// NewLedger creates a ledger on db.
func NewLedger(db *DB) *Ledger { return &Ledger{db: db} }

// ListDoneIDs returns every recorded event id.
func (l *Ledger) ListDoneIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := l.db.Pool.Query(ctx, "SELECT event_id FROM done_records")
	if err != nil {
		return nil, fmt.Errorf("list done records: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan done record: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list done records: %w", err)
	}
	return ids, nil
}

// RecordDone inserts with ON CONFLICT DO NOTHING; the first page id wins.
func (l *Ledger) RecordDone(ctx context.Context, eventID, pageID string) error {
	_, err := l.db.Pool.Exec(ctx,
		"INSERT INTO done_records (event_id, page_id) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, pageID)
	if err != nil {
		return fmt.Errorf("%w: record %s: %w", store.ErrLedgerWrite, eventID, err)
	}
	return nil
}
