package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/threadsync/internal/metrics"
	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/parser"
	"github.com/raphaelgruber/threadsync/internal/store"
)

var (
	_ store.KnowledgeStore = (*Client)(nil)
	_ store.Ledger         = (*Client)(nil)
)

type idRow struct {
	ID surrealmodels.RecordID `json:"id"`
}

type pageRow struct {
	ID             surrealmodels.RecordID   `json:"id"`
	ConversationID string                   `json:"conversation_id"`
	Title          string                   `json:"title"`
	Body           []blockRow               `json:"body"`
	LinkedAssets   []surrealmodels.RecordID `json:"linked_assets"`
	Created        time.Time                `json:"created"`
}

type blockRow struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func blockRows(blocks []models.Block) []map[string]any {
	rows := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		rows = append(rows, map[string]any{"type": string(b.Type), "text": b.Text})
	}
	return rows
}

func firstResult[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	return (*results)[0].Result
}

// FindPage looks a page up by conversation id.
func (c *Client) FindPage(ctx context.Context, conversationID string) (string, bool, error) {
	results, err := surrealdb.Query[[]idRow](ctx, c.db, `
		SELECT id FROM page WHERE conversation_id = $cid LIMIT 1
	`, map[string]any{"cid": conversationID})
	if err != nil {
		return "", false, fmt.Errorf("find page: %w", err)
	}
	rows := firstResult(results)
	if len(rows) == 0 {
		return "", false, nil
	}
	id, err := models.RecordIDString(rows[0].ID)
	if err != nil {
		return "", false, fmt.Errorf("find page: %w", err)
	}
	return id, true, nil
}

// CreatePage creates a page whose record id is the conversation id, or a
// random uuid for pages without one.
func (c *Client) CreatePage(ctx context.Context, input models.PageInput) (string, error) {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	id := input.ConversationID
	if id == "" {
		id = uuid.New().String()
	}

	content := map[string]any{
		"conversation_id": input.ConversationID,
		"title":           input.Title,
		"author":          input.Author,
		"body":            blockRows(input.Blocks),
	}
	if !input.PostedAt.IsZero() {
		content["posted_at"] = input.PostedAt
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("page", $id) CONTENT $content RETURN NONE
	`, map[string]any{"id": id, "content": content})
	if err != nil {
		return "", fmt.Errorf("%w: create page %q: %w", store.ErrStoreWrite, input.Title, wrapQueryError(err))
	}
	return id, nil
}

// AppendBlocks concatenates blocks onto the page body.
func (c *Client) AppendBlocks(ctx context.Context, pageID string, blocks []models.Block) error {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	results, err := queryWithRetry[[]idRow](ctx, c.db, `
		UPDATE page SET body = array::concat(body, $blocks)
		WHERE id = type::record("page", $id) RETURN id
	`, map[string]any{"id": pageID, "blocks": blockRows(blocks)})
	if err != nil {
		return fmt.Errorf("%w: append to %s: %w", store.ErrStoreWrite, pageID, err)
	}
	if len(firstResult(results)) == 0 {
		return fmt.Errorf("%w: %w: %s", store.ErrStoreWrite, store.ErrNotFound, pageID)
	}
	return nil
}

// ListPages returns pages in creation order.
func (c *Client) ListPages(ctx context.Context) ([]models.PageRef, error) {
	results, err := surrealdb.Query[[]pageRow](ctx, c.db, `
		SELECT id, title, created FROM page ORDER BY created ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	rows := firstResult(results)
	refs := make([]models.PageRef, 0, len(rows))
	for _, row := range rows {
		id, err := models.RecordIDString(row.ID)
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		refs = append(refs, models.PageRef{ID: id, Title: row.Title})
	}
	return refs, nil
}

// LinkAssets unions asset links into the page.
func (c *Client) LinkAssets(ctx context.Context, pageID string, assetIDs []string) error {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	links := make([]surrealmodels.RecordID, 0, len(assetIDs))
	for _, id := range assetIDs {
		links = append(links, surrealmodels.NewRecordID("asset", id))
	}

	results, err := queryWithRetry[[]idRow](ctx, c.db, `
		UPDATE page SET linked_assets = array::union(linked_assets, $assets)
		WHERE id = type::record("page", $id) RETURN id
	`, map[string]any{"id": pageID, "assets": links})
	if err != nil {
		return fmt.Errorf("%w: link assets to %s: %w", store.ErrStoreWrite, pageID, err)
	}
	if len(firstResult(results)) == 0 {
		return fmt.Errorf("%w: %w: %s", store.ErrStoreWrite, store.ErrNotFound, pageID)
	}
	return nil
}

// CreateAsset creates an asset record.
func (c *Client) CreateAsset(ctx context.Context, input models.AssetInput) (string, error) {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	id := uuid.New().String()
	content := map[string]any{
		"filename":     input.Filename,
		"url":          input.URL,
		"content_type": input.ContentType,
		"byte_size":    input.ByteSize,
	}
	if !input.PostedAt.IsZero() {
		content["posted_at"] = input.PostedAt
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("asset", $id) CONTENT $content RETURN NONE
	`, map[string]any{"id": id, "content": content})
	if err != nil {
		return "", fmt.Errorf("%w: create asset %q: %w", store.ErrStoreWrite, input.Filename, wrapQueryError(err))
	}
	return id, nil
}

// ReadAllText renders the page body as plain text.
func (c *Client) ReadAllText(ctx context.Context, pageID string) (string, error) {
	p, err := c.GetPage(ctx, pageID)
	if err != nil {
		return "", err
	}
	return parser.BlocksText(p.Body), nil
}

// GetPage returns a full page.
func (c *Client) GetPage(ctx context.Context, pageID string) (models.Page, error) {
	results, err := surrealdb.Query[[]pageRow](ctx, c.db, `
		SELECT * FROM type::record("page", $id)
	`, map[string]any{"id": pageID})
	if err != nil {
		return models.Page{}, fmt.Errorf("get page %s: %w", pageID, err)
	}
	rows := firstResult(results)
	if len(rows) == 0 {
		return models.Page{}, fmt.Errorf("%w: %s", store.ErrNotFound, pageID)
	}

	row := rows[0]
	p := models.Page{
		ID:             pageID,
		ConversationID: row.ConversationID,
		Title:          row.Title,
		CreatedAt:      row.Created,
		LinkedAssets:   make([]string, 0, len(row.LinkedAssets)),
	}
	for _, b := range row.Body {
		p.Body = append(p.Body, models.Block{Type: models.BlockType(b.Type), Text: b.Text})
	}
	for _, a := range row.LinkedAssets {
		id, err := models.RecordIDString(a)
		if err != nil {
			return models.Page{}, fmt.Errorf("get page %s: %w", pageID, err)
		}
		p.LinkedAssets = append(p.LinkedAssets, id)
	}
	return p, nil
}

// ListDoneIDs returns every recorded event id.
func (c *Client) ListDoneIDs(ctx context.Context) (map[string]struct{}, error) {
	results, err := surrealdb.Query[[]idRow](ctx, c.db, `SELECT id FROM done_record`, nil)
	if err != nil {
		return nil, fmt.Errorf("list done records: %w", err)
	}

	rows := firstResult(results)
	ids := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		id, err := models.RecordIDString(row.ID)
		if err != nil {
			return nil, fmt.Errorf("list done records: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// RecordDone creates done_record:<event id>. An existing record is success.
func (c *Client) RecordDone(ctx context.Context, eventID, pageID string) error {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	_, err := queryWithRetry[any](ctx, c.db, `
		CREATE type::record("done_record", $id) CONTENT { page_id: $page } RETURN NONE
	`, map[string]any{"id": eventID, "page": pageID})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("%w: record %s: %w", store.ErrLedgerWrite, eventID, err)
	}
	return nil
}
