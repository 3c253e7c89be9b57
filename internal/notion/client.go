// Package notion stores pages, assets and done records in Notion databases.
package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/raphaelgruber/threadsync/internal/metrics"
	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/parser"
	"github.com/raphaelgruber/threadsync/internal/rest"
	"github.com/raphaelgruber/threadsync/internal/store"
)

const (
	// DefaultBaseURL is the public Notion API host.
	DefaultBaseURL = "https://api.notion.com"
	// APIVersion is the Notion-Version header sent with every request.
	APIVersion = "2022-06-28"
)

// Schema names the database properties. Defaults match the databases the
// sync bot was originally deployed against.
type Schema struct {
	FormTitle       string
	FormThreadID    string
	FormPostedAt    string
	FormAuthor      string
	FormAssets      string
	AssetTitle      string
	AssetURL        string
	AssetType       string
	AssetSize       string
	AssetPostedAt   string
	DoneEventID     string
	DoneRelatedPage string
}

// DefaultSchema returns the default property names.
func DefaultSchema() Schema {
	return Schema{
		FormTitle:       "名前",
		FormThreadID:    "スレッドID",
		FormPostedAt:    "投稿日時",
		FormAuthor:      "投稿者",
		FormAssets:      "関連アセット",
		AssetTitle:      "ファイル名",
		AssetURL:        "ファイルURL",
		AssetType:       "ファイル種別",
		AssetSize:       "ファイルサイズ",
		AssetPostedAt:   "投稿日時",
		DoneEventID:     "メッセージID",
		DoneRelatedPage: "関連スレッド",
	}
}

// Options configures a Client.
type Options struct {
	APIKey           string
	BaseURL          string
	FormDatabaseID   string
	AssetsDatabaseID string
	DoneDatabaseID   string
	Schema           *Schema
	HTTPClient       *http.Client
	// Limit paces requests; zero means the API average of 3 per second.
	Limit   rate.Limit
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Client implements store.KnowledgeStore and store.Ledger on Notion.
type Client struct {
	api     *rest.Client
	schema  Schema
	formDB  string
	assetDB string
	doneDB  string
	metrics *metrics.Collector
	logger  *slog.Logger
}

var (
	_ store.KnowledgeStore = (*Client)(nil)
	_ store.Ledger         = (*Client)(nil)
)

// New creates a Notion client.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	schema := DefaultSchema()
	if opts.Schema != nil {
		schema = *opts.Schema
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.Limit
	if limit == 0 {
		limit = rate.Limit(3)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.APIKey)
	header.Set("Notion-Version", APIVersion)

	return &Client{
		api: rest.New(rest.Options{
			Service:    "notion",
			BaseURL:    baseURL,
			HTTPClient: opts.HTTPClient,
			Header:     header,
			Limit:      limit,
			Burst:      3,
		}),
		schema:  schema,
		formDB:  opts.FormDatabaseID,
		assetDB: opts.AssetsDatabaseID,
		doneDB:  opts.DoneDatabaseID,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

func (c *Client) FindPage(ctx context.Context, conversationID string) (string, bool, error) {
	filter := map[string]any{
		"property":  c.schema.FormThreadID,
		"rich_text": map[string]string{"equals": conversationID},
	}
	var resp listResponse[page]
	err := c.api.Do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(c.formDB)+"/query", nil,
		queryRequest{Filter: filter, PageSize: 1}, &resp)
	if err != nil {
		return "", false, fmt.Errorf("query form database: %w", err)
	}
	if len(resp.Results) == 0 {
		return "", false, nil
	}
	return resp.Results[0].ID, true, nil
}

func (c *Client) CreatePage(ctx context.Context, input models.PageInput) (string, error) {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	props := map[string]property{
		c.schema.FormTitle: {Title: textProperty(input.Title)},
	}
	if input.ConversationID != "" {
		props[c.schema.FormThreadID] = property{RichText: textProperty(input.ConversationID)}
	}
	if input.Author != "" {
		props[c.schema.FormAuthor] = property{RichText: textProperty(input.Author)}
	}
	if !input.PostedAt.IsZero() {
		props[c.schema.FormPostedAt] = property{Date: &dateValue{Start: input.PostedAt.Format(time.RFC3339)}}
	}

	children := toBlocks(input.Blocks)
	chunks := batches(children, maxChildren)
	req := createPageRequest{Parent: parent{DatabaseID: c.formDB}, Properties: props}
	if len(chunks) > 0 {
		req.Children = chunks[0]
	}

	var created page
	if err := c.api.Do(ctx, http.MethodPost, "/v1/pages", nil, req, &created); err != nil {
		return "", fmt.Errorf("%w: create page %q: %w", store.ErrStoreWrite, input.Title, err)
	}
	for _, chunk := range chunks[min(1, len(chunks)):] {
		if err := c.appendChildren(ctx, created.ID, chunk); err != nil {
			return "", err
		}
	}

	c.logger.Debug("notion page created", "page_id", created.ID, "conversation_id", input.ConversationID)
	return created.ID, nil
}

func (c *Client) AppendBlocks(ctx context.Context, pageID string, blocks []models.Block) error {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	for _, chunk := range batches(toBlocks(blocks), maxChildren) {
		if err := c.appendChildren(ctx, pageID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) appendChildren(ctx context.Context, pageID string, children []block) error {
	err := c.api.Do(ctx, http.MethodPatch, "/v1/blocks/"+url.PathEscape(pageID)+"/children", nil,
		appendChildrenRequest{Children: children}, nil)
	if err != nil {
		return fmt.Errorf("%w: append to %s: %w", store.ErrStoreWrite, pageID, notFound(err))
	}
	return nil
}

func (c *Client) ListPages(ctx context.Context) ([]models.PageRef, error) {
	var refs []models.PageRef
	err := c.queryAll(ctx, c.formDB, nil, func(p page) {
		refs = append(refs, models.PageRef{ID: p.ID, Title: plainText(p.Properties[c.schema.FormTitle].Title)})
	})
	if err != nil {
		return nil, fmt.Errorf("list form pages: %w", err)
	}
	return refs, nil
}

// LinkAssets reads the current relation and writes back the union, since a
// relation update replaces the whole list.
func (c *Client) LinkAssets(ctx context.Context, pageID string, assetIDs []string) error {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	var current page
	if err := c.api.Do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(pageID), nil, nil, &current); err != nil {
		return fmt.Errorf("%w: read page %s: %w", store.ErrStoreWrite, pageID, notFound(err))
	}

	var (
		refs []relationRef
		seen = make(map[string]struct{})
	)
	for _, r := range current.Properties[c.schema.FormAssets].Relation {
		id := normalizeID(r.ID)
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			refs = append(refs, r)
		}
	}
	added := 0
	for _, id := range assetIDs {
		if _, dup := seen[normalizeID(id)]; dup {
			continue
		}
		seen[normalizeID(id)] = struct{}{}
		refs = append(refs, relationRef{ID: id})
		added++
	}
	if added == 0 {
		return nil
	}

	req := updatePageRequest{Properties: map[string]property{
		c.schema.FormAssets: {Relation: refs},
	}}
	if err := c.api.Do(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(pageID), nil, req, nil); err != nil {
		return fmt.Errorf("%w: link assets to %s: %w", store.ErrStoreWrite, pageID, notFound(err))
	}
	return nil
}

func (c *Client) CreateAsset(ctx context.Context, input models.AssetInput) (string, error) {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	contentType := input.ContentType
	if contentType == "" {
		contentType = "Unknown"
	}
	assetURL := input.URL
	size := input.ByteSize
	props := map[string]property{
		c.schema.AssetTitle: {Title: textProperty(input.Filename)},
		c.schema.AssetURL:   {URL: &assetURL},
		// Select option names may not contain commas.
		c.schema.AssetType: {Select: &selectValue{Name: strings.ReplaceAll(contentType, ",", " ")}},
		c.schema.AssetSize: {Number: &size},
	}
	if !input.PostedAt.IsZero() {
		props[c.schema.AssetPostedAt] = property{Date: &dateValue{Start: input.PostedAt.Format(time.RFC3339)}}
	}

	var created page
	req := createPageRequest{Parent: parent{DatabaseID: c.assetDB}, Properties: props}
	if err := c.api.Do(ctx, http.MethodPost, "/v1/pages", nil, req, &created); err != nil {
		return "", fmt.Errorf("%w: create asset %q: %w", store.ErrStoreWrite, input.Filename, err)
	}
	return created.ID, nil
}

func (c *Client) ReadAllText(ctx context.Context, pageID string) (string, error) {
	var (
		blocks []models.Block
		cursor string
	)
	for {
		query := url.Values{"page_size": {strconv.Itoa(maxChildren)}}
		if cursor != "" {
			query.Set("start_cursor", cursor)
		}
		var resp listResponse[block]
		if err := c.api.Do(ctx, http.MethodGet, "/v1/blocks/"+url.PathEscape(pageID)+"/children", query, nil, &resp); err != nil {
			return "", fmt.Errorf("read page %s: %w", pageID, notFound(err))
		}
		for _, b := range resp.Results {
			if mb, ok := fromBlock(b); ok {
				blocks = append(blocks, mb)
			}
		}
		if cursor = resp.cursor(); cursor == "" {
			break
		}
	}
	return parser.BlocksText(blocks), nil
}

func (c *Client) ListDoneIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := c.queryAll(ctx, c.doneDB, nil, func(p page) {
		if id := plainText(p.Properties[c.schema.DoneEventID].Title); id != "" {
			ids[id] = struct{}{}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("list done records: %w", err)
	}
	c.logger.Debug("done records loaded", "count", len(ids))
	return ids, nil
}

// RecordDone checks for an existing record first. Notion has no unique
// constraint, so the check is what keeps one record per event.
func (c *Client) RecordDone(ctx context.Context, eventID, pageID string) error {
	defer c.metrics.Since(metrics.OpStoreWrite, time.Now())

	filter := map[string]any{
		"property": c.schema.DoneEventID,
		"title":    map[string]string{"equals": eventID},
	}
	var existing listResponse[page]
	err := c.api.Do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(c.doneDB)+"/query", nil,
		queryRequest{Filter: filter, PageSize: 1}, &existing)
	if err != nil {
		return fmt.Errorf("%w: check done record %s: %w", store.ErrLedgerWrite, eventID, err)
	}
	if len(existing.Results) > 0 {
		return nil
	}

	req := createPageRequest{
		Parent: parent{DatabaseID: c.doneDB},
		Properties: map[string]property{
			c.schema.DoneEventID:     {Title: textProperty(eventID)},
			c.schema.DoneRelatedPage: {Relation: []relationRef{{ID: pageID}}},
		},
	}
	if err := c.api.Do(ctx, http.MethodPost, "/v1/pages", nil, req, nil); err != nil {
		return fmt.Errorf("%w: record %s: %w", store.ErrLedgerWrite, eventID, err)
	}
	return nil
}

func (c *Client) queryAll(ctx context.Context, databaseID string, filter any, fn func(page)) error {
	cursor := ""
	for {
		var resp listResponse[page]
		req := queryRequest{Filter: filter, StartCursor: cursor, PageSize: maxChildren}
		if err := c.api.Do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(databaseID)+"/query", nil, req, &resp); err != nil {
			return err
		}
		for _, p := range resp.Results {
			fn(p)
		}
		if cursor = resp.cursor(); cursor == "" {
			return nil
		}
	}
}

// normalizeID strips dashes so hyphenated and compact uuids compare equal.
func normalizeID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

func notFound(err error) error {
	if rest.IsStatus(err, http.StatusNotFound) {
		return errors.Join(store.ErrNotFound, err)
	}
	return err
}
