package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/store"
)

// fakeNotion is a minimal in-memory Notion API covering the endpoints the
// client uses.
type fakeNotion struct {
	t *testing.T

	mu           sync.Mutex
	nextID       int
	pages        map[string]*page
	databases    map[string][]string
	children     map[string][]block
	appendCalls  int
	relationPuts int
}

func newFakeNotion(t *testing.T) (*fakeNotion, *Client) {
	t.Helper()
	f := &fakeNotion{
		t:         t,
		pages:     make(map[string]*page),
		databases: make(map[string][]string),
		children:  make(map[string][]block),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/pages", f.createPage)
	mux.HandleFunc("GET /v1/pages/{id}", f.getPage)
	mux.HandleFunc("PATCH /v1/pages/{id}", f.updatePage)
	mux.HandleFunc("GET /v1/blocks/{id}/children", f.listChildren)
	mux.HandleFunc("PATCH /v1/blocks/{id}/children", f.appendChildren)
	mux.HandleFunc("POST /v1/databases/{id}/query", f.query)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, APIVersion, r.Header.Get("Notion-Version"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(Options{
		APIKey:           "secret",
		BaseURL:          srv.URL,
		FormDatabaseID:   "form-db",
		AssetsDatabaseID: "asset-db",
		DoneDatabaseID:   "done-db",
		HTTPClient:       srv.Client(),
		Limit:            rate.Inf,
	})
	return f, c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFoundResponse(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"object": "error", "code": "object_not_found", "message": "not found"})
}

func (f *fakeNotion) createPage(w http.ResponseWriter, r *http.Request) {
	var req createPageRequest
	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(req.Children) > maxChildren {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "validation_error", "message": "too many children"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("0000-%04d", f.nextID)
	f.pages[id] = &page{ID: id, Properties: req.Properties}
	f.databases[req.Parent.DatabaseID] = append(f.databases[req.Parent.DatabaseID], id)
	f.children[id] = append(f.children[id], req.Children...)
	writeJSON(w, http.StatusOK, f.pages[id])
}

func (f *fakeNotion) getPage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[r.PathValue("id")]
	if !ok {
		notFoundResponse(w)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (f *fakeNotion) updatePage(w http.ResponseWriter, r *http.Request) {
	var req updatePageRequest
	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[r.PathValue("id")]
	if !ok {
		notFoundResponse(w)
		return
	}
	f.relationPuts++
	for k, v := range req.Properties {
		p.Properties[k] = v
	}
	writeJSON(w, http.StatusOK, p)
}

func (f *fakeNotion) appendChildren(w http.ResponseWriter, r *http.Request) {
	var req appendChildrenRequest
	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := f.pages[id]; !ok {
		notFoundResponse(w)
		return
	}
	if len(req.Children) > maxChildren {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "validation_error", "message": "too many children"})
		return
	}
	f.appendCalls++
	f.children[id] = append(f.children[id], req.Children...)
	writeJSON(w, http.StatusOK, map[string]any{"results": req.Children})
}

func (f *fakeNotion) listChildren(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := f.pages[id]; !ok {
		notFoundResponse(w)
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	start, _ := strconv.Atoi(r.URL.Query().Get("start_cursor"))
	writeJSON(w, http.StatusOK, paginate(f.children[id], start, size))
}

func (f *fakeNotion) query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter struct {
			Property string            `json:"property"`
			RichText map[string]string `json:"rich_text"`
			Title    map[string]string `json:"title"`
		} `json:"filter"`
		StartCursor string `json:"start_cursor"`
		PageSize    int    `json:"page_size"`
	}
	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []page
	for _, id := range f.databases[r.PathValue("id")] {
		p := f.pages[id]
		prop := p.Properties[req.Filter.Property]
		switch {
		case req.Filter.RichText != nil && plainText(prop.RichText) != req.Filter.RichText["equals"]:
			continue
		case req.Filter.Title != nil && plainText(prop.Title) != req.Filter.Title["equals"]:
			continue
		}
		matched = append(matched, *p)
	}
	start, _ := strconv.Atoi(req.StartCursor)
	writeJSON(w, http.StatusOK, paginate(matched, start, req.PageSize))
}

func paginate[T any](items []T, start, size int) listResponse[T] {
	if size <= 0 {
		size = maxChildren
	}
	start = min(start, len(items))
	end := min(start+size, len(items))
	resp := listResponse[T]{Results: items[start:end]}
	if resp.Results == nil {
		resp.Results = []T{}
	}
	if end < len(items) {
		next := strconv.Itoa(end)
		resp.HasMore = true
		resp.NextCursor = &next
	}
	return resp
}

func TestCreatePageAndFind(t *testing.T) {
	f, c := newFakeNotion(t)
	ctx := context.Background()

	_, found, err := c.FindPage(ctx, "thread-1")
	require.NoError(t, err)
	assert.False(t, found)

	posted := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	id, err := c.CreatePage(ctx, models.PageInput{
		ConversationID: "thread-1",
		Title:          "Launch plan",
		Author:         "alice",
		Blocks:         []models.Block{models.Paragraph("first message")},
		PostedAt:       posted,
	})
	require.NoError(t, err)

	got, found, err := c.FindPage(ctx, "thread-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)

	schema := DefaultSchema()
	props := f.pages[id].Properties
	assert.Equal(t, "Launch plan", plainText(props[schema.FormTitle].Title))
	assert.Equal(t, "alice", plainText(props[schema.FormAuthor].RichText))
	assert.Equal(t, posted.Format(time.RFC3339), props[schema.FormPostedAt].Date.Start)

	text, err := c.ReadAllText(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first message", text)
}

func TestCreatePageBatchesChildren(t *testing.T) {
	f, c := newFakeNotion(t)
	ctx := context.Background()

	blocks := make([]models.Block, 250)
	for i := range blocks {
		blocks[i] = models.Paragraph(fmt.Sprintf("line %d", i))
	}
	id, err := c.CreatePage(ctx, models.PageInput{ConversationID: "t", Title: "Long", Blocks: blocks})
	require.NoError(t, err)

	assert.Len(t, f.children[id], 250)
	assert.Equal(t, 2, f.appendCalls, "100 blocks on create, then two appends")

	text, err := c.ReadAllText(ctx, id)
	require.NoError(t, err)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 250)
	assert.Equal(t, "line 0", lines[0])
	assert.Equal(t, "line 249", lines[249])
}

func TestAppendBlocks(t *testing.T) {
	f, c := newFakeNotion(t)
	ctx := context.Background()

	id, err := c.CreatePage(ctx, models.PageInput{ConversationID: "t", Title: "T", Blocks: []models.Block{models.Paragraph("one")}})
	require.NoError(t, err)

	long := strings.Repeat("x", richTextLimit+10)
	err = c.AppendBlocks(ctx, id, []models.Block{
		models.Heading("Summary"),
		{Type: models.BlockBullet, Text: "point"},
		models.Paragraph(long),
	})
	require.NoError(t, err)

	got := f.children[id]
	require.Len(t, got, 4)
	assert.Equal(t, "heading_2", got[1].Type)
	assert.Equal(t, "bulleted_list_item", got[2].Type)
	require.Len(t, got[3].Paragraph.RichText, 2, "rich text is split at the API limit")

	err = c.AppendBlocks(ctx, "missing", []models.Block{models.Paragraph("x")})
	assert.ErrorIs(t, err, store.ErrStoreWrite)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLinkAssetsUnion(t *testing.T) {
	f, c := newFakeNotion(t)
	ctx := context.Background()
	schema := DefaultSchema()

	pageID, err := c.CreatePage(ctx, models.PageInput{ConversationID: "t", Title: "T"})
	require.NoError(t, err)

	a1, err := c.CreateAsset(ctx, models.AssetInput{Filename: "a.png", URL: "https://cdn/a.png", ContentType: "image/png", ByteSize: 10})
	require.NoError(t, err)
	a2, err := c.CreateAsset(ctx, models.AssetInput{Filename: "b.txt", URL: "https://cdn/b.txt", ByteSize: 3})
	require.NoError(t, err)

	require.NoError(t, c.LinkAssets(ctx, pageID, []string{a1}))
	require.NoError(t, c.LinkAssets(ctx, pageID, []string{a2, a1}))
	require.NoError(t, c.LinkAssets(ctx, pageID, []string{strings.ReplaceAll(a2, "-", "")}))

	rel := f.pages[pageID].Properties[schema.FormAssets].Relation
	require.Len(t, rel, 2)
	assert.Equal(t, a1, rel[0].ID)
	assert.Equal(t, a2, rel[1].ID)
	assert.Equal(t, 2, f.relationPuts, "no write when nothing new is linked")

	asset := f.pages[a2].Properties
	assert.Equal(t, "Unknown", asset[schema.AssetType].Select.Name)
	assert.Equal(t, int64(3), *asset[schema.AssetSize].Number)
	assert.Equal(t, "https://cdn/b.txt", *asset[schema.AssetURL].URL)

	err = c.LinkAssets(ctx, "missing", []string{a1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListPages(t *testing.T) {
	_, c := newFakeNotion(t)
	ctx := context.Background()

	for i := range 105 {
		_, err := c.CreatePage(ctx, models.PageInput{ConversationID: strconv.Itoa(i), Title: fmt.Sprintf("Page %d", i)})
		require.NoError(t, err)
	}

	refs, err := c.ListPages(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 105)
	assert.Equal(t, "Page 0", refs[0].Title)
	assert.Equal(t, "Page 104", refs[104].Title)
}

func TestLedger(t *testing.T) {
	f, c := newFakeNotion(t)
	ctx := context.Background()

	require.NoError(t, c.RecordDone(ctx, "evt-1", "page-a"))
	require.NoError(t, c.RecordDone(ctx, "evt-2", "page-a"))
	require.NoError(t, c.RecordDone(ctx, "evt-1", "page-b"))

	assert.Len(t, f.databases["done-db"], 2, "re-recording is a no-op")

	ids, err := c.ListDoneIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"evt-1": {}, "evt-2": {}}, ids)

	schema := DefaultSchema()
	first := f.pages[f.databases["done-db"][0]]
	assert.Equal(t, "page-a", first.Properties[schema.DoneRelatedPage].Relation[0].ID)
}

func TestReadAllTextMissingPage(t *testing.T) {
	_, c := newFakeNotion(t)
	_, err := c.ReadAllText(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
