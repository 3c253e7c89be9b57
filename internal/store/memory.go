package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/parser"
)

// Memory is an in-process KnowledgeStore and Ledger.
// It backs local dry runs and tests. All methods are thread-safe.
type Memory struct {
	mu     sync.RWMutex
	pages  map[string]*models.Page
	order  []string
	assets map[string]models.Asset
	done   map[string]models.DoneRecord
	now    func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		pages:  make(map[string]*models.Page),
		assets: make(map[string]models.Asset),
		done:   make(map[string]models.DoneRecord),
		now:    time.Now,
	}
}

func (m *Memory) FindPage(ctx context.Context, conversationID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		if p := m.pages[id]; p.ConversationID != "" && p.ConversationID == conversationID {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (m *Memory) CreatePage(ctx context.Context, input models.PageInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if input.ConversationID != "" {
		for _, p := range m.pages {
			if p.ConversationID == input.ConversationID {
				return "", fmt.Errorf("%w: page for conversation %s already exists", ErrStoreWrite, input.ConversationID)
			}
		}
	}

	id := uuid.New().String()
	m.pages[id] = &models.Page{
		ID:             id,
		ConversationID: input.ConversationID,
		Title:          input.Title,
		Body:           slices.Clone(input.Blocks),
		LinkedAssets:   []string{},
		CreatedAt:      m.now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) AppendBlocks(ctx context.Context, pageID string, blocks []models.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[pageID]
	if !ok {
		return fmt.Errorf("%w: %w: %s", ErrStoreWrite, ErrNotFound, pageID)
	}
	p.Body = append(p.Body, blocks...)
	return nil
}

func (m *Memory) ListPages(ctx context.Context) ([]models.PageRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]models.PageRef, 0, len(m.order))
	for _, id := range m.order {
		refs = append(refs, models.PageRef{ID: id, Title: m.pages[id].Title})
	}
	return refs, nil
}

func (m *Memory) LinkAssets(ctx context.Context, pageID string, assetIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[pageID]
	if !ok {
		return fmt.Errorf("%w: %w: %s", ErrStoreWrite, ErrNotFound, pageID)
	}
	for _, id := range assetIDs {
		if _, exists := m.assets[id]; !exists {
			return fmt.Errorf("%w: unknown asset %s", ErrStoreWrite, id)
		}
		if !slices.Contains(p.LinkedAssets, id) {
			p.LinkedAssets = append(p.LinkedAssets, id)
		}
	}
	return nil
}

func (m *Memory) CreateAsset(ctx context.Context, input models.AssetInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.assets[id] = models.Asset{
		ID:          id,
		Filename:    input.Filename,
		URL:         input.URL,
		ContentType: input.ContentType,
		ByteSize:    input.ByteSize,
		PostedAt:    input.PostedAt,
	}
	return id, nil
}

func (m *Memory) ReadAllText(ctx context.Context, pageID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pages[pageID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, pageID)
	}
	return parser.BlocksText(p.Body), nil
}

func (m *Memory) ListDoneIDs(ctx context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make(map[string]struct{}, len(m.done))
	for id := range m.done {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *Memory) RecordDone(ctx context.Context, eventID, pageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.done[eventID]; exists {
		return nil
	}
	m.done[eventID] = models.DoneRecord{EventID: eventID, PageID: pageID}
	return nil
}

// Page returns a copy of a stored page.
func (m *Memory) Page(id string) (models.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pages[id]
	if !ok {
		return models.Page{}, false
	}
	cp := *p
	cp.Body = slices.Clone(p.Body)
	cp.LinkedAssets = slices.Clone(p.LinkedAssets)
	return cp, true
}

// Asset returns a stored asset.
func (m *Memory) Asset(id string) (models.Asset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assets[id]
	return a, ok
}

// DoneRecords returns every done record, sorted by event id.
func (m *Memory) DoneRecords() []models.DoneRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]models.DoneRecord, 0, len(m.done))
	for _, r := range m.done {
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b models.DoneRecord) int {
		return strings.Compare(a.EventID, b.EventID)
	})
	return records
}

// AssetCount returns the number of asset records.
func (m *Memory) AssetCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assets)
}
