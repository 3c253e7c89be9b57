package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raphaelgruber/threadsync/internal/llm"
	"github.com/raphaelgruber/threadsync/internal/lock"
	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/store"
)

var baseTime = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

// fakeSource returns a fixed event list.
type fakeSource struct {
	events []models.Event
	err    error
	calls  int
	since  time.Time
}

func (f *fakeSource) FetchEvents(_ context.Context, _ string, since time.Time) ([]models.Event, error) {
	f.calls++
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

// reply is one scripted completion.
type reply struct {
	out string
	err error
}

// scriptedCompleter answers calls in order and records them.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []reply
	calls   []completionCall
}

type completionCall struct {
	messages    []llm.Message
	temperature float64
}

func (s *scriptedCompleter) Complete(_ context.Context, messages []llm.Message, temperature float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, completionCall{messages: messages, temperature: temperature})
	if len(s.calls) > len(s.replies) {
		return "", fmt.Errorf("%w: no scripted reply", llm.ErrCompletionUnavailable)
	}
	r := s.replies[len(s.calls)-1]
	return r.out, r.err
}

func (s *scriptedCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fakeRelocator fails for the filenames in fail.
type fakeRelocator struct {
	fail map[string]error
}

func (f *fakeRelocator) Relocate(_ context.Context, _ string, filename, _ string) (string, error) {
	if err := f.fail[filename]; err != nil {
		return "", err
	}
	return "https://blob.test/" + filename, nil
}

// countingStore wraps the memory store, counts writes and injects errors.
type countingStore struct {
	*store.Memory

	findCalls   int
	listCalls   int
	writes      int
	createFails int // CreatePage calls that fail with errBoom before succeeding
	createErr   error
	appendErr   error
	linkErr     error
	recordErr   error
	listDoneErr error
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: store.NewMemory()}
}

func (c *countingStore) FindPage(ctx context.Context, conversationID string) (string, bool, error) {
	c.findCalls++
	return c.Memory.FindPage(ctx, conversationID)
}

func (c *countingStore) CreatePage(ctx context.Context, input models.PageInput) (string, error) {
	if c.createErr != nil {
		return "", c.createErr
	}
	if c.createFails > 0 {
		c.createFails--
		return "", fmt.Errorf("%w: %w", store.ErrStoreWrite, errBoom)
	}
	c.writes++
	return c.Memory.CreatePage(ctx, input)
}

func (c *countingStore) AppendBlocks(ctx context.Context, pageID string, blocks []models.Block) error {
	if c.appendErr != nil {
		return c.appendErr
	}
	c.writes++
	return c.Memory.AppendBlocks(ctx, pageID, blocks)
}

func (c *countingStore) ListPages(ctx context.Context) ([]models.PageRef, error) {
	c.listCalls++
	return c.Memory.ListPages(ctx)
}

func (c *countingStore) LinkAssets(ctx context.Context, pageID string, assetIDs []string) error {
	if c.linkErr != nil {
		return c.linkErr
	}
	c.writes++
	return c.Memory.LinkAssets(ctx, pageID, assetIDs)
}

func (c *countingStore) CreateAsset(ctx context.Context, input models.AssetInput) (string, error) {
	c.writes++
	return c.Memory.CreateAsset(ctx, input)
}

func (c *countingStore) ListDoneIDs(ctx context.Context) (map[string]struct{}, error) {
	if c.listDoneErr != nil {
		return nil, c.listDoneErr
	}
	return c.Memory.ListDoneIDs(ctx)
}

func (c *countingStore) RecordDone(ctx context.Context, eventID, pageID string) error {
	if c.recordErr != nil {
		return c.recordErr
	}
	c.writes++
	return c.Memory.RecordDone(ctx, eventID, pageID)
}

// heldLocker always reports the lock as taken.
type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string) (lock.ReleaseFunc, error) {
	return nil, lock.ErrHeld
}

var errBoom = errors.New("boom")
