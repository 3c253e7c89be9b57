// Package service provides the sync and summary operations of threadsync.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/raphaelgruber/threadsync/internal/llm"
	"github.com/raphaelgruber/threadsync/internal/lock"
	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/parser"
	"github.com/raphaelgruber/threadsync/internal/source"
	"github.com/raphaelgruber/threadsync/internal/store"
)

// RunStatus is the outcome of a sync run.
type RunStatus string

const (
	StatusNoSource    RunStatus = "NO_SOURCE"
	StatusNoNewEvents RunStatus = "NO_NEW_EVENTS"
	StatusSuccess     RunStatus = "SUCCESS"
	StatusError       RunStatus = "ERROR"
)

// maxTitleRunes bounds titles derived from message content.
const maxTitleRunes = 80

// EventSource yields the ordered events of a container.
type EventSource interface {
	FetchEvents(ctx context.Context, container string, since time.Time) ([]models.Event, error)
}

// RunResult is the report of one sync run.
type RunResult struct {
	RunID         string
	Status        RunStatus
	Message       string
	Summary       []string // One line per processed, failed or deferred event
	Processed     int
	Failed        int
	Deferred      int // Left for the next run behind a failed event of the same conversation
	RelayFailures []RelayFailure
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Duration returns how long the run took.
func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// SyncConfig holds the collaborators of a SyncService.
type SyncConfig struct {
	Source    EventSource
	Store     store.KnowledgeStore
	Ledger    store.Ledger
	Resolver  *Resolver
	Relay     *Relay
	Locker    lock.Locker // nil means no run lock
	Container string
	Location  *time.Location // Day boundary for the default window
	// BlockLimit caps block text length. Zero uses parser.DefaultBlockLimit.
	BlockLimit int
	Now        func() time.Time
	Logger     *slog.Logger
}

// SyncService projects source events into the knowledge store.
type SyncService struct {
	source     EventSource
	store      store.KnowledgeStore
	ledger     store.Ledger
	resolver   *Resolver
	relay      *Relay
	locker     lock.Locker
	container  string
	loc        *time.Location
	blockLimit int
	now        func() time.Time
	logger     *slog.Logger
}

// NewSyncService creates a sync service.
func NewSyncService(cfg SyncConfig) *SyncService {
	s := &SyncService{
		source:     cfg.Source,
		store:      cfg.Store,
		ledger:     cfg.Ledger,
		resolver:   cfg.Resolver,
		relay:      cfg.Relay,
		locker:     cfg.Locker,
		container:  cfg.Container,
		loc:        cfg.Location,
		blockLimit: cfg.BlockLimit,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if s.locker == nil {
		s.locker = lock.Noop{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.blockLimit <= 0 {
		s.blockLimit = parser.DefaultBlockLimit
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.resolver == nil {
		s.resolver = NewResolver(s.store, nil, s.logger)
	}
	return s
}

// runState is the per-run cache. It never outlives RunSync.
type runState struct {
	pages    map[string]string // conversation id -> page id
	titles   map[string]string // page id -> title
	snapshot []models.PageRef
	listed   bool

	// blocked holds conversations with a failed event. Their later events
	// wait for the next run so appends stay chronological.
	blocked map[string]bool
	// routingErr is the fatal provider error that stopped content routing.
	routingErr error
}

// RunSync processes every unprojected event posted at or after since.
// A zero since means the start of the current day.
func (s *SyncService) RunSync(ctx context.Context, since time.Time) RunResult {
	res := RunResult{
		RunID:     uuid.New().String(),
		StartedAt: s.now(),
	}
	finish := func(status RunStatus, msg string) RunResult {
		res.Status = status
		res.Message = msg
		res.FinishedAt = s.now()
		s.logger.Info("sync run finished",
			"run_id", res.RunID,
			"status", res.Status,
			"processed", res.Processed,
			"failed", res.Failed,
			"relay_failures", len(res.RelayFailures),
			"duration", res.Duration())
		return res
	}

	if since.IsZero() {
		since = source.StartOfDay(res.StartedAt, s.loc)
	}
	log := s.logger.With("run_id", res.RunID)
	log.Info("sync run started", "container", s.container, "since", since)

	release, err := s.locker.Acquire(ctx, "sync:"+s.container)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return finish(StatusError, "another sync run is in progress")
		}
		return finish(StatusError, fmt.Sprintf("acquire run lock: %v", err))
	}
	defer func() {
		// Release must run even if ctx was cancelled.
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release run lock", "error", err)
		}
	}()

	events, err := s.source.FetchEvents(ctx, s.container, since)
	if err != nil {
		if errors.Is(err, source.ErrSourceUnavailable) {
			return finish(StatusNoSource, err.Error())
		}
		return finish(StatusError, fmt.Sprintf("read source: %v", err))
	}
	if len(events) == 0 {
		return finish(StatusNoNewEvents, "no events since "+since.In(s.loc).Format(time.RFC3339))
	}

	done, err := s.ledger.ListDoneIDs(ctx)
	if err != nil {
		return finish(StatusError, fmt.Sprintf("read ledger: %v", err))
	}

	pending := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if _, ok := done[ev.ID]; !ok {
			pending = append(pending, ev)
		}
	}
	if len(pending) == 0 {
		return finish(StatusNoNewEvents, fmt.Sprintf("all %d events already synced", len(events)))
	}

	state := &runState{
		pages:   make(map[string]string),
		titles:  make(map[string]string),
		blocked: make(map[string]bool),
	}
	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return finish(StatusError, fmt.Sprintf("run cancelled: %v", err))
		}
		if ev.HasConversation() && state.blocked[ev.ConversationID] {
			log.Info("event deferred", "event_id", ev.ID, "conversation_id", ev.ConversationID)
			res.Deferred++
			res.Summary = append(res.Summary, fmt.Sprintf("Deferred message %s from %s, an earlier message of the conversation failed", ev.ID, ev.Author))
			continue
		}

		line, failures, err := s.processEvent(ctx, ev, state)
		res.RelayFailures = append(res.RelayFailures, failures...)
		if err != nil {
			log.Error("event failed", "event_id", ev.ID, "error", err)
			res.Failed++
			if ev.HasConversation() {
				state.blocked[ev.ConversationID] = true
			}
			res.Summary = append(res.Summary, fmt.Sprintf("Failed to sync message %s from %s: %v", ev.ID, ev.Author, err))
			continue
		}
		res.Processed++
		res.Summary = append(res.Summary, line)
	}

	return finish(StatusSuccess, fmt.Sprintf("synced %d of %d events", res.Processed, len(pending)))
}

// processEvent projects one event. It returns the summary line, any skipped
// attachments and the error that prevented the event from being marked
// done.
func (s *SyncService) processEvent(ctx context.Context, ev models.Event, state *runState) (string, []RelayFailure, error) {
	pageID, created, err := s.resolvePage(ctx, ev, state)
	if err != nil {
		return "", nil, err
	}
	title := state.titles[pageID]

	if !created {
		if err := s.store.AppendBlocks(ctx, pageID, s.eventBlocks(ev)); err != nil {
			return "", nil, fmt.Errorf("append to page: %w", err)
		}
	}

	var (
		assets   []models.Asset
		failures []RelayFailure
	)
	if len(ev.Attachments) > 0 && s.relay != nil {
		assets, failures = s.relay.RelayAll(ctx, ev.Attachments, ev.CreatedAt)
		for i := range failures {
			failures[i].EventID = ev.ID
		}
	}
	if len(assets) > 0 {
		ids := make([]string, len(assets))
		for i, a := range assets {
			ids[i] = a.ID
		}
		if err := s.store.LinkAssets(ctx, pageID, ids); err != nil {
			return "", failures, fmt.Errorf("link assets: %w", err)
		}
	}

	var line strings.Builder
	if created {
		fmt.Fprintf(&line, "Created page %q with the message from %s", title, ev.Author)
	} else {
		fmt.Fprintf(&line, "Added the message from %s to %q", ev.Author, title)
	}
	if len(assets) > 0 {
		fmt.Fprintf(&line, " (%d attachments)", len(assets))
	}
	if len(failures) > 0 {
		fmt.Fprintf(&line, " (%d attachments skipped)", len(failures))
	}

	if err := s.ledger.RecordDone(ctx, ev.ID, pageID); err != nil {
		return "", failures, fmt.Errorf("mark as synced, will be reprocessed next run: %w", err)
	}
	return line.String(), failures, nil
}

// resolvePage returns the page the event belongs to. created is true when
// the page was just created seeded with the event content.
func (s *SyncService) resolvePage(ctx context.Context, ev models.Event, state *runState) (pageID string, created bool, err error) {
	if ev.HasConversation() {
		if id, ok := state.pages[ev.ConversationID]; ok {
			return id, false, nil
		}
		id, found, err := s.resolver.ByConversation(ctx, ev.ConversationID)
		if err != nil {
			return "", false, fmt.Errorf("find page: %w", err)
		}
		title := conversationTitle(ev)
		if !found {
			id, err = s.createPage(ctx, ev, ev.ConversationID, title)
			if err != nil {
				return "", false, err
			}
			created = true
		}
		state.pages[ev.ConversationID] = id
		state.titles[id] = title
		return id, created, nil
	}

	if !state.listed {
		refs, err := s.store.ListPages(ctx)
		if err != nil {
			return "", false, fmt.Errorf("list pages: %w", err)
		}
		state.snapshot = refs
		state.listed = true
		for _, ref := range refs {
			state.titles[ref.ID] = ref.Title
		}
	}

	if state.routingErr != nil {
		return "", false, fmt.Errorf("routing stopped for this run: %w", state.routingErr)
	}
	decision, err := s.resolver.Route(ctx, ev.Content, state.snapshot)
	if err != nil {
		if errors.Is(err, llm.ErrFatalAPI) {
			s.logger.Warn("completion provider rejected the request, routing stopped for this run", "error", err)
			state.routingErr = err
		}
		return "", false, err
	}
	if !decision.New {
		return decision.PageID, false, nil
	}

	title := contentTitle(ev, s.loc)
	id, err := s.createPage(ctx, ev, "", title)
	if err != nil {
		return "", false, err
	}
	state.titles[id] = title
	return id, true, nil
}

func (s *SyncService) createPage(ctx context.Context, ev models.Event, conversationID, title string) (string, error) {
	id, err := s.store.CreatePage(ctx, models.PageInput{
		ConversationID: conversationID,
		Title:          title,
		Author:         ev.Author,
		Blocks:         parser.TextBlocks(ev.Content, s.blockLimit),
		PostedAt:       ev.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	s.logger.Debug("page created", "page_id", id, "title", title, "conversation_id", conversationID)
	return id, nil
}

// eventBlocks renders an appended event: a header line, then the content.
func (s *SyncService) eventBlocks(ev models.Event) []models.Block {
	header := fmt.Sprintf("--- %s | %s ---", ev.CreatedAt.In(s.loc).Format("15:04"), ev.Author)
	return append([]models.Block{models.Paragraph(header)}, parser.TextBlocks(ev.Content, s.blockLimit)...)
}

func conversationTitle(ev models.Event) string {
	if t := strings.TrimSpace(ev.ConversationTitle); t != "" {
		return t
	}
	return "Conversation " + ev.ConversationID
}

// contentTitle uses the first non-empty line of the content.
func contentTitle(ev models.Event, loc *time.Location) string {
	for line := range strings.Lines(ev.Content) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxTitleRunes {
			line = strings.TrimSpace(string([]rune(line)[:maxTitleRunes]))
		}
		return line
	}
	return "Message from " + ev.Author + " " + ev.CreatedAt.In(loc).Format("2006-01-02 15:04")
}
