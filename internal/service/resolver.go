package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/raphaelgruber/threadsync/internal/llm"
	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/store"
)

// RouteNew is the answer that asks for a new page.
const RouteNew = "new"

// pageIDPattern is the shape every accepted answer must have before the
// membership check.
var pageIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// RouteDecision is the validated outcome of content routing.
type RouteDecision struct {
	// PageID is set when an existing page was chosen.
	PageID string
	// New is true when a new page must be created.
	New bool
	// Raw is the unmodified model answer.
	Raw string
	// Hallucinated marks answers that named no known page and were
	// downgraded to new.
	Hallucinated bool
}

// Resolver maps events to pages.
type Resolver struct {
	store     store.KnowledgeStore
	completer llm.Completer
	logger    *slog.Logger
}

// NewResolver creates a resolver. A nil completer routes every
// conversation-less event to a new page.
func NewResolver(st store.KnowledgeStore, completer llm.Completer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, completer: completer, logger: logger}
}

// ByConversation looks a page up by conversation identity.
func (r *Resolver) ByConversation(ctx context.Context, conversationID string) (string, bool, error) {
	return r.store.FindPage(ctx, conversationID)
}

// Route asks the completion service which page in snapshot the content
// belongs to. The answer is only trusted if it is an id in snapshot.
func (r *Resolver) Route(ctx context.Context, content string, snapshot []models.PageRef) (RouteDecision, error) {
	if len(snapshot) == 0 || r.completer == nil {
		return RouteDecision{New: true}, nil
	}

	raw, err := r.completer.Complete(ctx, routingPrompt(content, snapshot), 0)
	if err != nil {
		if !errors.Is(err, llm.ErrCompletionUnavailable) {
			err = fmt.Errorf("%w: %w", llm.ErrCompletionUnavailable, err)
		}
		return RouteDecision{}, fmt.Errorf("route message: %w", err)
	}

	decision := validateRoute(raw, snapshot)
	if decision.Hallucinated {
		r.logger.Warn("routing answer rejected", "answer", raw, "known_pages", len(snapshot))
	}
	return decision, nil
}

func validateRoute(raw string, snapshot []models.PageRef) RouteDecision {
	answer := normalizeAnswer(raw)
	if strings.EqualFold(answer, RouteNew) {
		return RouteDecision{New: true, Raw: raw}
	}
	if pageIDPattern.MatchString(answer) {
		for _, ref := range snapshot {
			if ref.ID == answer {
				return RouteDecision{PageID: answer, Raw: raw}
			}
		}
	}
	return RouteDecision{New: true, Raw: raw, Hallucinated: true}
}

func normalizeAnswer(raw string) string {
	answer := strings.TrimSpace(raw)
	if i := strings.IndexByte(answer, '\n'); i >= 0 {
		answer = answer[:i]
	}
	answer = strings.Trim(answer, " \t\"'`")
	answer = strings.TrimSuffix(answer, ".")
	return strings.Trim(answer, " \t\"'`")
}

func routingPrompt(content string, snapshot []models.PageRef) []llm.Message {
	var pages strings.Builder
	for _, ref := range snapshot {
		fmt.Fprintf(&pages, "- %s: %s\n", ref.ID, ref.Title)
	}
	return []llm.Message{
		{
			Role: llm.RoleSystem,
			Content: "You file chat messages into knowledge pages. " +
				"Reply with exactly one page id from the list, or the word new if no page fits. " +
				"Reply with nothing else.",
		},
		{
			Role:    llm.RoleUser,
			Content: "Pages (id: title):\n" + pages.String() + "\nMessage:\n" + content,
		},
	}
}
