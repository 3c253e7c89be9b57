package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/raphaelgruber/threadsync/internal/llm"
	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/parser"
	"github.com/raphaelgruber/threadsync/internal/store"
)

// Sampling temperatures of the generation loop.
const (
	generateTemperature = 0.7
	evaluateTemperature = 0.1
)

// SummaryHeading titles the summary section appended to a page.
const SummaryHeading = "AI summary"

// deficientPattern matches a line whose verdict is No. The verdict is the
// first word after an optional list marker and criterion label, so a "no"
// inside a reason does not count.
var deficientPattern = regexp.MustCompile(`(?im)^[\s*_-]*(?:\d+[.)])?[\s*_]*(?:[^:\n]{0,40}:)?[\s*_]*no\b`)

const generatePrompt = `You are a meeting-notes assistant. Summarize the discussion log below.

Use exactly these four sections in markdown:

## Purpose and topic
One or two sentences on what was discussed and why.

## Discussion points
Three to five bullet points covering the main opinions, including dissenting views.

## Decisions
Bullet points of what was decided. If nothing was decided, write "No decision reached".

## Action items
Bullet points in the form "task (owner)". If nobody took a task, write "Owner unassigned".

Discussion log:
%s`

const evaluatePrompt = `You review meeting summaries. Compare the summary with the original log and answer each question with Yes or No followed by one short reason.

1. Completeness: are all important opinions covered, including dissenting ones?
2. Accuracy: are the owners and decisions stated correctly?
3. Neutrality: is the summary free of bias toward one participant?
4. Clarity: are the action items concrete and unambiguous?

Original log:
%s

Summary:
%s`

const regeneratePrompt = `A reviewer found problems with this summary. Rewrite it using the same four sections and fix every issue the review lists.

Review:
%s

Previous summary:
%s

Discussion log:
%s`

// Generator runs the generate, evaluate and regenerate loop.
type Generator struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewGenerator creates a generator.
func NewGenerator(completer llm.Completer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{completer: completer, logger: logger}
}

// Generate summarizes source. ok is false when no summary could be
// produced at all. Evaluation and regeneration failures fall back to the
// first draft.
func (g *Generator) Generate(ctx context.Context, source string) (summary string, ok bool) {
	draft, err := g.complete(ctx, fmt.Sprintf(generatePrompt, source), generateTemperature)
	if err != nil {
		g.logger.Warn("summary generation failed", "error", err)
		return "", false
	}
	if draft == "" {
		g.logger.Warn("summary generation returned no text")
		return "", false
	}

	review, err := g.complete(ctx, fmt.Sprintf(evaluatePrompt, source, draft), evaluateTemperature)
	if err != nil {
		g.logger.Warn("summary evaluation failed, keeping first draft", "error", err)
		return draft, true
	}
	if !deficientPattern.MatchString(review) {
		g.logger.Debug("summary passed evaluation")
		return draft, true
	}

	g.logger.Info("summary deficient, regenerating")
	revised, err := g.complete(ctx, fmt.Sprintf(regeneratePrompt, review, draft, source), generateTemperature)
	if err != nil || revised == "" {
		g.logger.Warn("summary regeneration failed, keeping first draft", "error", err)
		return draft, true
	}
	return revised, true
}

func (g *Generator) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	out, err := g.completer.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, temperature)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// AttachStatus is the outcome of GenerateAndAttach.
type AttachStatus string

const (
	AttachOK    AttachStatus = "ok"
	AttachError AttachStatus = "error"
)

// AttachResult reports a summary attachment.
type AttachResult struct {
	Status  AttachStatus
	Message string
	Summary string
}

// KnowledgeService attaches generated summaries to pages.
type KnowledgeService struct {
	store      store.KnowledgeStore
	generator  *Generator
	blockLimit int
	logger     *slog.Logger
}

// NewKnowledgeService creates a knowledge service. A blockLimit of zero uses
// parser.DefaultBlockLimit.
func NewKnowledgeService(st store.KnowledgeStore, generator *Generator, blockLimit int, logger *slog.Logger) *KnowledgeService {
	if blockLimit <= 0 {
		blockLimit = parser.DefaultBlockLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeService{store: st, generator: generator, blockLimit: blockLimit, logger: logger}
}

// GenerateAndAttach summarizes a page and appends the summary to it.
func (k *KnowledgeService) GenerateAndAttach(ctx context.Context, pageID string) AttachResult {
	log := k.logger.With("page_id", pageID)

	text, err := k.store.ReadAllText(ctx, pageID)
	if err != nil {
		log.Error("read page", "error", err)
		return AttachResult{Status: AttachError, Message: fmt.Sprintf("read page: %v", err)}
	}
	if strings.TrimSpace(text) == "" {
		return AttachResult{Status: AttachError, Message: "page has no text to summarize"}
	}

	summary, ok := k.generator.Generate(ctx, text)
	if !ok {
		return AttachResult{Status: AttachError, Message: "summary could not be generated"}
	}

	blocks := append([]models.Block{models.Heading(SummaryHeading)}, parser.MarkdownBlocks(summary, k.blockLimit)...)
	if err := k.store.AppendBlocks(ctx, pageID, blocks); err != nil {
		log.Error("append summary", "error", err)
		return AttachResult{Status: AttachError, Message: fmt.Sprintf("append summary: %v", err)}
	}

	log.Info("summary attached", "blocks", len(blocks))
	return AttachResult{Status: AttachOK, Message: "summary attached", Summary: summary}
}
