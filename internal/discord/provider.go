// Package discord reads channel and thread history over the Discord REST API.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/rest"
	"github.com/raphaelgruber/threadsync/internal/source"
)

const (
	// DefaultBaseURL is the v10 REST endpoint.
	DefaultBaseURL = "https://discord.com/api/v10"

	pageLimit = 100
)

// Options configures a Provider.
type Options struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider implements source.Provider for Discord.
type Provider struct {
	client *rest.Client
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]channel
}

var _ source.Provider = (*Provider)(nil)

// New creates a provider authenticated with a bot token.
func New(opts Options) *Provider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	header := http.Header{}
	header.Set("Authorization", "Bot "+opts.Token)
	header.Set("User-Agent", "DiscordBot (https://github.com/raphaelgruber/threadsync, 1.0)")

	return &Provider{
		client: rest.New(rest.Options{
			Service:    "discord",
			BaseURL:    baseURL,
			HTTPClient: opts.HTTPClient,
			Header:     header,
			// Global bot limit is 50 requests per second.
			Limit: rate.Limit(40),
			Burst: 5,
		}),
		logger:   logger,
		channels: make(map[string]channel),
	}
}

// CurrentUserID returns the id of the authenticated bot user.
func (p *Provider) CurrentUserID(ctx context.Context) (string, error) {
	var u user
	if err := p.client.Do(ctx, http.MethodGet, "/users/@me", nil, nil, &u); err != nil {
		return "", fmt.Errorf("get current user: %w", err)
	}
	return u.ID, nil
}

// ContainerKind implements source.Provider.
func (p *Provider) ContainerKind(ctx context.Context, containerID string) (models.ContainerKind, error) {
	ch, err := p.channel(ctx, containerID)
	if err != nil {
		return models.KindFlat, err
	}
	if ch.isThreaded() {
		return models.KindThreaded, nil
	}
	return models.KindFlat, nil
}

// ListThreads implements source.Provider. It returns the container's
// active threads followed by its public archived threads.
func (p *Provider) ListThreads(ctx context.Context, containerID string, since time.Time) ([]models.Thread, error) {
	parent, err := p.channel(ctx, containerID)
	if err != nil {
		return nil, err
	}

	var threads []models.Thread

	var active threadList
	path := "/guilds/" + url.PathEscape(parent.GuildID) + "/threads/active"
	if err := p.client.Do(ctx, http.MethodGet, path, nil, nil, &active); err != nil {
		return nil, fmt.Errorf("list active threads: %w", err)
	}
	for _, th := range active.Threads {
		if th.ParentID != containerID {
			continue
		}
		threads = append(threads, p.rememberThread(th))
	}

	// Archived threads come newest-archived first; stop paging once the
	// archive time is older than the cutoff since nothing after can qualify.
	before := ""
	for {
		query := url.Values{"limit": {strconv.Itoa(pageLimit)}}
		if before != "" {
			query.Set("before", before)
		}
		var archived threadList
		path := "/channels/" + url.PathEscape(containerID) + "/threads/archived/public"
		if err := p.client.Do(ctx, http.MethodGet, path, query, nil, &archived); err != nil {
			return nil, fmt.Errorf("list archived threads: %w", err)
		}

		stop := false
		for _, th := range archived.Threads {
			threads = append(threads, p.rememberThread(th))
			if th.ThreadMetadata != nil {
				before = th.ThreadMetadata.ArchiveTimestamp.Format(time.RFC3339Nano)
				if th.ThreadMetadata.ArchiveTimestamp.Before(since) {
					stop = true
				}
			}
		}
		if stop || !archived.HasMore || len(archived.Threads) == 0 || before == "" {
			break
		}
	}
	return threads, nil
}

// ListEvents implements source.Provider.
func (p *Provider) ListEvents(ctx context.Context, containerID string, since time.Time) ([]models.Event, error) {
	ch, err := p.channel(ctx, containerID)
	if err != nil {
		return nil, err
	}

	after := SnowflakeAt(since)
	if after > 0 {
		after--
	}

	var events []models.Event
	for {
		query := url.Values{
			"limit": {strconv.Itoa(pageLimit)},
			"after": {strconv.FormatUint(after, 10)},
		}
		var batch []message
		path := "/channels/" + url.PathEscape(containerID) + "/messages"
		if err := p.client.Do(ctx, http.MethodGet, path, query, nil, &batch); err != nil {
			return nil, p.notFound(err, containerID, "list messages")
		}

		for _, m := range batch {
			seq := parseSnowflake(m.ID)
			if seq > after {
				after = seq
			}
			events = append(events, toEvent(m, ch))
		}
		if len(batch) < pageLimit {
			break
		}
	}

	p.logger.Debug("discord messages fetched", "channel_id", containerID, "count", len(events))
	return events, nil
}

func (p *Provider) channel(ctx context.Context, id string) (channel, error) {
	p.mu.Lock()
	ch, ok := p.channels[id]
	p.mu.Unlock()
	if ok {
		return ch, nil
	}

	if err := p.client.Do(ctx, http.MethodGet, "/channels/"+url.PathEscape(id), nil, nil, &ch); err != nil {
		return channel{}, p.notFound(err, id, "get channel")
	}

	p.mu.Lock()
	p.channels[id] = ch
	p.mu.Unlock()
	return ch, nil
}

func (p *Provider) rememberThread(th channel) models.Thread {
	p.mu.Lock()
	p.channels[th.ID] = th
	p.mu.Unlock()

	out := models.Thread{ID: th.ID, Name: th.Name}
	if th.ThreadMetadata != nil {
		out.Archived = th.ThreadMetadata.Archived
		out.LastActivityAt = th.ThreadMetadata.ArchiveTimestamp
	}
	if ts, ok := SnowflakeTime(th.LastMessageID); ok {
		out.LastActivityAt = ts
	}
	return out
}

func (p *Provider) notFound(err error, id, op string) error {
	if rest.IsStatus(err, http.StatusNotFound) || rest.IsStatus(err, http.StatusForbidden) {
		return fmt.Errorf("%w: %s %s", source.ErrContainerNotFound, op, id)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func toEvent(m message, ch channel) models.Event {
	ev := models.Event{
		ID:        m.ID,
		AuthorID:  m.Author.ID,
		Author:    m.Author.displayName(),
		Content:   m.Content,
		CreatedAt: m.Timestamp,
		Sequence:  parseSnowflake(m.ID),
	}
	if ch.isThread() {
		ev.ConversationID = ch.ID
		ev.ConversationTitle = ch.Name
	}
	for _, a := range m.Attachments {
		ev.Attachments = append(ev.Attachments, models.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			ByteSize:    a.Size,
			SourceURL:   a.URL,
		})
	}
	return ev
}
