package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/source"
)

func snowflake(t time.Time, n uint64) string {
	return strconv.FormatUint(SnowflakeAt(t)+n, 10)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestProvider(t *testing.T, mux *http.ServeMux) *Provider {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Options{Token: "tok", BaseURL: srv.URL, HTTPClient: srv.Client()})
}

func TestSnowflakeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := strconv.FormatUint(SnowflakeAt(at)|0x3fffff, 10)

	got, ok := SnowflakeTime(id)
	require.True(t, ok)
	assert.Equal(t, at, got)

	_, ok = SnowflakeTime("not-a-number")
	assert.False(t, ok)
	assert.Zero(t, SnowflakeAt(time.Unix(0, 0)))
}

func TestContainerKind(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bot tok", r.Header.Get("Authorization"))
		switch r.PathValue("id") {
		case "text":
			writeJSON(w, channel{ID: "text", Type: channelGuildText})
		case "forum":
			writeJSON(w, channel{ID: "forum", Type: channelGuildForum})
		case "media":
			writeJSON(w, channel{ID: "media", Type: channelGuildMedia})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":10003,"message":"Unknown Channel"}`))
		}
	})
	p := newTestProvider(t, mux)
	ctx := context.Background()

	kind, err := p.ContainerKind(ctx, "text")
	require.NoError(t, err)
	assert.Equal(t, models.KindFlat, kind)

	kind, err = p.ContainerKind(ctx, "forum")
	require.NoError(t, err)
	assert.Equal(t, models.KindThreaded, kind)

	kind, err = p.ContainerKind(ctx, "media")
	require.NoError(t, err)
	assert.Equal(t, models.KindThreaded, kind)

	_, err = p.ContainerKind(ctx, "missing")
	assert.ErrorIs(t, err, source.ErrContainerNotFound)
}

func TestListEventsPaginatesAndStampsThread(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var afters []string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, channel{ID: "th", Type: channelPublicThread, Name: "Roadmap"})
	})
	mux.HandleFunc("GET /channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		after := r.URL.Query().Get("after")
		afters = append(afters, after)

		var batch []message
		if len(afters) == 1 {
			// Full page forces a second request.
			for i := range pageLimit {
				batch = append(batch, message{
					ID:        snowflake(since.Add(time.Minute), uint64(i+1)),
					Author:    user{ID: "u1", Username: "alice"},
					Content:   fmt.Sprintf("msg %d", i),
					Timestamp: since.Add(time.Minute),
				})
			}
		} else {
			batch = []message{{
				ID:        snowflake(since.Add(time.Hour), 1),
				Author:    user{ID: "u2", Username: "bob", GlobalName: "Bob B"},
				Content:   "last",
				Timestamp: since.Add(time.Hour),
				Attachments: []attachment{{
					Filename: "plan.pdf", ContentType: "application/pdf", Size: 1024, URL: "https://cdn.example/plan.pdf",
				}},
			}}
		}
		writeJSON(w, batch)
	})

	p := newTestProvider(t, mux)
	events, err := p.ListEvents(context.Background(), "th", since)
	require.NoError(t, err)
	require.Len(t, events, pageLimit+1)

	require.Len(t, afters, 2)
	assert.Equal(t, strconv.FormatUint(SnowflakeAt(since)-1, 10), afters[0])
	assert.Equal(t, snowflake(since.Add(time.Minute), pageLimit), afters[1])

	last := events[len(events)-1]
	assert.Equal(t, "th", last.ConversationID)
	assert.Equal(t, "Roadmap", last.ConversationTitle)
	assert.Equal(t, "Bob B", last.Author)
	assert.Equal(t, "u2", last.AuthorID)
	require.Len(t, last.Attachments, 1)
	assert.Equal(t, "plan.pdf", last.Attachments[0].Filename)
	assert.Equal(t, int64(1024), last.Attachments[0].ByteSize)
	assert.Equal(t, parseSnowflake(last.ID), last.Sequence)
}

func TestListEventsFlatChannelHasNoConversation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, channel{ID: "general", Type: channelGuildText, Name: "general"})
	})
	mux.HandleFunc("GET /channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []message{{ID: "1", Author: user{ID: "u"}, Content: "hi"}})
	})

	events, err := newTestProvider(t, mux).ListEvents(context.Background(), "general", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].HasConversation())
}

func TestListThreads(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var archivedCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, channel{ID: "forum", Type: channelGuildForum, GuildID: "g1"})
	})
	mux.HandleFunc("GET /guilds/g1/threads/active", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, threadList{Threads: []channel{
			{ID: "a1", Name: "Active", ParentID: "forum", Type: channelPublicThread, LastMessageID: snowflake(since.Add(time.Hour), 0)},
			{ID: "other", Name: "Elsewhere", ParentID: "another-forum", Type: channelPublicThread},
		}})
	})
	mux.HandleFunc("GET /channels/forum/threads/archived/public", func(w http.ResponseWriter, r *http.Request) {
		archivedCalls++
		if archivedCalls == 1 {
			assert.Empty(t, r.URL.Query().Get("before"))
			writeJSON(w, threadList{HasMore: true, Threads: []channel{{
				ID: "ar1", Name: "Archived today", Type: channelPublicThread,
				LastMessageID:  snowflake(since.Add(2*time.Hour), 0),
				ThreadMetadata: &threadMetadata{Archived: true, ArchiveTimestamp: since.Add(3 * time.Hour)},
			}}})
			return
		}
		assert.NotEmpty(t, r.URL.Query().Get("before"))
		writeJSON(w, threadList{HasMore: true, Threads: []channel{{
			ID: "ar2", Name: "Archived last week", Type: channelPublicThread,
			LastMessageID:  snowflake(since.Add(-7*24*time.Hour), 0),
			ThreadMetadata: &threadMetadata{Archived: true, ArchiveTimestamp: since.Add(-6 * 24 * time.Hour)},
		}}})
	})

	threads, err := newTestProvider(t, mux).ListThreads(context.Background(), "forum", since)
	require.NoError(t, err)
	require.Len(t, threads, 3)

	assert.Equal(t, "a1", threads[0].ID)
	assert.False(t, threads[0].Archived)
	assert.Equal(t, since.Add(time.Hour), threads[0].LastActivityAt)

	assert.Equal(t, "ar1", threads[1].ID)
	assert.True(t, threads[1].Archived)
	assert.Equal(t, since.Add(2*time.Hour), threads[1].LastActivityAt, "last message wins over archive time")

	assert.Equal(t, "ar2", threads[2].ID)
	assert.Equal(t, 2, archivedCalls, "paging stops once archive time predates the cutoff")
}

func TestCurrentUserID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/@me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, user{ID: "bot-1", Username: "threadsync", Bot: true})
	})
	id, err := newTestProvider(t, mux).CurrentUserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bot-1", id)
}
