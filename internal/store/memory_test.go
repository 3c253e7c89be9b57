package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/threadsync/internal/models"
)

func TestMemoryPages(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.CreatePage(ctx, models.PageInput{
		ConversationID: "t1",
		Title:          "Design review",
		Blocks:         []models.Block{models.Paragraph("hello")},
	})
	require.NoError(t, err)

	got, found, err := m.FindPage(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)

	_, found, err = m.FindPage(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, found)

	// Pages without a conversation never match an empty lookup.
	_, err = m.CreatePage(ctx, models.PageInput{Title: "Routed"})
	require.NoError(t, err)
	_, found, err = m.FindPage(ctx, "")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.AppendBlocks(ctx, id, []models.Block{models.Heading("More"), models.Paragraph("world")}))
	text, err := m.ReadAllText(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello\n## More\nworld", text)

	refs, err := m.ListPages(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, models.PageRef{ID: id, Title: "Design review"}, refs[0])
	assert.Equal(t, "Routed", refs[1].Title)
}

func TestMemoryCreatePageRejectsDuplicateConversation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.CreatePage(ctx, models.PageInput{ConversationID: "t1"})
	require.NoError(t, err)

	_, err = m.CreatePage(ctx, models.PageInput{ConversationID: "t1"})
	assert.ErrorIs(t, err, ErrStoreWrite)
}

func TestMemoryMissingPage(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.AppendBlocks(ctx, "nope", []models.Block{models.Paragraph("x")})
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ReadAllText(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = m.LinkAssets(ctx, "nope", []string{"a"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLinkAssetsIsUnion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	page, err := m.CreatePage(ctx, models.PageInput{Title: "p"})
	require.NoError(t, err)
	a, err := m.CreateAsset(ctx, models.AssetInput{Filename: "a.png", URL: "https://blob.test/a.png"})
	require.NoError(t, err)
	b, err := m.CreateAsset(ctx, models.AssetInput{Filename: "b.png", URL: "https://blob.test/b.png"})
	require.NoError(t, err)

	require.NoError(t, m.LinkAssets(ctx, page, []string{a}))
	require.NoError(t, m.LinkAssets(ctx, page, []string{a, b}))

	p, ok := m.Page(page)
	require.True(t, ok)
	assert.Equal(t, []string{a, b}, p.LinkedAssets)

	err = m.LinkAssets(ctx, page, []string{"unknown"})
	assert.ErrorIs(t, err, ErrStoreWrite)
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.RecordDone(ctx, "m1", "p1"))
	// Second record is a no-op and keeps the first page id.
	require.NoError(t, m.RecordDone(ctx, "m1", "p2"))
	require.NoError(t, m.RecordDone(ctx, "m2", "p1"))

	ids, err := m.ListDoneIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"m1": {}, "m2": {}}, ids)
	assert.Equal(t, []models.DoneRecord{
		{EventID: "m1", PageID: "p1"},
		{EventID: "m2", PageID: "p1"},
	}, m.DoneRecords())
}

func TestMemoryPageReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.CreatePage(ctx, models.PageInput{Blocks: []models.Block{models.Paragraph("a")}})
	require.NoError(t, err)

	p, _ := m.Page(id)
	p.Body[0].Text = "changed"

	again, _ := m.Page(id)
	assert.Equal(t, "a", again.Body[0].Text)
}
