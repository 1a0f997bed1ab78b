package models

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestChildInheritsContext(t *testing.T) {
	parent := NewScrapeItem(mustURL(t, "https://coomer.su/onlyfans/user/alice"))
	parent.AddToParentTitle("alice (Coomer)")
	parent.AlbumID = "42"

	child := parent.Child(mustURL(t, "https://coomer.su/data/a/b.jpg"), ChildOptions{
		Title:     "2024-01-02 10:00:00 - Hello/World",
		AddParent: mustURL(t, "https://coomer.su/onlyfans/user/alice/post/42"),
		Datetime:  1704189600,
	})

	assert.Equal(t, "alice (Coomer)/2024-01-02 10-00-00 - Hello-World", child.ParentTitle)
	assert.Equal(t, "42", child.AlbumID)
	assert.Equal(t, int64(1704189600), child.PossibleDatetime)
	assert.Equal(t, "https://coomer.su/onlyfans/user/alice/post/42", child.Referer())

	// the parent is untouched
	assert.Equal(t, "alice (Coomer)", parent.ParentTitle)
	assert.Empty(t, parent.Parents)
}

func TestRefererFallsBackToOwnURL(t *testing.T) {
	item := NewScrapeItem(mustURL(t, "https://coomer.su/data/x.png"))
	assert.Equal(t, "https://coomer.su/data/x.png", item.Referer())
}

func TestAddToParentTitleIgnoresEmpty(t *testing.T) {
	item := NewScrapeItem(mustURL(t, "https://coomer.su"))
	item.AddToParentTitle("  ")
	assert.Empty(t, item.ParentTitle)
}

func TestPostDecodesEmptyFile(t *testing.T) {
	var p Post
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","title":"t","content":"","file":{},"attachments":[{"name":"a.jpg","path":"/ab/cd/a.jpg"}]}`), &p))
	assert.False(t, p.File.Present())
	require.Len(t, p.Attachments, 1)
	assert.True(t, p.Attachments[0].Present())
}
