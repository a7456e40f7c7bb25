package blog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *fetcherMock) {
	t.Helper()
	fetcher := newFetcherMock()
	return NewStore(NewCache(fetcher, time.Minute, nil)), fetcher
}

func TestStore_GetAllPosts(t *testing.T) {
	store, fetcher := newTestStore(t)

	posts, err := store.GetAllPosts(context.Background(), "sheet1")
	require.NoError(t, err)
	require.Len(t, posts, 2)

	// sheet order is preserved
	assert.Equal(t, "Hello World", posts[0].Title)
	assert.Equal(t, "Second Post", posts[1].Title)

	// all store reads share one cache entry
	_, err = store.GetSEO(context.Background(), "sheet1")
	require.NoError(t, err)
	_, err = store.GetCSS(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.callCount(sheetPosts))
}

func TestStore_GetSinglePost(t *testing.T) {
	store, _ := newTestStore(t)

	post, err := store.GetSinglePost(context.Background(), "sheet1", "hello-world")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", post.Title)
	assert.Equal(t, "Alice", post.Author)

	// slug lookup ignores case
	post, err = store.GetSinglePost(context.Background(), "sheet1", "Hello-World")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", post.Title)

	_, err = store.GetSinglePost(context.Background(), "sheet1", "no-such-post")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPostNotFound))
}

func TestStore_GetSEO(t *testing.T) {
	store, _ := newTestStore(t)

	seo, err := store.GetSEO(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Equal(t, "Test Blog", seo.Title)
	assert.Equal(t, "A blog for tests", seo.Description)
}

func TestStore_GetCSS(t *testing.T) {
	store, _ := newTestStore(t)

	css, err := store.GetCSS(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Equal(t, "body { margin: 0; }", css)
}

func TestStore_defaults(t *testing.T) {
	fetcher := newFetcherMock()
	fetcher.setErr(sheetSettings, errors.New("tab not there"))
	store := NewStore(NewCache(fetcher, time.Minute, nil))

	seo, err := store.GetSEO(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Equal(t, SEO{}, seo)

	css, err := store.GetCSS(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Empty(t, css)
}

func TestStore_fetchErrorSurfaces(t *testing.T) {
	fetcher := newFetcherMock()
	fetcher.setErr(sheetPosts, errors.New("no such spreadsheet"))
	store := NewStore(NewCache(fetcher, time.Minute, nil))

	_, err := store.GetAllPosts(context.Background(), "sheet1")
	require.Error(t, err)

	_, err = store.GetSinglePost(context.Background(), "sheet1", "hello-world")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPostNotFound))
}
