package blog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aTylerRobertson/sheet-posting/internal/sheets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPostsCSV = `Title,Author,Tags,Body,Published
Hello World,Alice,"intro, meta",<p>First post!</p>,2023-05-01
Second Post,Bob,golang,<p>More words.</p>,2023-05-02
`

const testSettingsCSV = `Key,Value
Title,Test Blog
Description,A blog for tests
CSS,body { margin: 0; }
`

type fetcherMock struct {
	mutex  sync.Mutex
	sheets map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFetcherMock() *fetcherMock {
	return &fetcherMock{
		sheets: map[string]string{
			sheetPosts:    testPostsCSV,
			sheetSettings: testSettingsCSV,
		},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fetcherMock) Fetch(_ context.Context, spreadsheetID, sheet string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls[sheet]++
	if err := f.errs[sheet]; err != nil {
		return "", err
	}
	return f.sheets[sheet], nil
}

func (f *fetcherMock) callCount(sheet string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls[sheet]
}

func (f *fetcherMock) setErr(sheet string, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.errs[sheet] = err
}

func (f *fetcherMock) setSheet(sheet, raw string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sheets[sheet] = raw
}

func TestCache_GetOrFetch(t *testing.T) {
	fetcher := newFetcherMock()
	cache := NewCache(fetcher, time.Minute, nil)

	entry, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "sheet1", entry.SpreadsheetID)
	assert.Len(t, entry.Posts(), 2)
	assert.Equal(t, "Test Blog", entry.Meta.SEO.Title)
	assert.Equal(t, "body { margin: 0; }", entry.Meta.CSS)

	// a second read within the TTL never touches the fetcher
	again, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Same(t, entry, again)
	assert.Equal(t, 1, fetcher.callCount(sheetPosts))
	assert.Equal(t, 1, fetcher.callCount(sheetSettings))
}

func TestCache_GetOrFetch_ttlExpiry(t *testing.T) {
	fetcher := newFetcherMock()
	cache := NewCache(fetcher, time.Minute, nil)

	currentTime := time.Now()
	cache.now = func() time.Time { return currentTime }

	_, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.callCount(sheetPosts))

	// still fresh just before the deadline
	currentTime = currentTime.Add(59 * time.Second)
	_, err = cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.callCount(sheetPosts))

	// expired, new content picked up
	fetcher.setSheet(sheetPosts, "Title\nFresh Post\n")
	currentTime = currentTime.Add(2 * time.Second)
	entry, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount(sheetPosts))
	require.Len(t, entry.Posts(), 1)
	assert.Equal(t, "Fresh Post", entry.Posts()[0].Title)
}

func TestCache_GetOrFetch_staleOnError(t *testing.T) {
	fetcher := newFetcherMock()
	cache := NewCache(fetcher, time.Minute, nil)

	currentTime := time.Now()
	cache.now = func() time.Time { return currentTime }

	entry, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)

	// entry expires and the upstream starts failing
	fetcher.setErr(sheetPosts, errors.New("upstream down"))
	currentTime = currentTime.Add(2 * time.Minute)

	stale, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Same(t, entry, stale)
	assert.Len(t, stale.Posts(), 2)
}

func TestCache_GetOrFetch_firstFetchFails(t *testing.T) {
	fetcher := newFetcherMock()
	fetcher.setErr(sheetPosts, &sheets.FetchError{
		SpreadsheetID: "sheet1",
		StatusCode:    http.StatusNotFound,
	})
	cache := NewCache(fetcher, time.Minute, nil)

	_, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.Error(t, err)

	var fetchErr *sheets.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestCache_GetOrFetch_settingsFetchFailSoft(t *testing.T) {
	fetcher := newFetcherMock()
	fetcher.setErr(sheetSettings, errors.New("no settings tab"))
	cache := NewCache(fetcher, time.Minute, nil)

	entry, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Len(t, entry.Posts(), 2)
	assert.Equal(t, Metadata{}, entry.Meta)
}

func TestCache_GetOrFetch_concurrent(t *testing.T) {
	fetcher := newFetcherMock()
	cache := NewCache(fetcher, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := cache.GetOrFetch(context.Background(), "sheet1")
			assert.NoError(t, err)
			assert.Len(t, entry.Posts(), 2)
		}()
	}
	wg.Wait()

	// all twenty readers shared one refresh
	assert.Equal(t, 1, fetcher.callCount(sheetPosts))
}

func TestCache_separateSpreadsheets(t *testing.T) {
	fetcher := newFetcherMock()
	cache := NewCache(fetcher, time.Minute, nil)

	for i := 0; i < 3; i++ {
		_, err := cache.GetOrFetch(context.Background(), fmt.Sprintf("sheet%d", i))
		require.NoError(t, err)
	}

	// one refresh per spreadsheet, entries do not shadow each other
	assert.Equal(t, 3, fetcher.callCount(sheetPosts))
}

func TestCache_Invalidate(t *testing.T) {
	fetcher := newFetcherMock()
	cache := NewCache(fetcher, time.Minute, nil)

	_, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.callCount(sheetPosts))

	cache.Invalidate("sheet1")

	_, err = cache.GetOrFetch(context.Background(), "sheet1")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount(sheetPosts))
}

func TestCache_GetOrFetch_parseErrorPropagates(t *testing.T) {
	fetcher := newFetcherMock()
	fetcher.setSheet(sheetPosts, "")
	cache := NewCache(fetcher, time.Minute, nil)

	_, err := cache.GetOrFetch(context.Background(), "sheet1")
	require.Error(t, err)

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}
