package fetcher

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, srv *httptest.Server) *Fetcher {
	t.Helper()
	return New(Config{
		BaseURL:        srv.URL,
		CacheRoot:      t.TempDir(),
		CacheEnabled:   true,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
	}, nil)
}

func TestFetcherGetInventoryDownloadsAndCaches(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("code\tlast update of data\nds1\t2024-01-01\n"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)

	path1, err := f.GetInventory(t.Context())
	require.NoError(t, err)
	content, err := os.ReadFile(path1)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ds1")

	path2, err := f.GetInventory(t.Context())
	require.NoError(t, err)
	assert.Equal(t, path1, path2)
	assert.Equal(t, 1, hits, "second call must be served from cache, not the network")
}

func TestFetcherClassifiesNotFoundAsTerminal(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	_, err := f.GetDSD(t.Context(), "missing_dataset")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFetchNotFound)
	assert.Equal(t, 1, hits, "a 404 must not be retried")
}

func TestFetcherRetriesTransientFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	path, err := f.GetTSV(t.Context(), "ds1")
	require.NoError(t, err)
	assert.Equal(t, 3, hits)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(content))
}

func TestFetcherExhaustsRetriesAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	_, err := f.GetCodelist(t.Context(), "CL_GEO")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFetchTransient)
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)

	_, ok := c.Path("some-key")
	assert.False(t, ok)

	tmp, err := c.OpenTemp("some-key")
	require.NoError(t, err)
	_, err = tmp.WriteString("payload")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	final, err := c.Commit("some-key", tmp.Name())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "some-key"), final)

	p, ok := c.Path("some-key")
	require.True(t, ok)
	content, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestCacheAbortRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)

	tmp, err := c.OpenTemp("abandoned")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	require.NoError(t, c.Abort(tmp.Name()))
	_, err = os.Stat(tmp.Name())
	assert.True(t, os.IsNotExist(err))
}
