package urlpool_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/grequest"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/urlpool"
)

func newTestClient(t *testing.T) *grequest.Client {
	t.Helper()
	c, err := grequest.NewClient("", nil)
	require.NoError(t, err)
	return c
}

func TestResolvePicksWorkingMirrorAndStripsSlash(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer dead.Close()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer alive.Close()

	st := store.NewMemoryStore()
	pool := urlpool.New("gogoanime", []string{dead.URL, alive.URL + "/"}, st, newTestClient(t))

	got, err := pool.Resolve(context.Background(), "gogoanime")
	require.NoError(t, err)
	assert.Equal(t, alive.URL, got)

	doc, err := st.Get(context.Background(), "url_pools", "gogoanime")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, alive.URL+"/", doc["url"])
}

func TestResolveErrorsWhenNoMirrorResponds(t *testing.T) {
	st := store.NewMemoryStore()
	pool := urlpool.New("broken", []string{"http://127.0.0.1:1"}, st, newTestClient(t))

	_, err := pool.Resolve(context.Background(), "broken")
	assert.Error(t, err)
}

func TestResolveIsCachedAcrossCalls(t *testing.T) {
	hits := 0
	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer alive.Close()

	st := store.NewMemoryStore()
	pool := urlpool.New("cached", []string{alive.URL}, st, newTestClient(t))

	_, err := pool.Resolve(context.Background(), "cached")
	require.NoError(t, err)
	_, err = pool.Resolve(context.Background(), "cached")
	require.NoError(t, err)

	assert.Equal(t, 1, hits, "second Resolve should be served from the in-process cache")
}
