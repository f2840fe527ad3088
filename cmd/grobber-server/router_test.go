package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/sources"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/streams"
	"github.com/nyxmedia/grobber/internal/uid"
	"github.com/nyxmedia/grobber/pkg/grobber"
)

type stubExtractor struct {
	id       string
	hits     []media.SearchHit
	episodes map[int]media.Episode
}

func (s *stubExtractor) ID() string { return s.id }

func (s *stubExtractor) Search(ctx context.Context, query, language string, dubbed bool) (<-chan media.SearchHit, error) {
	out := make(chan media.SearchHit, len(s.hits))
	for _, h := range s.hits {
		out <- h
	}
	close(out)
	return out, nil
}

func (s *stubExtractor) GetEpisodes(ctx context.Context, m media.Medium) (map[int]media.Episode, error) {
	return s.episodes, nil
}

func (s *stubExtractor) GetEpisode(ctx context.Context, m media.Medium, index int) (media.Episode, error) {
	ep, ok := s.episodes[index]
	if !ok {
		return media.Episode{}, errMissing{}
	}
	return ep, nil
}

type errMissing struct{}

func (errMissing) Error() string { return "missing" }

type stubStreamExtractor struct {
	s media.Stream
}

func (s stubStreamExtractor) ID() string                                        { return "stub" }
func (s stubStreamExtractor) Priority() int                                     { return s.s.Priority }
func (s stubStreamExtractor) CanHandle(hostURL string) bool                     { return hostURL == s.s.HostURL }
func (s stubStreamExtractor) Extract(ctx context.Context, hostURL string) (media.Stream, error) {
	return s.s, nil
}

func newTestRouter(t *testing.T) (http.Handler, uid.UID) {
	t.Helper()
	srcReg := sources.NewRegistry()
	streamReg := streams.NewRegistry(log.Default())
	streamReg.Register(1,
		func(hostURL string) bool { return hostURL == "http://host/a" },
		func(*log.Logger) media.StreamExtractor {
			return stubStreamExtractor{s: media.Stream{
				HostURL: "http://host/a", Extractor: "stub", Links: []string{"http://host/a"},
				External: true, Priority: 1,
			}}
		},
	)
	streamReg.Freeze()
	mem := store.NewMemoryStore()

	mid := uid.Normalize("Naruto")
	u := uid.Create(uid.Anime, mid, "stub", "en", false)
	srcReg.Register(&stubExtractor{
		id:       "stub",
		hits:     []media.SearchHit{{Medium: media.Medium{UID: u, MediumType: uid.Anime, MediumID: mid, Source: "stub", Language: "en", Title: "Naruto"}, Certainty: 0.9}},
		episodes: map[int]media.Episode{0: {Index: 0, RawStreams: []string{"http://host/a"}}},
	})
	if err := mem.Upsert(context.Background(), "media", store.Document{
		"uid": u.String(), "mediumType": "a", "mediumId": mid,
		"source": "stub", "language": "en", "dubbed": false, "title": "Naruto",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	client := grobber.NewClientWithRegistries(mem, srcReg, streamReg)
	return NewRouter(client, log.Default()), u
}

func TestRouterAnimeByUID(t *testing.T) {
	router, u := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/anime/?uid="+u.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouterAnimeMissingParamsIsBadRequest(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/anime/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRouterSearch(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/anime/search?anime=naruto&results=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouterSearchRejectsOutOfRangeResults(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/anime/search?anime=naruto&results=99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRouterEpisode(t *testing.T) {
	router, u := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/anime/episode/?uid="+u.String()+"&episode=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouterSourceRedirects(t *testing.T) {
	router, u := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/anime/source/"+u.String()+"/0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "http://host/a" {
		t.Errorf("Location = %q, want http://host/a", loc)
	}
}

func TestRouterEpisodeMissingIndexIsBadRequest(t *testing.T) {
	router, u := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/anime/episode/?uid="+u.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
