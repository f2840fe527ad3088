// Command grobber-server exposes pkg/grobber over six HTTP routes, a
// thin chi router fronting the aggregation engine the same way a
// Flask blueprint fronts a service layer: one handler per route,
// each translating query params into an engine call and the result
// into JSON.
package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/query"
	"github.com/nyxmedia/grobber/pkg/grobber"
)

// NewRouter builds the HTTP surface over client: one chi.NewRouter, a
// small global middleware stack, routes grouped by concern.
func NewRouter(client *grobber.Client, logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	h := &handlers{client: client}

	r.Get("/anime/search", h.search)
	r.Get("/anime/", h.anime)
	r.Get("/anime/episode/", h.episode)
	r.Get("/anime/stream/", h.stream)
	r.Get("/anime/source/{uid}/{episode}", h.source)
	r.Get("/anime/poster/{uid}/{episode}", h.poster)

	return r
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Debug("request", "method", req.Method, "path", req.URL.Path)
			next.ServeHTTP(w, req)
		})
	}
}

type handlers struct {
	client *grobber.Client
}

func paramsFromQuery(q map[string][]string) grobber.Params {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return grobber.Params{
		UID:      get("uid"),
		Anime:    get("anime"),
		Language: get("language"),
		Dubbed:   get("dubbed"),
		Group:    get("group"),
	}
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	numResults := 1
	if v := q.Get("results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 20 {
			writeError(w, grerr.New(grerr.InvalidRequest, "results must be between 1 and 20"))
			return
		}
		numResults = n
	}
	dubbed := query.FuzzyBool(q.Get("dubbed"))
	group := query.FuzzyBool(q.Get("group"))

	results, err := h.client.Search(r.Context(), q.Get("anime"), q.Get("language"), dubbed, numResults, group)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"anime": results})
}

func (h *handlers) anime(w http.ResponseWriter, r *http.Request) {
	params := paramsFromQuery(r.URL.Query())
	anime, err := h.client.Anime(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anime)
}

func (h *handlers) episode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	index, err := parseIndex(q.Get("episode"))
	if err != nil {
		writeError(w, err)
		return
	}
	ep, err := h.client.Episode(r.Context(), paramsFromQuery(q), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	episodeIndex, err := parseIndex(q.Get("episode"))
	if err != nil {
		writeError(w, err)
		return
	}
	streamIndex, err := parseIndex(q.Get("stream"))
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := h.client.Stream(r.Context(), paramsFromQuery(q), episodeIndex, streamIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// source redirects to the first working link: 302 if one resolves,
// 404 if none do. The path carries no explicit source index, so
// sourceIndex defaults to 0 unless ?source= is given.
func (h *handlers) source(w http.ResponseWriter, r *http.Request) {
	episodeIndex, err := parseIndex(chi.URLParam(r, "episode"))
	if err != nil {
		writeError(w, err)
		return
	}
	sourceIndex := 0
	if v := r.URL.Query().Get("source"); v != "" {
		sourceIndex, err = parseIndex(v)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	link, err := h.client.Source(r.Context(), grobber.Params{UID: chi.URLParam(r, "uid")}, episodeIndex, sourceIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

func (h *handlers) poster(w http.ResponseWriter, r *http.Request) {
	episodeIndex, err := parseIndex(chi.URLParam(r, "episode"))
	if err != nil {
		writeError(w, err)
		return
	}
	poster, err := h.client.Poster(r.Context(), grobber.Params{UID: chi.URLParam(r, "uid")}, episodeIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	if poster == "" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, poster, http.StatusFound)
}

func parseIndex(v string) (int, error) {
	if v == "" {
		return 0, grerr.New(grerr.InvalidRequest, "missing required index parameter")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, grerr.Wrap(grerr.InvalidRequest, err, "index must be an integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps the error taxonomy of internal/grerr to HTTP status
// codes: a thin translation layer at the HTTP boundary, nothing more.
func errorStatus(kind grerr.Kind) int {
	switch kind {
	case grerr.InvalidRequest, grerr.UIDInvalid:
		return http.StatusBadRequest
	case grerr.UIDUnknown, grerr.AnimeNotFound, grerr.EpisodeNotFound, grerr.StreamNotFound, grerr.SourceNotFound:
		return http.StatusNotFound
	case grerr.FetchError:
		return http.StatusBadGateway
	case grerr.ExtractError, grerr.IncompatibleMedia:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := grerr.KindOf(err)
	status := errorStatus(kind)
	body := map[string]any{"error": kind.String(), "message": err.Error()}
	if ge, ok := err.(*grerr.Error); ok && ge.CorrelationID() != "" {
		body["correlationId"] = ge.CorrelationID()
	}
	writeJSON(w, status, body)
}
