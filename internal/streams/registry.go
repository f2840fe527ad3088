// Package streams implements the stream extractor registry and
// reference extractors: a process-global, priority-ordered,
// registration-then-freeze dispatch from a host URL to the extractor
// that owns it.
package streams

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"

	"github.com/nyxmedia/grobber/internal/grequest"
	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
)

// Registry is the process-global, priority-ordered stream extractor
// list. Registration is forbidden after Freeze.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	factories []factory
	logger   *log.Logger
}

type factory struct {
	canHandle func(hostURL string) bool
	build     func(logger *log.Logger) media.StreamExtractor
	priority  int
}

// NewRegistry builds an empty Registry.
func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{logger: logger}
}

// Default is the process-global registry the reference extractors
// register themselves into from their init() funcs. Call Freeze once,
// after every extractor package has had a chance to init, before
// first Dispatch.
var Default = NewRegistry(log.Default())

// Register adds an extractor factory. Panics if called after Freeze.
func (r *Registry) Register(priority int, canHandle func(string) bool, build func(*log.Logger) media.StreamExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("streams: registration attempted after Freeze")
	}
	r.factories = append(r.factories, factory{canHandle, build, priority})
}

// Freeze sorts factories by priority descending and forbids further
// registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.SliceStable(r.factories, func(i, j int) bool { return r.factories[i].priority > r.factories[j].priority })
	r.frozen = true
}

// Dispatch iterates factories in priority order and returns the
// extraction result of the first whose canHandle matches: the first
// factory that claims the URL instantiates and owns the extraction.
func (r *Registry) Dispatch(ctx context.Context, hostURL string) (media.Stream, error) {
	extractor, ok := r.Resolve(hostURL)
	if !ok {
		return media.Stream{}, grerr.New(grerr.ExtractError, "no stream extractor for "+hostURL)
	}
	return extractor.Extract(ctx, hostURL)
}

// Resolve iterates factories in priority order and instantiates the
// first whose canHandle matches, without extracting: callers can
// inspect the extractor's Priority before deciding whether to run it.
func (r *Registry) Resolve(hostURL string) (media.StreamExtractor, bool) {
	r.mu.RLock()
	factories := r.factories
	r.mu.RUnlock()

	for _, f := range factories {
		if f.canHandle(hostURL) {
			return f.build(r.logger), true
		}
	}
	return nil, false
}

// probeClient is the internal/grequest collaborator every extractor's
// HEAD probe and embed-page fetch shares, so a transient 403/429/503
// from a stream host gets the same staggered-retry, circuit-breaker,
// and proxy-escalation treatment as every other HTTP call in the
// module instead of being treated as permanently dead.
var probeClient = mustProbeClient()

func mustProbeClient() *grequest.Client {
	c, err := grequest.NewClient("", nil)
	if err != nil {
		panic(err)
	}
	return c
}

// headProbe is the shared HEAD-probe helper: HEAD the url (following
// redirects), accept only a video/* content-type, falling back to
// mimetype sniffing when Content-Type is absent or generic.
func headProbe(ctx context.Context, url string) (accepted bool, finalURL string) {
	req := grequest.New(probeClient, url, nil, nil, 0)
	resp, err := req.Head(ctx)
	if err != nil {
		return false, ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return false, ""
	}

	ct := resp.Header.Get("Content-Type")
	if len(ct) >= 6 && ct[:6] == "video/" {
		return true, resp.Request.URL.String()
	}
	if ct == "" || ct == "application/octet-stream" {
		getResp, err := req.Raw(ctx, http.MethodGet)
		if err != nil {
			return false, ""
		}
		defer getResp.Body.Close()
		mt, err := mimetype.DetectReader(getResp.Body)
		if err == nil && len(mt.String()) >= 6 && mt.String()[:6] == "video/" {
			return true, getResp.Request.URL.String()
		}
	}
	return false, ""
}

// fetchEmbedPage performs method against url through internal/grequest
// and returns the raw response body, for extractors that parse an
// embed page's HTML or hit its JSON source API directly rather than
// going through headProbe.
func fetchEmbedPage(ctx context.Context, method, url string) ([]byte, error) {
	req := grequest.New(probeClient, url, nil, nil, 0)
	resp, err := req.Raw(ctx, method)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, grerr.New(grerr.ExtractError, fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, url))
	}
	return io.ReadAll(resp.Body)
}
