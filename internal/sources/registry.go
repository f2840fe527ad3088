// Package sources implements the source extractor registry: a
// process-global, registration-then-freeze set of search/episode
// sources keyed by lowercase id.
package sources

import (
	"context"
	"strings"
	"sync"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/uid"
)

// Registry is the process-global source extractor set, keyed by
// lowercase extractor id. Registration is forbidden after Freeze.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	byID     map[string]media.SourceExtractor
	order    []string
	// dirty is the write-back cache: uid -> Medium. It is built with no
	// TTL and no capacity limit, so an entry stays until FlushAll or
	// Drop removes it.
	dirty *ttlcache.Cache[string, media.Medium]
}

// NewRegistry builds an empty Registry with its write-back cache
// started.
func NewRegistry() *Registry {
	cache := ttlcache.New[string, media.Medium]()
	go cache.Start()
	return &Registry{byID: map[string]media.SourceExtractor{}, dirty: cache}
}

// Register adds a source extractor under its lowercase id. Panics if
// called after Freeze.
func (r *Registry) Register(extractor media.SourceExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("sources: registration attempted after Freeze")
	}
	id := strings.ToLower(extractor.ID())
	if _, exists := r.byID[id]; exists {
		panic("sources: duplicate extractor id " + id)
	}
	r.byID[id] = extractor
	r.order = append(r.order, id)
}

// Freeze forbids further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get returns the extractor registered under id, or SourceNotFound.
func (r *Registry) Get(id string) (media.SourceExtractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[strings.ToLower(id)]
	if !ok {
		return nil, grerr.New(grerr.SourceNotFound, "no source extractor registered for "+id)
	}
	return e, nil
}

// All returns every registered extractor in registration order,
// the fan-out target of internal/search.
func (r *Registry) All() []media.SourceExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]media.SourceExtractor, len(r.order))
	for i, id := range r.order {
		out[i] = r.byID[id]
	}
	return out
}

// MarkDirty records that m was mutated in memory and needs a flush.
func (r *Registry) MarkDirty(m media.Medium) {
	r.dirty.Set(m.UID.String(), m, ttlcache.DefaultTTL)
}

// Drop removes uid from the dirty cache without flushing it.
func (r *Registry) Drop(u uid.UID) {
	r.dirty.Delete(u.String())
}

// FlushAll returns every currently-dirty Medium and clears the cache.
func (r *Registry) FlushAll() []media.Medium {
	items := r.dirty.Items()
	out := make([]media.Medium, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value())
	}
	r.dirty.DeleteAll()
	return out
}

// Default is the process-global registry the reference extractors
// register into from their init() funcs.
var Default = NewRegistry()

// GetEpisodes is a convenience wrapper dispatching to the extractor
// named by m.Source.
func GetEpisodes(ctx context.Context, reg *Registry, m media.Medium) (map[int]media.Episode, error) {
	e, err := reg.Get(m.Source)
	if err != nil {
		return nil, err
	}
	return e.GetEpisodes(ctx, m)
}

// GetEpisode is a convenience wrapper dispatching to the extractor
// named by m.Source, returning EpisodeNotFound if absent.
func GetEpisode(ctx context.Context, reg *Registry, m media.Medium, index int) (media.Episode, error) {
	e, err := reg.Get(m.Source)
	if err != nil {
		return media.Episode{}, err
	}
	ep, err := e.GetEpisode(ctx, m, index)
	if err != nil {
		return media.Episode{}, grerr.Wrap(grerr.EpisodeNotFound, err, "get episode")
	}
	return ep, nil
}
