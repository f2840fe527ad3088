// Package search implements the two-phase fan-out pipeline: a bounded
// batch window lets slower sources catch up before a free-for-all
// phase closes out the remaining results, then the merged pool is
// trimmed, sorted, and partially preloaded.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/group"
	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/sources"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/textsim"
	"github.com/nyxmedia/grobber/internal/uid"
)

// BatchWindow is the Phase A deadline (~5s), the window during which
// no single fast source is allowed to dominate the pool.
var BatchWindow = 5 * time.Second

// Options parameterizes a search call; zero value is invalid, use
// NewOptions to apply defaults.
type Options struct {
	Query      string
	Language   string
	Dubbed     bool
	NumResults int
	Group      bool
}

// NewOptions validates and defaults an Options: a NumResults of 0 or
// less becomes 1, and a NumResults above 20 is rejected.
func NewOptions(query, language string, dubbed bool, numResults int, group bool) (Options, error) {
	if query == "" {
		return Options{}, grerr.New(grerr.InvalidRequest, "no query specified")
	}
	if numResults <= 0 {
		numResults = 1
	}
	if numResults > 20 {
		return Options{}, grerr.New(grerr.InvalidRequest, "can only request up to 20 results")
	}
	return Options{Query: query, Language: language, Dubbed: dubbed, NumResults: numResults, Group: group}, nil
}

func considerResults(numResults, sourceCount int) int {
	fivePercent := int(1.5 * float64(sourceCount))
	capped := fivePercent
	if capped > 5 {
		capped = 5
	}
	if numResults > capped {
		return numResults
	}
	return capped
}

// Pipeline wires the registries and store a concrete search call needs.
type Pipeline struct {
	Sources *sources.Registry
	Store   store.Store
}

// New builds a Pipeline over the given source registry and store.
func New(reg *sources.Registry, st store.Store) *Pipeline {
	return &Pipeline{Sources: reg, Store: st}
}

type hit struct {
	medium    media.Medium
	certainty float64
}

// Search runs the full search algorithm: database hit set, live
// fan-out (skipped once the pool already satisfies NumResults),
// optional grouping, sort, and truncation. Before returning, every
// ungrouped result's preload attributes are computed (and any expired
// changing attribute recomputed) via internal/stateful; a grouped
// result aggregates several Media under one uid and has no single
// owning source to preload against.
func (p *Pipeline) Search(ctx context.Context, opts Options) ([]media.SearchResult, error) {
	if cached, ok := p.cachedSearchLookup(ctx, opts); ok {
		sortResults(cached)
		if len(cached) > opts.NumResults {
			cached = cached[:opts.NumResults]
		}
		p.preloadResults(ctx, cached)
		return cached, nil
	}

	pool := map[string]hit{}

	dbHits, err := p.databaseHitSet(ctx, opts)
	if err == nil {
		for _, m := range dbHits {
			pool[m.UID.String()] = hit{medium: m, certainty: 1.0}
		}
	}

	if len(pool) < opts.NumResults {
		extractors := p.Sources.All()
		live, err := p.liveFanOut(ctx, opts, extractors)
		if err != nil {
			return nil, err
		}
		for uidStr, h := range live {
			if _, exists := pool[uidStr]; !exists {
				pool[uidStr] = h
			}
		}
	}

	members := make([]media.Medium, 0, len(pool))
	for _, h := range pool {
		members = append(members, h.medium)
	}

	var results []media.SearchResult
	if opts.Group {
		clusters, err := group.GroupMedia(ctx, members, false)
		if err != nil {
			return nil, err
		}
		for _, c := range clusters {
			grp := c.ToGroup()
			results = append(results, media.SearchResult{
				Anime:     groupView{&grp},
				Certainty: textsim.Ratio(grp.Title(), opts.Query),
			})
		}
	} else {
		for _, h := range pool {
			results = append(results, media.SearchResult{Anime: mediumView{h.medium}, Certainty: h.certainty})
		}
	}

	sortResults(results)
	if len(results) > opts.NumResults {
		results = results[:opts.NumResults]
	}
	p.preloadResults(ctx, results)
	p.recordSearchResult(ctx, opts, results)
	return results, nil
}

// searchResultsCollection is the cached-search short-circuit's
// backing collection: one row per (query, language, dubbed, group)
// tuple, holding every uid it previously served so a repeat query for
// no more results than last time skips the live fan-out entirely.
const searchResultsCollection = "search_results"

func cacheKey(opts Options) string {
	return fmt.Sprintf("%s\x1f%s\x1f%v\x1f%v", opts.Query, opts.Language, opts.Dubbed, opts.Group)
}

// cachedSearchLookup returns a previously-served result set if the
// store holds one recorded for a request of at least opts.NumResults
// results, skipping the live fan-out entirely. Each recorded uid is
// re-read from the "media" collection (uids not found there are
// skipped) and returned with certainty 1.0.
func (p *Pipeline) cachedSearchLookup(ctx context.Context, opts Options) ([]media.SearchResult, bool) {
	if p.Store == nil {
		return nil, false
	}
	doc, err := p.Store.Get(ctx, searchResultsCollection, cacheKey(opts))
	if err != nil || doc == nil {
		return nil, false
	}
	servedFor, _ := doc["numResults"].(float64)
	if int(servedFor) < opts.NumResults {
		return nil, false
	}
	rawUIDs, _ := doc["uids"].([]interface{})
	results := make([]media.SearchResult, 0, len(rawUIDs))
	for _, raw := range rawUIDs {
		uidStr, _ := raw.(string)
		if _, err := uid.Parse(uidStr); err != nil {
			continue
		}
		mdoc, err := p.Store.Get(ctx, "media", uidStr)
		if err != nil || mdoc == nil {
			continue
		}
		m, err := mediumFromDocument(mdoc)
		if err != nil {
			continue
		}
		results = append(results, media.SearchResult{Anime: mediumView{m}, Certainty: 1.0})
	}
	if len(results) == 0 {
		return nil, false
	}
	return results, true
}

// recordSearchResult writes back the uids a live search served, so a
// repeat query for the same or fewer results can short-circuit next
// time. Best-effort: failures are not surfaced to the caller.
func (p *Pipeline) recordSearchResult(ctx context.Context, opts Options, results []media.SearchResult) {
	if p.Store == nil || len(results) == 0 {
		return
	}
	uids := make([]interface{}, 0, len(results))
	for _, r := range results {
		uids = append(uids, r.Anime.ViewUID().String())
	}
	_ = p.Store.Upsert(ctx, searchResultsCollection, store.Document{
		"uid":        cacheKey(opts),
		"numResults": opts.NumResults,
		"uids":       uids,
	})
}

func (p *Pipeline) databaseHitSet(ctx context.Context, opts Options) ([]media.Medium, error) {
	if p.Store == nil {
		return nil, nil
	}
	filter := store.Filter{
		"title":    opts.Query,
		"language": opts.Language,
		"dubbed":   opts.Dubbed,
	}
	docs, err := p.Store.Find(ctx, "media", filter)
	if err != nil {
		return nil, err
	}
	out := make([]media.Medium, 0, len(docs))
	for _, d := range docs {
		m, err := mediumFromDocument(d)
		if err == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// liveFanOut implements Phase A (batch, ≈BatchWindow) followed by
// Phase B (free-for-all), stopping once the pool reaches
// considerResults or every source channel closes.
func (p *Pipeline) liveFanOut(ctx context.Context, opts Options, extractors []media.SourceExtractor) (map[string]hit, error) {
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type tagged struct {
		h  media.SearchHit
		ok bool
	}
	merged := make(chan tagged)

	var active int
	for _, ex := range extractors {
		ch, err := ex.Search(fanCtx, opts.Query, opts.Language, opts.Dubbed)
		if err != nil {
			continue
		}
		active++
		go func(ch <-chan media.SearchHit) {
			for h := range ch {
				select {
				case merged <- tagged{h: h, ok: true}:
				case <-fanCtx.Done():
					return
				}
			}
			select {
			case merged <- tagged{ok: false}:
			case <-fanCtx.Done():
			}
		}(ch)
	}

	pool := map[string]hit{}
	threshold := considerResults(opts.NumResults, len(extractors))
	deadline := time.NewTimer(BatchWindow)
	defer deadline.Stop()

	phaseA := true
	for active > 0 {
		select {
		case t := <-merged:
			if !t.ok {
				active--
				continue
			}
			pool[t.h.Medium.UID.String()] = hit{medium: t.h.Medium, certainty: t.h.Certainty}
			if !phaseA && len(pool) >= threshold {
				return pool, nil
			}
		case <-deadline.C:
			phaseA = false
			if len(pool) >= threshold {
				return pool, nil
			}
		case <-ctx.Done():
			return pool, ctx.Err()
		}
	}
	return pool, nil
}

// sourceCounter is implemented by groupView (a MediumGroup may span
// several sources); mediumView has no meaningful source count.
type sourceCounter interface {
	ViewSourceCount() int
}

func sourceCountOf(v media.AnimeView) int {
	if sc, ok := v.(sourceCounter); ok {
		return sc.ViewSourceCount()
	}
	return 1
}

func episodeCountOf(v media.AnimeView) int {
	if c := v.ViewEpisodeCount(); c != nil {
		return *c
	}
	return 0
}

// sortResults orders by certainty desc, then title, then episodeCount
// desc, then sourceCount desc.
func sortResults(results []media.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Certainty != b.Certainty {
			return a.Certainty > b.Certainty
		}
		if a.Anime.ViewTitle() != b.Anime.ViewTitle() {
			return a.Anime.ViewTitle() < b.Anime.ViewTitle()
		}
		ac, bc := episodeCountOf(a.Anime), episodeCountOf(b.Anime)
		if ac != bc {
			return ac > bc
		}
		return sourceCountOf(a.Anime) > sourceCountOf(b.Anime)
	})
}

func mediumFromDocument(d store.Document) (media.Medium, error) {
	return group.MediumFromDocument(d)
}

// mediumView adapts a bare Medium to media.AnimeView for ungrouped
// search results.
type mediumView struct{ m media.Medium }

func (v mediumView) ViewUID() uid.UID         { return v.m.UID }
func (v mediumView) ViewTitle() string        { return v.m.Title }
func (v mediumView) ViewEpisodeCount() *int   { return v.m.EpisodeCount }

// groupView adapts a MediumGroup to media.AnimeView for grouped
// search results.
type groupView struct{ g *media.MediumGroup }

func (v groupView) ViewUID() uid.UID        { return v.g.UID() }
func (v groupView) ViewTitle() string       { return v.g.Title() }
func (v groupView) ViewEpisodeCount() *int  { return v.g.EpisodeCount() }
func (v groupView) ViewSourceCount() int    { return v.g.SourceCount() }
