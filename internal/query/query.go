// Package query implements the query layer: it maps user-visible
// parameters (uid, title, language, dub) onto the rest of the engine,
// the single entry point cmd/grobber-server and pkg/grobber call
// through.
//
// A query tries UID resolution first, then falls through to a live
// search; a uid with no source segment routes to a MediumGroup lookup
// instead of a direct Medium lookup, and a resolved group's episodes
// are merged across every member source.
package query

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/group"
	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/resolve"
	"github.com/nyxmedia/grobber/internal/search"
	"github.com/nyxmedia/grobber/internal/sources"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/uid"
)

// EpisodeBatchWait bounds how long a grouped episode's per-member
// fetches are given before the merge proceeds with whatever arrived
// (~15s).
var EpisodeBatchWait = 15 * time.Second

// SearchFilter is the (language, dubbed) pair every Query can produce
// via SearchParams.
type SearchFilter struct {
	Language string
	Dubbed   bool
}

// Query is one of the constructors AnimeQuery.build tries in order:
// UIDQuery first, then TitleQuery.
type Query interface {
	// SearchParams returns the (language, dubbed) this query implies,
	// or InvalidRequest if the query can't be used to search (a UID
	// names one specific anime, not a search filter).
	SearchParams() (SearchFilter, error)
}

// UIDQuery resolves one specific Medium or MediumGroup by its uid.
type UIDQuery struct {
	UID uid.UID
}

func (q UIDQuery) SearchParams() (SearchFilter, error) {
	return SearchFilter{}, grerr.New(grerr.InvalidRequest, "can't search using a uid")
}

// TitleQuery resolves (or searches for) an anime by title, optionally
// narrowed by language/dubbed and grouped across sources.
type TitleQuery struct {
	Anime    string
	Language string
	Dubbed   *bool
	Group    bool
}

func (q TitleQuery) SearchParams() (SearchFilter, error) {
	lang := q.Language
	if lang == "" {
		lang = "en"
	}
	dubbed := q.Dubbed != nil && *q.Dubbed
	return SearchFilter{Language: lang, Dubbed: dubbed}, nil
}

// Params is the raw, unvalidated request shape Build tries against
// each constructor, matching the **kwargs request.args.get(...) of
// AnimeQuery._Generic.__init__.
type Params struct {
	UID      string
	Anime    string
	Language string
	Dubbed   string // "" means unset; parsed with FuzzyBool otherwise
	Group    string
}

// FuzzyBool is a permissive string->bool parse for query params:
// empty is false, anything else is judged by a small truthy-word set.
func FuzzyBool(s string) bool {
	if s == "" {
		return false
	}
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1":
		return true
	default:
		return false
	}
}

// Build tries UIDQuery then TitleQuery, matching AnimeQuery.build.
func Build(p Params) (Query, error) {
	if p.UID != "" {
		if u, err := uid.Parse(p.UID); err == nil {
			return UIDQuery{UID: u}, nil
		}
	}

	if p.Anime != "" {
		var dubbed *bool
		if p.Dubbed != "" {
			b := FuzzyBool(p.Dubbed)
			dubbed = &b
		}
		return TitleQuery{
			Anime:    p.Anime,
			Language: p.Language,
			Dubbed:   dubbed,
			Group:    FuzzyBool(p.Group),
		}, nil
	}

	return nil, grerr.New(grerr.InvalidRequest,
		"please specify the anime using either its uid, or a title (anime), language and dubbed value")
}

// Resolved is the polymorphic result of resolving a Query: exactly
// one of Medium or Group is set, and callers treat both uniformly as
// "an anime" through the AnimeView/Resolved.View adapter.
type Resolved struct {
	Medium *media.Medium
	Group  *media.MediumGroup
}

// View adapts a Resolved to the minimal media.AnimeView read surface
// the search pipeline's sort key and HTTP layer need.
func (r Resolved) View() media.AnimeView {
	if r.Medium != nil {
		return mediumView{r.Medium}
	}
	return groupView{r.Group}
}

type mediumView struct{ m *media.Medium }

func (v mediumView) ViewUID() uid.UID       { return v.m.UID }
func (v mediumView) ViewTitle() string      { return v.m.Title }
func (v mediumView) ViewEpisodeCount() *int { return v.m.EpisodeCount }

type groupView struct{ g *media.MediumGroup }

func (v groupView) ViewUID() uid.UID       { return v.g.UID() }
func (v groupView) ViewTitle() string      { return v.g.Title() }
func (v groupView) ViewEpisodeCount() *int { return v.g.EpisodeCount() }

// Layer wires the Query layer to its collaborators: the document
// store, the source extractor registry, the search pipeline, and a
// stream resolver.
type Layer struct {
	Store    store.Store
	Sources  *sources.Registry
	Pipeline *search.Pipeline
	Resolver *resolve.Resolver
}

// New builds a Layer from its collaborators.
func New(st store.Store, reg *sources.Registry, resolver *resolve.Resolver) *Layer {
	return &Layer{Store: st, Sources: reg, Pipeline: search.New(reg, st), Resolver: resolver}
}

// Resolve dispatches q to its lookup, matching AnimeQuery._Generic's
// abstract resolve() implementations.
func (l *Layer) Resolve(ctx context.Context, q Query) (Resolved, error) {
	switch v := q.(type) {
	case UIDQuery:
		return l.resolveUID(ctx, v.UID)
	case TitleQuery:
		return l.resolveTitle(ctx, v)
	default:
		return Resolved{}, grerr.New(grerr.InvalidRequest, "unrecognized query type")
	}
}

// resolveUID resolves a uid: a source-less uid resolves via
// MediumGroup; otherwise a direct Medium lookup falls back to the
// index-scraper's own collection.
func (l *Layer) resolveUID(ctx context.Context, u uid.UID) (Resolved, error) {
	if u.IsGroup() {
		g, err := group.GroupFromUIDStore(ctx, l.Store, u)
		if err != nil {
			return Resolved{}, err
		}
		if g == nil {
			return Resolved{}, grerr.New(grerr.UIDUnknown, "no medium group for "+u.String())
		}
		return Resolved{Group: g}, nil
	}

	doc, err := l.Store.Get(ctx, "media", u.String())
	if err != nil {
		return Resolved{}, err
	}
	if doc == nil {
		doc, err = l.Store.Get(ctx, "index_media", u.String())
		if err != nil {
			return Resolved{}, err
		}
	}
	if doc == nil {
		return Resolved{}, grerr.New(grerr.UIDUnknown, "no medium for "+u.String())
	}

	m, err := group.MediumFromDocument(doc)
	if err != nil {
		return Resolved{}, grerr.Wrap(grerr.UIDUnknown, err, "decoding medium for "+u.String())
	}
	return Resolved{Medium: &m}, nil
}

// resolveTitle delegates to the search pipeline for the actual
// lookup/fan-out and takes the best (first, since results are
// certainty-sorted) hit.
func (l *Layer) resolveTitle(ctx context.Context, q TitleQuery) (Resolved, error) {
	filter, err := q.SearchParams()
	if err != nil {
		return Resolved{}, err
	}

	dubbed := false
	if q.Dubbed != nil {
		dubbed = *q.Dubbed
	}
	opts, err := search.NewOptions(q.Anime, filter.Language, dubbed, 1, q.Group)
	if err != nil {
		return Resolved{}, err
	}

	results, err := l.Pipeline.Search(ctx, opts)
	if err != nil {
		return Resolved{}, err
	}
	if len(results) == 0 {
		return Resolved{}, grerr.New(grerr.AnimeNotFound, "no anime found for "+q.Anime)
	}

	best := results[0].Anime
	if best.ViewUID().IsGroup() {
		if r, err := l.resolveUID(ctx, best.ViewUID()); err == nil {
			return r, nil
		}
	}
	return viewToResolved(best)
}

// viewToResolved rebuilds a Medium or MediumGroup from the fields a
// media.AnimeView exposes, since the pipeline's own view wrappers are
// unexported. A rebuilt group carries only its GroupKey and no
// members, so resolveTitle looks a group uid up in the store first and
// uses this only when that lookup finds nothing.
func viewToResolved(v media.AnimeView) (Resolved, error) {
	u := v.ViewUID()
	if u.IsGroup() {
		g := media.MediumGroup{
			Key: media.GroupKey{MediumType: u.MediumType, MediumID: u.MediumID, Language: u.Language, Dubbed: u.Dubbed},
		}
		return Resolved{Group: &g}, nil
	}
	m := media.Medium{
		UID: u, MediumType: u.MediumType, MediumID: u.MediumID,
		Source: u.Source, Language: u.Language, Dubbed: u.Dubbed,
		Title: v.ViewTitle(), EpisodeCount: v.ViewEpisodeCount(),
	}
	return Resolved{Medium: &m}, nil
}

// Search runs the two-phase search pipeline directly; it does not go
// through uid/title resolution at all, only its own search params.
func (l *Layer) Search(ctx context.Context, opts search.Options) ([]media.SearchResult, error) {
	return l.Pipeline.Search(ctx, opts)
}

// GetEpisode resolves episode index off r: a Medium dispatches
// straight to its source extractor; a Group fans the fetch out across
// every member and merges their raw streams.
func (l *Layer) GetEpisode(ctx context.Context, r Resolved, index int) (media.Episode, error) {
	if r.Medium != nil {
		return sources.GetEpisode(ctx, l.Sources, *r.Medium, index)
	}
	if r.Group == nil {
		return media.Episode{}, grerr.New(grerr.InvalidRequest, "resolved value has neither medium nor group")
	}
	return l.getGroupEpisode(ctx, *r.Group, index)
}

// groupEpisodeParent is the sentinel Episode.Parent for a merged
// group episode: no single Medium owns it, so there is no arena index
// to point at.
const groupEpisodeParent = media.ArenaIndex(-1)

func (l *Layer) getGroupEpisode(ctx context.Context, g media.MediumGroup, index int) (media.Episode, error) {
	if count := g.EpisodeCount(); count == nil || index >= *count {
		return media.Episode{}, grerr.New(grerr.EpisodeNotFound, "episode index out of range for group")
	}

	ctx, cancel := context.WithTimeout(ctx, EpisodeBatchWait)
	defer cancel()

	type result struct {
		ep  media.Episode
		err error
	}
	resultCh := make(chan result, len(g.Members))
	var wg sync.WaitGroup
	for i := range g.Members {
		m := g.Members[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep, err := sources.GetEpisode(ctx, l.Sources, m, index)
			select {
			case resultCh <- result{ep: ep, err: err}:
			case <-ctx.Done():
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var raw []string
	found := false
	for res := range resultCh {
		if res.err != nil {
			continue
		}
		found = true
		raw = append(raw, res.ep.RawStreams...)
	}
	if !found {
		return media.Episode{}, grerr.New(grerr.EpisodeNotFound, "no member source had this episode")
	}
	return media.Episode{Parent: groupEpisodeParent, Index: index, RawStreams: raw}, nil
}

// GetStream resolves the episode at index then dispatches it through
// the stream resolver.
func (l *Layer) GetStream(ctx context.Context, r Resolved, episodeIndex, streamIndex int) (media.Stream, error) {
	ep, err := l.GetEpisode(ctx, r, episodeIndex)
	if err != nil {
		return media.Stream{}, err
	}
	return l.Resolver.Get(ctx, ep, streamIndex)
}

// GetSource returns the raw link at sourceIndex among every resolved
// stream's Links, flattened in extractor order — the 302-redirect
// target of the `/anime/source/{uid}/{episode}` route.
func (l *Layer) GetSource(ctx context.Context, r Resolved, episodeIndex, sourceIndex int) (string, error) {
	ep, err := l.GetEpisode(ctx, r, episodeIndex)
	if err != nil {
		return "", err
	}
	streams := l.Resolver.Streams(ctx, ep)

	var links []string
	for _, s := range streams {
		links = append(links, s.Links...)
	}
	if sourceIndex < 0 || sourceIndex >= len(links) {
		return "", grerr.New(grerr.SourceNotFound, "source index out of range")
	}
	return links[sourceIndex], nil
}
