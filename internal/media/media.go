// Package media holds the data model: Medium, MediumGroup, Episode,
// Stream, and the capability interfaces (Anime/SourceExtractor/
// StreamExtractor) the rest of the engine dispatches against.
//
// Episodes hold an integer index into an arena of Media
// rather than a pointer back-reference, so ownership stays acyclic
// even though the relationships themselves are cyclic.
package media

import (
	"context"
	"time"

	"github.com/nyxmedia/grobber/internal/uid"
)

// MediumType mirrors uid.MediumType for readability at call sites
// that only deal with media, not raw UIDs.
type MediumType = uid.MediumType

// Medium is the canonical record of a title at one source.
type Medium struct {
	UID        uid.UID
	MediumType MediumType
	MediumID   string
	Source     string
	Language   string
	Dubbed     bool

	Title     string
	Aliases   []string
	Href      string
	Thumbnail string
	// EpisodeCount is a pointer so "unknown" (nil) is distinguishable
	// from "zero episodes known so far".
	EpisodeCount *int
	Updated      time.Time
}

// GroupKey returns the (mediumType, mediumId, language, dubbed) tuple
// every MediumGroup member must share.
func (m Medium) GroupKey() GroupKey {
	return GroupKey{MediumType: m.MediumType, MediumID: m.MediumID, Language: m.Language, Dubbed: m.Dubbed}
}

// GroupKey is the shared-identity tuple of a MediumGroup.
type GroupKey struct {
	MediumType MediumType
	MediumID   string
	Language   string
	Dubbed     bool
}

// MediumGroup is an in-memory, transient aggregation over Media
// sharing a GroupKey. It is rebuilt on demand, never persisted
// directly.
type MediumGroup struct {
	Key     GroupKey
	Members []Medium
}

// UID returns the group-form UID (no source segment).
func (g MediumGroup) UID() uid.UID {
	return uid.Create(g.Key.MediumType, g.Key.MediumID, "", g.Key.Language, g.Key.Dubbed)
}

// Title returns the first member's title — member titles for a
// correctly-clustered group are expected to agree closely enough that
// any one is representative; callers that need the "best" title use
// the grouping engine's certainty score instead.
func (g MediumGroup) Title() string {
	if len(g.Members) == 0 {
		return ""
	}
	return g.Members[0].Title
}

// Aliases returns the union of every member's aliases plus their
// titles.
func (g MediumGroup) Aliases() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, m := range g.Members {
		add(m.Title)
		for _, a := range m.Aliases {
			add(a)
		}
	}
	return out
}

// Thumbnail returns the first non-empty member thumbnail.
func (g MediumGroup) Thumbnail() string {
	for _, m := range g.Members {
		if m.Thumbnail != "" {
			return m.Thumbnail
		}
	}
	return ""
}

// EpisodeCount returns max(nonnull episodeCounts), or nil if no member
// reports one.
func (g MediumGroup) EpisodeCount() *int {
	var max *int
	for _, m := range g.Members {
		if m.EpisodeCount == nil {
			continue
		}
		if max == nil || *m.EpisodeCount > *max {
			v := *m.EpisodeCount
			max = &v
		}
	}
	return max
}

// SourceCount returns the number of distinct sources backing this
// group, used by the search pipeline's sort key.
func (g MediumGroup) SourceCount() int {
	seen := map[string]struct{}{}
	for _, m := range g.Members {
		seen[m.Source] = struct{}{}
	}
	return len(seen)
}

// ArenaIndex identifies one Medium within a MediaArena without
// pointer back-references.
type ArenaIndex int

// MediaArena owns a growable slice of Media; Episodes reference their
// parent by ArenaIndex.
type MediaArena struct {
	media []Medium
}

// Add appends m to the arena and returns its index.
func (a *MediaArena) Add(m Medium) ArenaIndex {
	a.media = append(a.media, m)
	return ArenaIndex(len(a.media) - 1)
}

// Get returns the Medium at idx.
func (a *MediaArena) Get(idx ArenaIndex) Medium {
	return a.media[idx]
}

// Episode is bound to one Medium by arena index.
type Episode struct {
	Parent     ArenaIndex
	Index      int
	RawStreams []string
}

// Stream is bound to a host URL; typed by which host-extractor owns
// it.
type Stream struct {
	HostURL  string
	Extractor string
	Links    []string
	Poster   string
	External bool
	Priority int
}

// Working reports whether this stream has at least one verified link.
func (s Stream) Working() bool { return len(s.Links) > 0 }

// WorkingExternalSelf returns a pointer to s iff External && Working
// (the strict-external predicate decided in DESIGN.md).
func (s *Stream) WorkingExternalSelf() *Stream {
	if s.External && s.Working() {
		return s
	}
	return nil
}

// SearchResult pairs an Anime-shaped value (Medium or MediumGroup,
// represented generically via AnimeView) with a certainty score.
type SearchResult struct {
	Anime     AnimeView
	Certainty float64
}

// AnimeView is the minimal read surface the search/query layers need,
// satisfied by both Medium and MediumGroup through adapter types in
// internal/query.
type AnimeView interface {
	ViewUID() uid.UID
	ViewTitle() string
	ViewEpisodeCount() *int
}

// SourceExtractor is the capability interface every search/episode
// source implements. Registration happens once at process start via
// internal/sources.
type SourceExtractor interface {
	ID() string
	Search(ctx context.Context, query, language string, dubbed bool) (<-chan SearchHit, error)
	GetEpisodes(ctx context.Context, m Medium) (map[int]Episode, error)
	GetEpisode(ctx context.Context, m Medium, index int) (Episode, error)
}

// SearchHit is one element of a source's streamed search results.
type SearchHit struct {
	Medium    Medium
	Certainty float64
}

// StreamExtractor is the capability interface every host-specific
// stream extractor implements. Registration happens once at process
// start via internal/streams.
type StreamExtractor interface {
	ID() string
	Priority() int
	CanHandle(hostURL string) bool
	Extract(ctx context.Context, hostURL string) (Stream, error)
}
