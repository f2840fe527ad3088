// Package types provides the public, wire-friendly shapes the
// grobber client returns, decoupled from the internal engine's
// richer/lazier internal/media and internal/query structures, the way
// pkg/goanime/types decouples from internal/models.
package types

import (
	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/query"
)

// Anime is the public, resolved representation of a Medium or
// MediumGroup: one anime document.
type Anime struct {
	UID          string
	Title        string
	Language     string
	Dubbed       bool
	EpisodeCount *int
	// SourceCount is 1 for a single-source Medium, >1 for a grouped
	// MediumGroup.
	SourceCount int
}

// FromResolved converts a query.Resolved into its public shape.
func FromResolved(r query.Resolved) Anime {
	view := r.View()
	a := Anime{
		UID:          view.ViewUID().String(),
		Title:        view.ViewTitle(),
		EpisodeCount: view.ViewEpisodeCount(),
		SourceCount:  1,
	}
	if r.Medium != nil {
		a.Language = r.Medium.Language
		a.Dubbed = r.Medium.Dubbed
	} else if r.Group != nil {
		a.Language = r.Group.Key.Language
		a.Dubbed = r.Group.Key.Dubbed
		a.SourceCount = r.Group.SourceCount()
	}
	return a
}

// SearchResult pairs a public Anime with its certainty score: the
// `{anime: {...}, certainty}` search hit shape.
type SearchResult struct {
	Anime     Anime
	Certainty float64
}

// FromSearchResult converts one media.SearchResult.
func FromSearchResult(r media.SearchResult) SearchResult {
	a := Anime{
		UID:          r.Anime.ViewUID().String(),
		Title:        r.Anime.ViewTitle(),
		EpisodeCount: r.Anime.ViewEpisodeCount(),
		SourceCount:  1,
	}
	if sc, ok := r.Anime.(interface{ ViewSourceCount() int }); ok {
		a.SourceCount = sc.ViewSourceCount()
	}
	return SearchResult{Anime: a, Certainty: r.Certainty}
}

// FromSearchResults converts a slice of media.SearchResult.
func FromSearchResults(results []media.SearchResult) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = FromSearchResult(r)
	}
	return out
}

// Episode is the public "one episode document" shape.
type Episode struct {
	Index          int
	RawStreamCount int
}

// FromEpisode converts an internal media.Episode.
func FromEpisode(ep media.Episode) Episode {
	return Episode{Index: ep.Index, RawStreamCount: len(ep.RawStreams)}
}

// Stream is the public "one stream document" shape.
type Stream struct {
	HostURL   string
	Extractor string
	Links     []string
	Poster    string
	External  bool
	Priority  int
}

// FromStream converts an internal media.Stream.
func FromStream(s media.Stream) Stream {
	return Stream{
		HostURL: s.HostURL, Extractor: s.Extractor, Links: s.Links,
		Poster: s.Poster, External: s.External, Priority: s.Priority,
	}
}
