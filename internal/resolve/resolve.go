// Package resolve implements the stream resolution state machine:
// group candidate streams by priority, race within a group, and fall
// through to the next group only if no winner.
//
// Uses a goroutine-per-candidate + result channel + context
// cancellation fan-out, generalized from "race every scraper" to
// "race within one priority group, then step to the next".
package resolve

import (
	"context"
	"sort"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
)

// Resolver dispatches raw stream URLs through the stream extractor
// registry and resolves the winning stream.
type Resolver struct {
	registry Registry
}

// Registry is the subset of internal/streams' registry this package
// needs. Resolve claims a host URL to its owning extractor without
// running it, so streams can be grouped by priority before any
// network call is made; Dispatch claims and extracts in one step.
type Registry interface {
	Resolve(hostURL string) (media.StreamExtractor, bool)
	Dispatch(ctx context.Context, hostURL string) (media.Stream, error)
}

// New builds a Resolver against a stream extractor registry.
func New(registry Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Streams dispatches every raw stream URL of ep through the registry,
// in order, discarding any whose extractor fails to claim or extract
// it: the first extractor whose CanHandle returns true owns the
// extraction, and a raw URL no extractor wants is simply dropped. Used
// by Poster and Get, which both need every stream's extracted data
// regardless of priority.
func (r *Resolver) Streams(ctx context.Context, ep media.Episode) []media.Stream {
	streams := make([]media.Stream, 0, len(ep.RawStreams))
	for _, raw := range ep.RawStreams {
		s, err := r.registry.Dispatch(ctx, raw)
		if err != nil {
			continue
		}
		streams = append(streams, s)
	}
	return streams
}

// candidate pairs a raw stream URL with the extractor that claims it,
// before extraction has run.
type candidate struct {
	raw       string
	extractor media.StreamExtractor
}

// Resolve groups raw stream URLs by their claiming extractor's
// priority, highest first, and races extraction only within one group
// at a time: a lower-priority group is never dispatched, let alone
// extracted or HEAD-probed, unless every candidate in every
// higher-priority group has already lost the race.
func (r *Resolver) Resolve(ctx context.Context, ep media.Episode) (*media.Stream, error) {
	if len(ep.RawStreams) == 0 {
		return nil, grerr.New(grerr.StreamNotFound, "episode has no raw streams")
	}

	groups := r.groupByPriorityDesc(ep.RawStreams)
	if len(groups) == 0 {
		return nil, grerr.New(grerr.StreamNotFound, "episode has no raw streams")
	}

	for _, group := range groups {
		if winner := raceGroup(ctx, group); winner != nil {
			return winner, nil
		}
	}
	return nil, nil
}

// groupByPriorityDesc resolves each raw URL to its claiming extractor
// (no extraction yet) and buckets the resulting candidates by
// Priority, highest first. URLs no extractor claims are dropped.
func (r *Resolver) groupByPriorityDesc(rawStreams []string) [][]candidate {
	byPriority := map[int][]candidate{}
	for _, raw := range rawStreams {
		extractor, ok := r.registry.Resolve(raw)
		if !ok {
			continue
		}
		p := extractor.Priority()
		byPriority[p] = append(byPriority[p], candidate{raw: raw, extractor: extractor})
	}
	priorities := make([]int, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(priorities)))

	groups := make([][]candidate, len(priorities))
	for i, p := range priorities {
		groups[i] = byPriority[p]
	}
	return groups
}

// raceGroup extracts and races WorkingExternalSelf across one
// priority group: the first truthy result wins, and the context the
// remaining candidates' Extract calls run under is cancelled as soon
// as raceGroup returns.
func raceGroup(ctx context.Context, group []candidate) *media.Stream {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	resultCh := make(chan *media.Stream, len(group))
	for i := range group {
		c := group[i]
		go func() {
			s, err := c.extractor.Extract(ctx, c.raw)
			if err != nil {
				select {
				case resultCh <- nil:
				case <-ctx.Done():
				}
				return
			}
			select {
			case resultCh <- s.WorkingExternalSelf():
			case <-ctx.Done():
			}
		}()
	}

	received := 0
	for received < len(group) {
		select {
		case res := <-resultCh:
			received++
			if res != nil {
				return res
			}
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// Poster races Poster across every stream of ep; the first non-empty
// result wins.
func (r *Resolver) Poster(ctx context.Context, ep media.Episode) string {
	streams := r.Streams(ctx, ep)
	resultCh := make(chan string, len(streams))
	for i := range streams {
		s := streams[i]
		go func() {
			select {
			case resultCh <- s.Poster:
			case <-ctx.Done():
			}
		}()
	}
	for range streams {
		select {
		case p := <-resultCh:
			if p != "" {
				return p
			}
		case <-ctx.Done():
			return ""
		}
	}
	return ""
}

// Get returns the Nth stream by extractor order.
func (r *Resolver) Get(ctx context.Context, ep media.Episode, index int) (media.Stream, error) {
	streams := r.Streams(ctx, ep)
	if index < 0 || index >= len(streams) {
		return media.Stream{}, grerr.New(grerr.StreamNotFound, "stream index out of range")
	}
	return streams[index], nil
}
