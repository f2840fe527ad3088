package search

import (
	"context"
	"sync"
	"time"

	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/sources"
	"github.com/nyxmedia/grobber/internal/stateful"
	"github.com/nyxmedia/grobber/internal/store"
)

func init() {
	stateful.Describe("Medium", []stateful.Field{
		{
			Name:     "episodeCount",
			Preload:  true,
			Changing: true,
			Encode: func(owner interface{}) (interface{}, bool) {
				m := owner.(*media.Medium)
				if m.EpisodeCount == nil {
					return nil, false
				}
				return *m.EpisodeCount, false
			},
			Decode: func(owner interface{}, value interface{}) error {
				m := owner.(*media.Medium)
				if v, ok := value.(float64); ok {
					n := int(v)
					m.EpisodeCount = &n
				}
				return nil
			},
		},
		{
			Name:    "thumbnail",
			Preload: true,
			Encode: func(owner interface{}) (interface{}, bool) {
				m := owner.(*media.Medium)
				if m.Thumbnail == "" {
					return nil, false
				}
				return m.Thumbnail, false
			},
			Decode: func(owner interface{}, value interface{}) error {
				m := owner.(*media.Medium)
				if v, ok := value.(string); ok {
					m.Thumbnail = v
				}
				return nil
			},
		},
	})
}

// mediumExpiry is the Medium record's Expiring-overlay field TTL: past
// this age, episodeCount is no longer trusted and gets recomputed from
// the owning source rather than served stale.
const mediumExpiry = 30 * time.Minute

// mediumState holds one stateful.Base per resolved uid for the life of
// the process. A Base constructed fresh on every call would never see
// its own age, so MaybeExpire would never fire; keyed, long-lived Bases
// are what make the expiry clock real.
var mediumState sync.Map // uid string -> *stateful.Base

func baseFor(uidStr string) *stateful.Base {
	if v, ok := mediumState.Load(uidStr); ok {
		return v.(*stateful.Base)
	}
	b := stateful.NewBase("Medium", nil, mediumExpiry)
	actual, _ := mediumState.LoadOrStore(uidStr, &b)
	return actual.(*stateful.Base)
}

// preloadResults forces PRELOAD_ATTRS for every returned result before
// the caller serializes a response, and lets stale CHANGING_ATTRS
// (episodeCount, past mediumExpiry) recompute from the result's source
// rather than being served from whatever was cached when it was found.
// Results are preloaded in parallel across the set, and within a Medium
// its declared fields are themselves computed in parallel by
// stateful.PreloadAttrs.
func (p *Pipeline) preloadResults(ctx context.Context, results []media.SearchResult) {
	var wg sync.WaitGroup
	for i := range results {
		mv, ok := results[i].Anime.(mediumView)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, m media.Medium) {
			defer wg.Done()
			p.preloadMedium(ctx, &m)
			results[i].Anime = mediumView{m}
		}(i, mv.m)
	}
	wg.Wait()
}

func (p *Pipeline) preloadMedium(ctx context.Context, m *media.Medium) {
	base := baseFor(m.UID.String())

	base.MaybeExpire(m, func(names []string) {
		for _, name := range names {
			if name == "episodeCount" {
				m.EpisodeCount = nil
			}
		}
	})

	_ = stateful.PreloadAttrs("Medium", stateful.PreloadFieldNames("Medium"), func(fieldName string) error {
		if fieldName != "episodeCount" || m.EpisodeCount != nil {
			return nil
		}
		episodes, err := sources.GetEpisodes(ctx, p.Sources, *m)
		if err != nil {
			// Best-effort: a source outage during preload leaves
			// episodeCount nil rather than failing the whole search.
			return nil
		}
		n := len(episodes)
		m.EpisodeCount = &n
		base.MarkDirty()
		return nil
	})

	if base.Dirty() {
		m.Updated = time.Now()
		p.Sources.MarkDirty(*m)
		if p.Store != nil {
			_ = p.Store.Upsert(ctx, "media", mediumDocument(*m))
		}
		base.ClearDirty()
	}
}

// mediumDocument is the inverse of mediumFromDocument, used to flush a
// Medium whose preloaded fields changed back to the store.
func mediumDocument(m media.Medium) store.Document {
	doc := store.Document{
		"uid":        m.UID.String(),
		"mediumType": string(m.MediumType),
		"mediumId":   m.MediumID,
		"source":     m.Source,
		"language":   m.Language,
		"dubbed":     m.Dubbed,
		"title":      m.Title,
		"href":       m.Href,
		"thumbnail":  m.Thumbnail,
		"updated":    m.Updated.Unix(),
	}
	if m.EpisodeCount != nil {
		doc["episodeCount"] = *m.EpisodeCount
	}
	return doc
}
