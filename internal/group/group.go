// Package group implements the cross-source clustering engine: decide
// whether two sourced Media describe the same title, then cluster a
// set of candidates into the connected components sharing that
// relation.
package group

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/uid"
)

// Cluster is a growable, in-progress group of Media sharing a
// GroupKey, built incrementally by Engine.Add.
type Cluster struct {
	mu      sync.Mutex
	key     media.GroupKey
	members []media.Medium
}

// wouldAccept implements could_contain: equal (language, isDub,
// mediumId), plus an episode-count tolerance band of ±2 around the
// existing min/max (min-2 <= n <= max+2) — and, per DESIGN.md's Open
// Question decision, a single existing member is treated as "accept
// if within ±2" of that one count.
func (c *Cluster) wouldAccept(m media.Medium) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.GroupKey() != c.key {
		return false
	}
	if m.EpisodeCount == nil {
		return true
	}

	var counts []int
	for _, existing := range c.members {
		if existing.EpisodeCount != nil {
			counts = append(counts, *existing.EpisodeCount)
		}
	}
	if len(counts) == 0 {
		return true
	}

	min, max := counts[0], counts[0]
	for _, c := range counts[1:] {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	if len(counts) == 1 {
		return *m.EpisodeCount >= min-2 && *m.EpisodeCount <= max+2
	}

	return *m.EpisodeCount >= min-2 && *m.EpisodeCount <= max+2
}

func (c *Cluster) add(m media.Medium) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = append(c.members, m)
}

// ToGroup snapshots the cluster into an immutable media.MediumGroup.
func (c *Cluster) ToGroup() media.MediumGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := make([]media.Medium, len(c.members))
	copy(members, c.members)
	return media.MediumGroup{Key: c.key, Members: members}
}

// Engine clusters a stream of Media into Clusters.
type Engine struct {
	mu       sync.Mutex
	clusters []*Cluster
}

// NewEngine builds an empty clustering Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Add places m into every matching cluster (uniqueGroups=false) or
// only the first (uniqueGroups=true), creating a new cluster if none
// match — matching group_animes' group_worker loop.
func (e *Engine) Add(m media.Medium, uniqueGroups bool) {
	e.mu.Lock()
	clusters := append([]*Cluster(nil), e.clusters...)
	e.mu.Unlock()

	placed := false
	for _, c := range clusters {
		if c.wouldAccept(m) {
			c.add(m)
			placed = true
			if uniqueGroups {
				break
			}
		}
	}
	if !placed {
		c := &Cluster{key: m.GroupKey(), members: []media.Medium{m}}
		e.mu.Lock()
		e.clusters = append(e.clusters, c)
		e.mu.Unlock()
	}
}

// Clusters returns a snapshot of every cluster built so far.
func (e *Engine) Clusters() []*Cluster {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Cluster, len(e.clusters))
	copy(out, e.clusters)
	return out
}

// GroupAnimes clusters every Medium from the media channel, draining
// it to completion, matching group_animes' preload_worker+group_worker
// pair (preloading is the caller's responsibility before the Medium is
// sent, since Go has no implicit async property access to preload).
func GroupAnimes(ctx context.Context, media <-chan mediaItem, uniqueGroups bool) ([]*Cluster, error) {
	engine := NewEngine()
	for {
		select {
		case item, ok := <-media:
			if !ok {
				return engine.Clusters(), nil
			}
			if item.err != nil {
				continue
			}
			engine.Add(item.medium, uniqueGroups)
		case <-ctx.Done():
			return engine.Clusters(), ctx.Err()
		}
	}
}

type mediaItem struct {
	medium media.Medium
	err    error
}

// GroupMedia clusters an in-memory slice of Media, a convenience
// wrapper over GroupAnimes for callers (internal/search) that already
// hold every candidate rather than streaming them from a channel.
func GroupMedia(ctx context.Context, members []media.Medium, uniqueGroups bool) ([]*Cluster, error) {
	ch := make(chan mediaItem, len(members))
	for _, m := range members {
		ch <- mediaItem{medium: m}
	}
	close(ch)
	return GroupAnimes(ctx, ch, uniqueGroups)
}

// MediumFromDocument exports mediumFromDocument for sibling packages
// (internal/search) that hydrate Media out of raw store.Documents.
func MediumFromDocument(d store.Document) (media.Medium, error) {
	return mediumFromDocument(d)
}

// GroupFromUIDStore resolves the group named by groupUID (source must
// be empty) by finding every Medium in the store's "media" collection
// matching its GroupKey. If none match, the index scraper's
// "index_media" rows with that GroupKey are used instead. Returns nil,
// nil when neither collection holds a match.
func GroupFromUIDStore(ctx context.Context, st store.Store, u uid.UID) (*media.MediumGroup, error) {
	if !u.IsGroup() {
		return nil, grerr.New(grerr.InvalidRequest, "GroupFromUIDStore requires a source-less (group) uid")
	}
	filter := store.Filter{
		"mediumType": string(u.MediumType),
		"mediumId":   u.MediumID,
		"language":   u.Language,
		"dubbed":     u.Dubbed,
	}
	docs, err := st.Find(ctx, "media", filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		docs, err = st.Find(ctx, "index_media", filter)
		if err != nil {
			return nil, err
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}

	engine := NewEngine()
	for _, d := range docs {
		m, err := mediumFromDocument(d)
		if err != nil {
			continue
		}
		engine.Add(m, false)
	}

	clusters := engine.Clusters()
	if len(clusters) == 0 {
		return nil, nil
	}
	// Tie-break: prefer the cluster with the most members.
	sort.Slice(clusters, func(i, j int) bool {
		return len(clusters[i].members) > len(clusters[j].members)
	})
	g := clusters[0].ToGroup()
	return &g, nil
}

func mediumFromDocument(d store.Document) (media.Medium, error) {
	get := func(k string) string { s, _ := d[k].(string); return s }
	var epCount *int
	if v, ok := d["episodeCount"].(float64); ok {
		n := int(v)
		epCount = &n
	}
	u, err := uid.Parse(get("uid"))
	if err != nil {
		return media.Medium{}, err
	}
	var updated time.Time
	if v, ok := d["updated"].(float64); ok && v > 0 {
		updated = time.Unix(int64(v), 0)
	}
	return media.Medium{
		UID:          u,
		MediumType:   uid.MediumType(get("mediumType")),
		MediumID:     get("mediumId"),
		Source:       get("source"),
		Language:     get("language"),
		Dubbed:       d["dubbed"] == true,
		Title:        get("title"),
		Href:         get("href"),
		Thumbnail:    get("thumbnail"),
		EpisodeCount: epCount,
		Updated:      updated,
	}, nil
}
