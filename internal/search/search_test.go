package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/sources"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/uid"
)

type fakeExtractor struct {
	id    string
	hits  []media.SearchHit
	delay time.Duration
}

func (f *fakeExtractor) ID() string { return f.id }

func (f *fakeExtractor) Search(ctx context.Context, query, language string, dubbed bool) (<-chan media.SearchHit, error) {
	out := make(chan media.SearchHit)
	go func() {
		defer close(out)
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return
			}
		}
		for _, h := range f.hits {
			select {
			case out <- h:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeExtractor) GetEpisodes(ctx context.Context, m media.Medium) (map[int]media.Episode, error) {
	return nil, nil
}

func (f *fakeExtractor) GetEpisode(ctx context.Context, m media.Medium, index int) (media.Episode, error) {
	return media.Episode{}, nil
}

func mediumFor(t *testing.T, title, source string) media.Medium {
	t.Helper()
	mid := uid.Normalize(title)
	u := uid.Create(uid.Anime, mid, source, "en", false)
	return media.Medium{UID: u, MediumType: uid.Anime, MediumID: mid, Source: source, Language: "en", Title: title}
}

func TestSearchNewOptionsRejectsOutOfRange(t *testing.T) {
	_, err := NewOptions("naruto", "en", false, 21, false)
	assert.Error(t, err)
}

func TestSearchNewOptionsRejectsEmptyQuery(t *testing.T) {
	_, err := NewOptions("", "en", false, 1, false)
	assert.Error(t, err)
}

func TestPipelineSearchLiveFanOutDedup(t *testing.T) {
	BatchWindow = 50 * time.Millisecond
	defer func() { BatchWindow = 5 * time.Second }()

	m1 := mediumFor(t, "Naruto", "src-a")
	m2 := mediumFor(t, "Naruto", "src-b")

	reg := sources.NewRegistry()
	reg.Register(&fakeExtractor{id: "src-a", hits: []media.SearchHit{{Medium: m1, Certainty: 0.9}}})
	reg.Register(&fakeExtractor{id: "src-b", hits: []media.SearchHit{{Medium: m2, Certainty: 0.8}}})

	p := New(reg, nil)
	opts, err := NewOptions("naruto", "en", false, 3, false)
	require.NoError(t, err)

	results, err := p.Search(context.Background(), opts)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestPipelineSearchDatabaseHitSetShortCircuits(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()
	m := mediumFor(t, "Bleach", "src-a")
	doc := store.Document{
		"uid":        m.UID.String(),
		"mediumType": string(m.MediumType),
		"mediumId":   m.MediumID,
		"source":     m.Source,
		"language":   m.Language,
		"dubbed":     m.Dubbed,
		"title":      "Bleach",
	}
	require.NoError(t, mem.Upsert(ctx, "media", doc))

	reg := sources.NewRegistry()
	p := New(reg, mem)
	opts, err := NewOptions("Bleach", "en", false, 1, false)
	require.NoError(t, err)

	results, err := p.Search(ctx, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Certainty)
}

func TestConsiderResults(t *testing.T) {
	assert.Equal(t, 5, considerResults(1, 10))
	assert.Equal(t, 7, considerResults(7, 2))
}
