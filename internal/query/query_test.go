package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/resolve"
	"github.com/nyxmedia/grobber/internal/sources"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/uid"
)

type stubExtractor struct {
	id       string
	episodes map[int]media.Episode
}

func (s *stubExtractor) ID() string { return s.id }

func (s *stubExtractor) Search(ctx context.Context, query, language string, dubbed bool) (<-chan media.SearchHit, error) {
	out := make(chan media.SearchHit)
	close(out)
	return out, nil
}

func (s *stubExtractor) GetEpisodes(ctx context.Context, m media.Medium) (map[int]media.Episode, error) {
	return s.episodes, nil
}

func (s *stubExtractor) GetEpisode(ctx context.Context, m media.Medium, index int) (media.Episode, error) {
	ep, ok := s.episodes[index]
	if !ok {
		return media.Episode{}, errEpisodeMissing{}
	}
	return ep, nil
}

type errEpisodeMissing struct{}

func (errEpisodeMissing) Error() string { return "episode not found" }

type stubStreamRegistry struct{}

func (stubStreamRegistry) Dispatch(ctx context.Context, hostURL string) (media.Stream, error) {
	return media.Stream{HostURL: hostURL, External: true, Links: []string{hostURL}}, nil
}

func (stubStreamRegistry) Resolve(string) (media.StreamExtractor, bool) { return nil, false }

func mediumFor(title, source string, epCount *int) media.Medium {
	mid := uid.Normalize(title)
	u := uid.Create(uid.Anime, mid, source, "en", false)
	return media.Medium{
		UID: u, MediumType: uid.Anime, MediumID: mid, Source: source,
		Language: "en", Title: title, EpisodeCount: epCount,
	}
}

func docFor(m media.Medium) store.Document {
	doc := store.Document{
		"uid":        m.UID.String(),
		"mediumType": string(m.MediumType),
		"mediumId":   m.MediumID,
		"source":     m.Source,
		"language":   m.Language,
		"dubbed":     m.Dubbed,
		"title":      m.Title,
	}
	if m.EpisodeCount != nil {
		doc["episodeCount"] = float64(*m.EpisodeCount)
	}
	return doc
}

func TestBuildPrefersUIDOverTitle(t *testing.T) {
	q, err := Build(Params{UID: "a-naruto-src-en", Anime: "ignored"})
	require.NoError(t, err)
	uq, ok := q.(UIDQuery)
	require.True(t, ok)
	assert.Equal(t, "src", uq.UID.Source)
}

func TestBuildFallsBackToTitle(t *testing.T) {
	q, err := Build(Params{Anime: "Naruto", Language: "en", Dubbed: "yes", Group: "true"})
	require.NoError(t, err)
	tq, ok := q.(TitleQuery)
	require.True(t, ok)
	require.NotNil(t, tq.Dubbed)
	assert.True(t, *tq.Dubbed)
	assert.True(t, tq.Group)
}

func TestBuildRejectsEmptyParams(t *testing.T) {
	_, err := Build(Params{})
	assert.Error(t, err)
}

func TestUIDQuerySearchParamsRejected(t *testing.T) {
	_, err := UIDQuery{}.SearchParams()
	assert.Error(t, err)
}

func TestTitleQuerySearchParamsDefaultsLanguage(t *testing.T) {
	filter, err := TitleQuery{Anime: "Naruto"}.SearchParams()
	require.NoError(t, err)
	assert.Equal(t, "en", filter.Language)
	assert.False(t, filter.Dubbed)
}

func TestFuzzyBool(t *testing.T) {
	assert.True(t, FuzzyBool("true"))
	assert.True(t, FuzzyBool("Y"))
	assert.False(t, FuzzyBool(""))
	assert.False(t, FuzzyBool("nope"))
}

func TestResolveUIDMediumDirect(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()
	m := mediumFor("Naruto", "stub", nil)
	require.NoError(t, mem.Upsert(ctx, "media", docFor(m)))

	layer := New(mem, sources.NewRegistry(), resolve.New(stubStreamRegistry{}))
	resolved, err := layer.Resolve(ctx, UIDQuery{UID: m.UID})
	require.NoError(t, err)
	require.NotNil(t, resolved.Medium)
	assert.Equal(t, "Naruto", resolved.Medium.Title)
}

func TestResolveUIDFallsBackToIndexMedia(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()
	m := mediumFor("Bleach", "stub", nil)
	require.NoError(t, mem.Upsert(ctx, "index_media", docFor(m)))

	layer := New(mem, sources.NewRegistry(), resolve.New(stubStreamRegistry{}))
	resolved, err := layer.Resolve(ctx, UIDQuery{UID: m.UID})
	require.NoError(t, err)
	require.NotNil(t, resolved.Medium)
	assert.Equal(t, "Bleach", resolved.Medium.Title)
}

func TestResolveUIDUnknown(t *testing.T) {
	mem := store.NewMemoryStore()
	layer := New(mem, sources.NewRegistry(), resolve.New(stubStreamRegistry{}))
	u := uid.Create(uid.Anime, "missing", "stub", "en", false)
	_, err := layer.Resolve(context.Background(), UIDQuery{UID: u})
	assert.Error(t, err)
}

func TestResolveUIDGroup(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()
	ep := 12
	m1 := mediumFor("Naruto", "src-a", &ep)
	m2 := mediumFor("Naruto", "src-b", &ep)
	require.NoError(t, mem.Upsert(ctx, "media", docFor(m1)))
	require.NoError(t, mem.Upsert(ctx, "media", docFor(m2)))

	layer := New(mem, sources.NewRegistry(), resolve.New(stubStreamRegistry{}))
	groupUID := uid.Create(uid.Anime, m1.MediumID, "", "en", false)
	resolved, err := layer.Resolve(ctx, UIDQuery{UID: groupUID})
	require.NoError(t, err)
	require.NotNil(t, resolved.Group)
	assert.Len(t, resolved.Group.Members, 2)
}

func TestGetEpisodeFromMedium(t *testing.T) {
	reg := sources.NewRegistry()
	reg.Register(&stubExtractor{id: "stub", episodes: map[int]media.Episode{0: {Index: 0, RawStreams: []string{"http://host/a"}}}})

	layer := New(store.NewMemoryStore(), reg, resolve.New(stubStreamRegistry{}))
	m := mediumFor("Naruto", "stub", nil)
	ep, err := layer.GetEpisode(context.Background(), Resolved{Medium: &m}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://host/a"}, ep.RawStreams)
}

func TestGetEpisodeFromGroupMergesRawStreams(t *testing.T) {
	regA := sources.NewRegistry()
	regA.Register(&stubExtractor{id: "src-a", episodes: map[int]media.Episode{0: {Index: 0, RawStreams: []string{"http://a/1"}}}})
	regA.Register(&stubExtractor{id: "src-b", episodes: map[int]media.Episode{0: {Index: 0, RawStreams: []string{"http://b/1"}}}})

	EpisodeBatchWait = 50 * time.Millisecond
	defer func() { EpisodeBatchWait = 15 * time.Second }()

	layer := New(store.NewMemoryStore(), regA, resolve.New(stubStreamRegistry{}))

	epCount := 5
	ma := mediumFor("Naruto", "src-a", &epCount)
	mb := mediumFor("Naruto", "src-b", &epCount)
	g := media.MediumGroup{Key: ma.GroupKey(), Members: []media.Medium{ma, mb}}

	ep, err := layer.GetEpisode(context.Background(), Resolved{Group: &g}, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"http://a/1", "http://b/1"}, ep.RawStreams)
}

func TestGetEpisodeFromGroupOutOfRange(t *testing.T) {
	layer := New(store.NewMemoryStore(), sources.NewRegistry(), resolve.New(stubStreamRegistry{}))
	epCount := 2
	ma := mediumFor("Naruto", "src-a", &epCount)
	g := media.MediumGroup{Key: ma.GroupKey(), Members: []media.Medium{ma}}

	_, err := layer.GetEpisode(context.Background(), Resolved{Group: &g}, 10)
	assert.Error(t, err)
}

func TestGetStreamDispatchesThroughResolver(t *testing.T) {
	reg := sources.NewRegistry()
	reg.Register(&stubExtractor{id: "stub", episodes: map[int]media.Episode{0: {Index: 0, RawStreams: []string{"http://host/a"}}}})

	layer := New(store.NewMemoryStore(), reg, resolve.New(stubStreamRegistry{}))
	m := mediumFor("Naruto", "stub", nil)
	stream, err := layer.GetStream(context.Background(), Resolved{Medium: &m}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://host/a", stream.HostURL)
}

func TestGetSourceReturnsLink(t *testing.T) {
	reg := sources.NewRegistry()
	reg.Register(&stubExtractor{id: "stub", episodes: map[int]media.Episode{0: {Index: 0, RawStreams: []string{"http://host/a"}}}})

	layer := New(store.NewMemoryStore(), reg, resolve.New(stubStreamRegistry{}))
	m := mediumFor("Naruto", "stub", nil)
	source, err := layer.GetSource(context.Background(), Resolved{Medium: &m}, 0, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, source)
}
