package stateful_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/grequest"
	"github.com/nyxmedia/grobber/internal/stateful"
)

type fakeEpisode struct {
	stateful.Base
	title  string
	Poster string
}

func init() {
	stateful.Describe("fakeEpisode", []stateful.Field{
		{
			Name:    "title",
			Preload: true,
			Encode: func(owner interface{}) (interface{}, bool) {
				return owner.(*fakeEpisode).title, false
			},
			Decode: func(owner interface{}, value interface{}) error {
				owner.(*fakeEpisode).title = value.(string)
				return nil
			},
		},
		{
			Name:     "poster",
			Changing: true,
			Encode: func(owner interface{}) (interface{}, bool) {
				return owner.(*fakeEpisode).Poster, false
			},
			Decode: func(owner interface{}, value interface{}) error {
				owner.(*fakeEpisode).Poster = value.(string)
				return nil
			},
		},
	})
}

func TestDescribePanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() {
		stateful.Describe("fakeEpisode", nil)
	})
}

func TestStateEncodesDeclaredFields(t *testing.T) {
	req := grequest.New(nil, "https://example.com/ep/1", nil, nil, 0)
	ep := &fakeEpisode{title: "Episode 1", Poster: "poster.jpg"}

	data, err := stateful.State(ep, req, "fakeEpisode")
	require.NoError(t, err)
	assert.Equal(t, "Episode 1", data["title"])
	assert.Equal(t, "poster.jpg", data["poster"])
	assert.Contains(t, data, "req")
}

func TestFromDocumentRehydratesFields(t *testing.T) {
	ep := &fakeEpisode{}
	err := stateful.FromDocument(ep, "fakeEpisode", map[string]interface{}{
		"title":  "Episode 2",
		"poster": "p2.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "Episode 2", ep.title)
	assert.Equal(t, "p2.jpg", ep.Poster)
}

func TestPreloadFieldNames(t *testing.T) {
	assert.Equal(t, []string{"title"}, stateful.PreloadFieldNames("fakeEpisode"))
}

func TestPreloadAttrsRunsEveryField(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	err := stateful.PreloadAttrs("fakeEpisode", nil, func(name string) error {
		mu.Lock()
		seen = append(seen, name)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"title", "poster"}, seen)
}

func TestMaybeExpireInvalidatesChangingAttrsAfterWindow(t *testing.T) {
	base := stateful.NewBase("fakeEpisode", nil, time.Millisecond)
	time.Sleep(2 * time.Millisecond)

	var invalidated []string
	base.MaybeExpire(nil, func(names []string) { invalidated = names })
	assert.Equal(t, []string{"poster"}, invalidated)
}

func TestMaybeExpireNoopWhenDisabled(t *testing.T) {
	base := stateful.NewBase("fakeEpisode", nil, 0)
	called := false
	base.MaybeExpire(nil, func([]string) { called = true })
	assert.False(t, called)
}

func TestDirtyTracking(t *testing.T) {
	base := stateful.NewBase("fakeEpisode", nil, 0)
	assert.False(t, base.Dirty())
	base.MarkDirty()
	assert.True(t, base.Dirty())
	base.ClearDirty()
	assert.False(t, base.Dirty())
}
