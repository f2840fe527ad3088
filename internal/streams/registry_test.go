package streams_test

import (
	"context"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/streams"
)

type stubExtractor struct {
	id    string
	links []string
}

func (s stubExtractor) ID() string               { return s.id }
func (s stubExtractor) Priority() int             { return 0 }
func (s stubExtractor) CanHandle(string) bool     { return true }
func (s stubExtractor) Extract(context.Context, string) (media.Stream, error) {
	return media.Stream{Extractor: s.id, Links: s.links, External: true}, nil
}

func TestDispatchPicksHighestPriorityMatch(t *testing.T) {
	r := streams.NewRegistry(log.Default())
	r.Register(1, func(string) bool { return true }, func(*log.Logger) media.StreamExtractor {
		return stubExtractor{id: "low"}
	})
	r.Register(10, func(url string) bool { return url == "http://host/a" }, func(*log.Logger) media.StreamExtractor {
		return stubExtractor{id: "high", links: []string{"http://host/a"}}
	})
	r.Freeze()

	s, err := r.Dispatch(context.Background(), "http://host/a")
	require.NoError(t, err)
	assert.Equal(t, "high", s.Extractor)
}

func TestDispatchNoMatchIsExtractError(t *testing.T) {
	r := streams.NewRegistry(log.Default())
	r.Register(1, func(string) bool { return false }, nil)
	r.Freeze()

	_, err := r.Dispatch(context.Background(), "http://host/unknown")
	assert.True(t, grerr.Is(err, grerr.ExtractError))
}

func TestResolveClaimsWithoutExtracting(t *testing.T) {
	extracted := false
	r := streams.NewRegistry(log.Default())
	r.Register(10, func(url string) bool { return url == "http://host/a" }, func(*log.Logger) media.StreamExtractor {
		return stubExtractorFunc{id: "high", extract: func() { extracted = true }}
	})
	r.Freeze()

	extractor, ok := r.Resolve("http://host/a")
	require.True(t, ok)
	assert.Equal(t, 10, extractor.Priority())
	assert.False(t, extracted, "Resolve must not invoke Extract")

	_, ok = r.Resolve("http://host/unknown")
	assert.False(t, ok)
}

type stubExtractorFunc struct {
	id      string
	extract func()
}

func (s stubExtractorFunc) ID() string           { return s.id }
func (s stubExtractorFunc) Priority() int        { return 10 }
func (s stubExtractorFunc) CanHandle(string) bool { return true }
func (s stubExtractorFunc) Extract(context.Context, string) (media.Stream, error) {
	s.extract()
	return media.Stream{Extractor: s.id}, nil
}

func TestRegisterAfterFreezePanics(t *testing.T) {
	r := streams.NewRegistry(log.Default())
	r.Freeze()
	assert.Panics(t, func() {
		r.Register(1, func(string) bool { return true }, nil)
	})
}
