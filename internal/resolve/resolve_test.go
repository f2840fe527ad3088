package resolve_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/resolve"
)

// stubExtractor is a media.StreamExtractor stand-in whose Extract
// result and call count are controlled by the test.
type stubExtractor struct {
	priority int
	stream   media.Stream
	err      error
	calls    *atomic.Int32
}

func (e stubExtractor) ID() string            { return "stub" }
func (e stubExtractor) Priority() int         { return e.priority }
func (e stubExtractor) CanHandle(string) bool { return true }
func (e stubExtractor) Extract(_ context.Context, _ string) (media.Stream, error) {
	if e.calls != nil {
		e.calls.Add(1)
	}
	return e.stream, e.err
}

type stubEntry struct {
	stream media.Stream
	calls  *atomic.Int32
}

type stubRegistry struct {
	byURL map[string]stubEntry
}

func newStubRegistry(streams map[string]media.Stream) stubRegistry {
	byURL := make(map[string]stubEntry, len(streams))
	for url, s := range streams {
		byURL[url] = stubEntry{stream: s}
	}
	return stubRegistry{byURL: byURL}
}

func (r stubRegistry) Dispatch(_ context.Context, hostURL string) (media.Stream, error) {
	e, ok := r.byURL[hostURL]
	if !ok {
		return media.Stream{}, assert.AnError
	}
	return e.stream, nil
}

func (r stubRegistry) Resolve(hostURL string) (media.StreamExtractor, bool) {
	e, ok := r.byURL[hostURL]
	if !ok {
		return nil, false
	}
	return stubExtractor{priority: e.stream.Priority, stream: e.stream, calls: e.calls}, true
}

func TestStreamsDropsUnclaimedURLs(t *testing.T) {
	reg := newStubRegistry(map[string]media.Stream{
		"http://ok": {HostURL: "http://ok", Links: []string{"http://ok/video"}, External: true},
	})
	r := resolve.New(reg)
	ep := media.Episode{RawStreams: []string{"http://ok", "http://unclaimed"}}

	streams := r.Streams(context.Background(), ep)
	require.Len(t, streams, 1)
	assert.Equal(t, "http://ok", streams[0].HostURL)
}

func TestResolveReturnsErrorWhenNoRawStreams(t *testing.T) {
	r := resolve.New(newStubRegistry(map[string]media.Stream{}))
	_, err := r.Resolve(context.Background(), media.Episode{})
	assert.Error(t, err)
}

func TestResolvePrefersHighestPriorityGroup(t *testing.T) {
	reg := newStubRegistry(map[string]media.Stream{
		"http://low":  {HostURL: "http://low", Priority: 1, External: true, Links: []string{"x"}},
		"http://high": {HostURL: "http://high", Priority: 10, External: true, Links: []string{"y"}},
	})
	r := resolve.New(reg)
	ep := media.Episode{RawStreams: []string{"http://low", "http://high"}}

	winner, err := r.Resolve(context.Background(), ep)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "http://high", winner.HostURL)
}

func TestResolveFallsThroughWhenTopGroupHasNoWorkingExternal(t *testing.T) {
	reg := newStubRegistry(map[string]media.Stream{
		"http://internal-only": {HostURL: "http://internal-only", Priority: 10, External: false, Links: []string{"x"}},
		"http://fallback":      {HostURL: "http://fallback", Priority: 1, External: true, Links: []string{"y"}},
	})
	r := resolve.New(reg)
	ep := media.Episode{RawStreams: []string{"http://internal-only", "http://fallback"}}

	winner, err := r.Resolve(context.Background(), ep)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "http://fallback", winner.HostURL)
}

func TestResolveReturnsNilWhenNothingWorks(t *testing.T) {
	reg := newStubRegistry(map[string]media.Stream{
		"http://dead": {HostURL: "http://dead", External: false},
	})
	r := resolve.New(reg)
	ep := media.Episode{RawStreams: []string{"http://dead"}}

	winner, err := r.Resolve(context.Background(), ep)
	require.NoError(t, err)
	assert.Nil(t, winner)
}

// TestResolveNeverExtractsLowerPriorityGroupWhenHigherWins confirms
// the lower-priority candidate's Extract is never invoked once the
// higher-priority group already produced a winner.
func TestResolveNeverExtractsLowerPriorityGroupWhenHigherWins(t *testing.T) {
	var lowCalls atomic.Int32
	reg := stubRegistry{byURL: map[string]stubEntry{
		"http://high": {stream: media.Stream{HostURL: "http://high", Priority: 10, External: true, Links: []string{"y"}}},
		"http://low":  {stream: media.Stream{HostURL: "http://low", Priority: 1, External: true, Links: []string{"x"}}, calls: &lowCalls},
	}}
	r := resolve.New(reg)
	ep := media.Episode{RawStreams: []string{"http://low", "http://high"}}

	winner, err := r.Resolve(context.Background(), ep)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "http://high", winner.HostURL)
	assert.Zero(t, lowCalls.Load(), "lower-priority group must never be extracted once a higher-priority group wins")
}

func TestPosterReturnsFirstNonEmpty(t *testing.T) {
	reg := newStubRegistry(map[string]media.Stream{
		"http://no-poster": {HostURL: "http://no-poster", Poster: ""},
		"http://poster":    {HostURL: "http://poster", Poster: "cover.jpg"},
	})
	r := resolve.New(reg)
	ep := media.Episode{RawStreams: []string{"http://no-poster", "http://poster"}}

	assert.Equal(t, "cover.jpg", r.Poster(context.Background(), ep))
}

func TestGetReturnsStreamByIndex(t *testing.T) {
	reg := newStubRegistry(map[string]media.Stream{
		"http://a": {HostURL: "http://a"},
		"http://b": {HostURL: "http://b"},
	})
	r := resolve.New(reg)
	ep := media.Episode{RawStreams: []string{"http://a", "http://b"}}

	s, err := r.Get(context.Background(), ep, 1)
	require.NoError(t, err)
	assert.Equal(t, "http://b", s.HostURL)

	_, err = r.Get(context.Background(), ep, 5)
	assert.Error(t, err)
}
