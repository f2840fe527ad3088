package grerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/grerr"
)

func TestNewCarriesKindAndMessage(t *testing.T) {
	err := grerr.New(grerr.AnimeNotFound, "no such anime")
	assert.Equal(t, grerr.AnimeNotFound, err.Kind())
	assert.Contains(t, err.Error(), "anime_not_found")
	assert.Contains(t, err.Error(), "no such anime")
	assert.Empty(t, err.CorrelationID())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := grerr.Wrap(grerr.FetchError, cause, "fetching failed")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, grerr.FetchError, err.Kind())
}

func TestInternalfStampsCorrelationID(t *testing.T) {
	err := grerr.Internalf(errors.New("db exploded"), "could not load %s", "uid")
	assert.Equal(t, grerr.Internal, err.Kind())
	assert.NotEmpty(t, err.CorrelationID())
	assert.Contains(t, err.Error(), err.CorrelationID())
}

func TestIsMatchesKind(t *testing.T) {
	err := grerr.New(grerr.UIDInvalid, "bad uid")
	assert.True(t, grerr.Is(err, grerr.UIDInvalid))
	assert.False(t, grerr.Is(err, grerr.UIDUnknown))
	assert.False(t, grerr.Is(errors.New("plain"), grerr.UIDInvalid))
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, grerr.Internal, grerr.KindOf(errors.New("plain")))
	assert.Equal(t, grerr.SourceNotFound, grerr.KindOf(grerr.New(grerr.SourceNotFound, "nope")))
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", grerr.Kind(999).String())
}
