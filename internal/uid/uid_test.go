package uid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/uid"
)

func TestParseCanonical(t *testing.T) {
	got, err := uid.Parse("a-naruto-gogoanime-en")
	require.NoError(t, err)
	assert.Equal(t, uid.Anime, got.MediumType)
	assert.Equal(t, "naruto", got.MediumID)
	assert.Equal(t, "gogoanime", got.Source)
	assert.Equal(t, "en", got.Language)
	assert.False(t, got.Dubbed)
}

func TestParseCanonicalDub(t *testing.T) {
	got, err := uid.Parse("a-naruto-gogoanime-en_dub")
	require.NoError(t, err)
	assert.True(t, got.Dubbed)
}

func TestParseGroup(t *testing.T) {
	got, err := uid.Parse("a-naruto-en")
	require.NoError(t, err)
	assert.Equal(t, "", got.Source)
	assert.True(t, got.IsGroup())
}

func TestParseLegacy(t *testing.T) {
	got, err := uid.Parse("gogoanime-naruto-en")
	require.NoError(t, err)
	assert.Equal(t, uid.Anime, got.MediumType)
	assert.Equal(t, "gogoanime", got.Source)
	assert.Equal(t, "naruto", got.MediumID)
}

func TestParseInvalid(t *testing.T) {
	_, err := uid.Parse("")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	for _, u := range []uid.UID{
		uid.Create(uid.Anime, "naruto", "gogoanime", "en", false),
		uid.Create(uid.Anime, "naruto", "gogoanime", "en", true),
		uid.Create(uid.Anime, "naruto", "", "en", false),
		uid.Create(uid.Manga, "berserk", "mangadex", "de", true),
	} {
		s := u.String()
		parsed, err := uid.Parse(s)
		require.NoError(t, err)
		assert.Equal(t, u, parsed)
		assert.Equal(t, s, parsed.String())
	}
}

func TestNormalizeCharset(t *testing.T) {
	for _, title := range []string{"Naruto Shippuden!", "One-Punch Man", "Attack on Titan"} {
		n := uid.Normalize(title)
		for _, r := range n {
			ok := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || r == '_'
			assert.Truef(t, ok, "unexpected rune %q in normalized %q", r, n)
		}
	}
}

func TestNormalizeTrailingSpaceInvariant(t *testing.T) {
	assert.Equal(t, uid.Normalize("Naruto"), uid.Normalize("Naruto "))
}
