// Package uid implements the canonical media identifier grammar:
// type/id/source/language(/dubbed) joined and normalized into one
// opaque, parseable string.
package uid

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/nyxmedia/grobber/internal/grerr"
)

// MediumType distinguishes anime from manga records.
type MediumType string

const (
	Anime MediumType = "a"
	Manga MediumType = "m"
)

// legacyPattern matches "source-mediumId-lang[_dub]" (anime-only, no
// medium type segment). uidPattern matches the full canonical grammar,
// with an optional source segment for the group form.
var (
	uidPattern    = regexp.MustCompile(`^([^-]+)-([^-]+)(?:-([^-]+))?-([^-]+?)(_dub)?$`)
	legacyPattern = regexp.MustCompile(`^(.+)-(.+)-(.+?)(_dub)?$`)
)

// UID is a parsed canonical or legacy identifier.
type UID struct {
	MediumType MediumType
	MediumID   string
	// Source is empty for the group form (type-mediumId-lang[_dub]).
	Source   string
	Language string
	Dubbed   bool
}

// Parse parses s against the canonical grammar first, falling back to
// the legacy anime-only grammar.
func Parse(s string) (UID, error) {
	if m := uidPattern.FindStringSubmatch(s); m != nil {
		mt := MediumType(m[1])
		if mt == Anime || mt == Manga {
			return UID{
				MediumType: mt,
				MediumID:   m[2],
				Source:     m[3],
				Language:   m[4],
				Dubbed:     m[5] == "_dub",
			}, nil
		}
	}

	if m := legacyPattern.FindStringSubmatch(s); m != nil {
		return UID{
			MediumType: Anime,
			Source:     m[1],
			MediumID:   m[2],
			Language:   m[3],
			Dubbed:     m[4] == "_dub",
		}, nil
	}

	return UID{}, grerr.New(grerr.UIDInvalid, fmt.Sprintf("invalid uid %q", s))
}

// Create builds a UID from components. Source may be empty to produce
// the group form.
func Create(mediumType MediumType, mediumID, source, language string, dubbed bool) UID {
	return UID{MediumType: mediumType, MediumID: mediumID, Source: source, Language: language, Dubbed: dubbed}
}

// String renders the canonical form: type-mediumId[-source]-lang[_dub].
func (u UID) String() string {
	var b strings.Builder
	b.WriteString(string(u.MediumType))
	b.WriteByte('-')
	b.WriteString(u.MediumID)
	if u.Source != "" {
		b.WriteByte('-')
		b.WriteString(u.Source)
	}
	b.WriteByte('-')
	b.WriteString(u.Language)
	if u.Dubbed {
		b.WriteString("_dub")
	}
	return b.String()
}

// IsGroup reports whether this UID has no source segment, i.e. it
// names a MediumGroup rather than a single Medium.
func (u UID) IsGroup() bool { return u.Source == "" }

// Normalize derives a deterministic mediumId from a title: lowercase,
// strip whitespace, and replace every non-alphanumeric rune with
// "_<hex>_". Mirrors UID.create_media_id exactly.
func Normalize(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	title = strings.ReplaceAll(title, " ", "")

	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "_%x_", r)
		}
	}
	return b.String()
}
