package streams

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
)

func init() {
	Default.Register(0, vidstreamingCanHandle, func(l *log.Logger) media.StreamExtractor { return &vidstreamingExtractor{logger: l} })
}

func vidstreamingCanHandle(hostURL string) bool { return strings.Contains(hostURL, "vidstreaming.io") }

var reSetup = regexp.MustCompile(`(?s)playerInstance\.setup\((.+?)\);`)

type vidstreamingSource struct {
	File string `json:"file"`
}

type vidstreamingPlayerData struct {
	Image   string               `json:"image"`
	Sources []vidstreamingSource `json:"sources"`
}

// vidstreamingExtractor extracts the playerInstance.setup(...) JS
// object literal embedded in the page and reads its `sources`/`image`
// keys, expecting the embed to emit valid JSON as the player actually
// serializes it in practice.
type vidstreamingExtractor struct {
	logger *log.Logger
}

func (e *vidstreamingExtractor) ID() string          { return "vidstreaming" }
func (e *vidstreamingExtractor) Priority() int       { return 0 }
func (e *vidstreamingExtractor) CanHandle(u string) bool { return vidstreamingCanHandle(u) }

func (e *vidstreamingExtractor) Extract(ctx context.Context, hostURL string) (media.Stream, error) {
	body, err := fetchEmbedPage(ctx, http.MethodGet, hostURL)
	if err != nil {
		return media.Stream{}, grerr.Wrap(grerr.ExtractError, err, "vidstreaming: fetch embed page")
	}

	match := reSetup.FindSubmatch(body)
	if match == nil {
		return media.Stream{}, grerr.New(grerr.ExtractError, "vidstreaming: player data not found")
	}

	var data vidstreamingPlayerData
	if err := json.Unmarshal(match[1], &data); err != nil {
		return media.Stream{}, grerr.Wrap(grerr.ExtractError, err, "vidstreaming: parse player data")
	}

	var links []string
	for _, src := range data.Sources {
		if accepted, finalURL := headProbe(ctx, src.File); accepted {
			links = append(links, finalURL)
		}
	}

	poster := ""
	if data.Image != "" {
		if accepted, finalURL := headProbe(ctx, data.Image); accepted {
			poster = finalURL
		}
	}

	return media.Stream{
		HostURL:   hostURL,
		Extractor: e.ID(),
		Links:     links,
		Poster:    poster,
		External:  true,
		Priority:  e.Priority(),
	}, nil
}
