package streams

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
)

func init() {
	Default.Register(0, xstreamcdnCanHandle, func(l *log.Logger) media.StreamExtractor { return &xstreamcdnExtractor{logger: l} })
}

const xstreamcdnBase = "https://www.xstreamcdn.com"

func xstreamcdnCanHandle(hostURL string) bool { return strings.Contains(hostURL, "xstreamcdn.com") }

type xstreamcdnSource struct {
	File string `json:"file"`
}

type xstreamcdnPlayer struct {
	PosterFile string `json:"poster_file"`
}

type xstreamcdnResponse struct {
	Player xstreamcdnPlayer   `json:"player"`
	Data   []xstreamcdnSource `json:"data"`
}

// xstreamcdnExtractor uses the embed URL's last path segment as a
// video id to hit the site's JSON source API.
type xstreamcdnExtractor struct {
	logger *log.Logger
}

func (e *xstreamcdnExtractor) ID() string          { return "xstreamcdn" }
func (e *xstreamcdnExtractor) Priority() int       { return 0 }
func (e *xstreamcdnExtractor) CanHandle(u string) bool { return xstreamcdnCanHandle(u) }

func (e *xstreamcdnExtractor) Extract(ctx context.Context, hostURL string) (media.Stream, error) {
	videoID := path.Base(hostURL)
	apiURL := fmt.Sprintf("%s/api/source/%s", xstreamcdnBase, videoID)

	body, err := fetchEmbedPage(ctx, http.MethodPost, apiURL)
	if err != nil {
		return media.Stream{}, grerr.Wrap(grerr.ExtractError, err, "xstreamcdn: fetch source api")
	}

	var data xstreamcdnResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return media.Stream{}, grerr.Wrap(grerr.ExtractError, err, "xstreamcdn: parse source api")
	}

	var links []string
	for _, src := range data.Data {
		if accepted, finalURL := headProbe(ctx, src.File); accepted {
			links = append(links, finalURL)
		}
	}

	poster := ""
	if data.Player.PosterFile != "" {
		poster = xstreamcdnBase + data.Player.PosterFile
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
