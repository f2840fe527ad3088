package streams

import (
	"bytes"
	"context"
	"net/http"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
)

func init() {
	Default.Register(0, rapidvideoCanHandle, func(l *log.Logger) media.StreamExtractor { return &rapidvideoExtractor{logger: l} })
}

var rapidvideoHost = regexp.MustCompile(`rapidvideo\.\w{2,3}`)

func rapidvideoCanHandle(hostURL string) bool { return rapidvideoHost.MatchString(hostURL) }

// rapidvideoExtractor parses the embed page's <video#videojs> element
// for <source> tags and an optional poster.
type rapidvideoExtractor struct {
	logger *log.Logger
}

func (e *rapidvideoExtractor) ID() string          { return "rapidvideo" }
func (e *rapidvideoExtractor) Priority() int       { return 0 }
func (e *rapidvideoExtractor) CanHandle(u string) bool { return rapidvideoCanHandle(u) }

func (e *rapidvideoExtractor) Extract(ctx context.Context, hostURL string) (media.Stream, error) {
	body, err := fetchEmbedPage(ctx, http.MethodGet, hostURL)
	if err != nil {
		return media.Stream{}, grerr.Wrap(grerr.ExtractError, err, "rapidvideo: fetch embed page")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return media.Stream{}, grerr.Wrap(grerr.ExtractError, err, "rapidvideo: parse embed page")
	}

	var links []string
	doc.Find("video#videojs source").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			if accepted, finalURL := headProbe(ctx, src); accepted {
				links = append(links, finalURL)
			}
		}
	})

	poster, _ := doc.Find("video#videojs").Attr("poster")

	return media.Stream{
		HostURL:   hostURL,
		Extractor: e.ID(),
		Links:     links,
		Poster:    poster,
		External:  true,
		Priority:  e.Priority(),
	}, nil
}
