package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/textsim"
	"github.com/nyxmedia/grobber/internal/uid"
)

func init() {
	Default.Register(&VidStreaming{httpClient: &http.Client{}})
}

const vidstreamingBase = "https://vidstreaming.io"

var reVidEpisode = regexp.MustCompile(`-episode-(\d+)$`)

// VidStreaming is the *source* extractor — distinct from the stream
// extractor of the same name in internal/streams, which resolves an
// embed URL vidstreaming.io itself hands out as one of its raw
// streams.
type VidStreaming struct {
	httpClient *http.Client
}

func (v *VidStreaming) ID() string { return "vidstreaming" }

func (v *VidStreaming) Search(ctx context.Context, query, language string, dubbed bool) (<-chan media.SearchHit, error) {
	out := make(chan media.SearchHit)
	if language != "en" {
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		searchURL := vidstreamingBase + "/search.html?" + url.Values{"keyword": {query}}.Encode()
		doc, err := v.fetchDoc(ctx, searchURL)
		if err != nil {
			return
		}
		doc.Find("ul.items li").Each(func(_ int, li *goquery.Selection) {
			a := li.Find("a").First()
			title, _ := a.Attr("title")
			if title == "" {
				return
			}
			href, _ := a.Attr("href")
			thumbnail, _ := a.Find("img").Attr("src")

			m := media.Medium{
				MediumType: uid.Anime,
				MediumID:   uid.Normalize(title),
				Source:     v.ID(),
				Language:   "en",
				Dubbed:     dubbed,
				Title:      title,
				Href:       vidstreamingBase + href,
				Thumbnail:  thumbnail,
			}
			m.UID = uid.Create(m.MediumType, m.MediumID, m.Source, m.Language, m.Dubbed)

			select {
			case out <- media.SearchHit{Medium: m, Certainty: textsim.Ratio(query, title)}:
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}

func (v *VidStreaming) GetEpisodes(ctx context.Context, m media.Medium) (map[int]media.Episode, error) {
	doc, err := v.fetchDoc(ctx, m.Href)
	if err != nil {
		return nil, grerr.Wrap(grerr.ExtractError, err, "vidstreaming: fetch anime page")
	}

	episodes := map[int]media.Episode{}
	doc.Find("ul#episode_page li a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		match := reVidEpisode.FindStringSubmatch(href)
		if match == nil {
			return
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return
		}
		raw, err := v.rawStreamsFor(ctx, vidstreamingBase+href)
		if err != nil {
			return
		}
		episodes[n-1] = media.Episode{Index: n - 1, RawStreams: raw}
	})
	return episodes, nil
}

func (v *VidStreaming) GetEpisode(ctx context.Context, m media.Medium, index int) (media.Episode, error) {
	episodes, err := v.GetEpisodes(ctx, m)
	if err != nil {
		return media.Episode{}, err
	}
	ep, ok := episodes[index]
	if !ok {
		return media.Episode{}, grerr.New(grerr.EpisodeNotFound, fmt.Sprintf("episode %d not found", index))
	}
	return ep, nil
}

func (v *VidStreaming) rawStreamsFor(ctx context.Context, episodeURL string) ([]string, error) {
	doc, err := v.fetchDoc(ctx, episodeURL)
	if err != nil {
		return nil, err
	}
	var streams []string
	doc.Find("div.anime_muti_link a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			streams = append(streams, vidstreamingBase+href)
		}
	})
	return streams, nil
}

func (v *VidStreaming) fetchDoc(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return goquery.NewDocumentFromReader(resp.Body)
}
