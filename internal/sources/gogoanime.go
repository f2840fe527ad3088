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
	Default.Register(&GogoAnime{httpClient: &http.Client{}})
}

const gogoanimeBase = "https://gogoanime.io"

var reGogoDubSuffix = regexp.MustCompile(`\s\(Dub\)$`)

// GogoAnime searches via /search.html?keyword=, fetches its episode
// list via a dedicated ajax endpoint, and pulls raw streams from
// div.anime_muti_link a[data-video].
type GogoAnime struct {
	httpClient *http.Client
}

func (g *GogoAnime) ID() string { return "gogoanime" }

func (g *GogoAnime) Search(ctx context.Context, query, language string, dubbed bool) (<-chan media.SearchHit, error) {
	out := make(chan media.SearchHit)
	if language != "en" {
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		searchURL := gogoanimeBase + "/search.html?" + url.Values{"keyword": {query}}.Encode()
		doc, err := g.fetchDoc(ctx, searchURL)
		if err != nil {
			return
		}
		doc.Find("ul.items li").Each(func(_ int, li *goquery.Selection) {
			a := li.Find("a").First()
			rawTitle, _ := a.Attr("title")
			if rawTitle == "" {
				return
			}
			isDub := strings.HasSuffix(rawTitle, "(Dub)")
			if dubbed != isDub {
				return
			}
			title := reGogoDubSuffix.ReplaceAllString(rawTitle, "")
			href, _ := a.Attr("href")
			thumbnail, _ := a.Find("img").Attr("src")

			m := media.Medium{
				MediumType: uid.Anime,
				MediumID:   uid.Normalize(title),
				Source:     g.ID(),
				Language:   "en",
				Dubbed:     isDub,
				Title:      title,
				Href:       gogoanimeBase + href,
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

func (g *GogoAnime) GetEpisodes(ctx context.Context, m media.Medium) (map[int]media.Episode, error) {
	doc, err := g.fetchDoc(ctx, m.Href)
	if err != nil {
		return nil, grerr.Wrap(grerr.ExtractError, err, "gogoanime: fetch anime page")
	}
	movieID, _ := doc.Find("#movie_id").Attr("value")
	epListURL := fmt.Sprintf("%s/load-list-episode?id=%s", gogoanimeBase, url.QueryEscape(movieID))
	epDoc, err := g.fetchDoc(ctx, epListURL)
	if err != nil {
		return nil, grerr.Wrap(grerr.ExtractError, err, "gogoanime: fetch episode list")
	}

	reEpisode := regexp.MustCompile(`-episode-(\d+)$`)
	episodes := map[int]media.Episode{}
	epDoc.Find("li a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		match := reEpisode.FindStringSubmatch(href)
		if match == nil {
			return
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return
		}
		raw, err := g.rawStreamsFor(ctx, gogoanimeBase+href)
		if err != nil {
			return
		}
		episodes[n-1] = media.Episode{Index: n - 1, RawStreams: raw}
	})
	return episodes, nil
}

func (g *GogoAnime) GetEpisode(ctx context.Context, m media.Medium, index int) (media.Episode, error) {
	episodes, err := g.GetEpisodes(ctx, m)
	if err != nil {
		return media.Episode{}, err
	}
	ep, ok := episodes[index]
	if !ok {
		return media.Episode{}, grerr.New(grerr.EpisodeNotFound, fmt.Sprintf("episode %d not found", index))
	}
	return ep, nil
}

func (g *GogoAnime) rawStreamsFor(ctx context.Context, episodeURL string) ([]string, error) {
	doc, err := g.fetchDoc(ctx, episodeURL)
	if err != nil {
		return nil, err
	}
	var streams []string
	doc.Find("div.anime_muti_link a").Each(func(_ int, a *goquery.Selection) {
		if v, ok := a.Attr("data-video"); ok {
			streams = append(streams, addScheme(v))
		}
	})
	return streams, nil
}

func (g *GogoAnime) fetchDoc(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return goquery.NewDocumentFromReader(resp.Body)
}

func addScheme(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}
