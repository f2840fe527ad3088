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
	Default.Register(&NineAnime{httpClient: &http.Client{}})
}

const nineAnimeBase = "https://9anime.to"

var reNineEpisodeID = regexp.MustCompile(`data-id="(\d+)"`)

// NineAnime performs an HTML search, then fetches one ajax server list
// keyed by a numeric film id scraped out of the watch page; that list
// carries every episode's raw stream links.
type NineAnime struct {
	httpClient *http.Client
}

func (n *NineAnime) ID() string { return "nineanime" }

func (n *NineAnime) Search(ctx context.Context, query, language string, dubbed bool) (<-chan media.SearchHit, error) {
	out := make(chan media.SearchHit)
	if language != "en" {
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		searchURL := nineAnimeBase + "/search?" + url.Values{"keyword": {query}}.Encode()
		doc, err := n.fetchDoc(ctx, searchURL)
		if err != nil {
			return
		}
		doc.Find("div.film-list div.item").Each(func(_ int, item *goquery.Selection) {
			a := item.Find("a.name").First()
			title := strings.TrimSpace(a.Text())
			if title == "" {
				return
			}
			href, _ := a.Attr("href")
			thumbnail, _ := item.Find("img").Attr("src")

			m := media.Medium{
				MediumType: uid.Anime,
				MediumID:   uid.Normalize(title),
				Source:     n.ID(),
				Language:   "en",
				Dubbed:     dubbed,
				Title:      title,
				Href:       nineAnimeBase + href,
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

func (n *NineAnime) GetEpisodes(ctx context.Context, m media.Medium) (map[int]media.Episode, error) {
	doc, err := n.fetchDoc(ctx, m.Href)
	if err != nil {
		return nil, grerr.Wrap(grerr.ExtractError, err, "nineanime: fetch watch page")
	}

	filmID := ""
	doc.Find("html").Each(func(_ int, _ *goquery.Selection) {
		if m := reNineEpisodeID.FindStringSubmatch(doc.Text()); m != nil {
			filmID = m[1]
		}
	})

	epListURL := fmt.Sprintf("%s/ajax/film/servers?id=%s", nineAnimeBase, url.QueryEscape(filmID))
	epDoc, err := n.fetchDoc(ctx, epListURL)
	if err != nil {
		return nil, grerr.Wrap(grerr.ExtractError, err, "nineanime: fetch servers list")
	}

	episodes := map[int]media.Episode{}
	epDoc.Find("li[data-ep]").Each(func(_ int, li *goquery.Selection) {
		epNum, ok := li.Attr("data-ep")
		if !ok {
			return
		}
		n2, err := strconv.Atoi(epNum)
		if err != nil {
			return
		}
		var links []string
		li.Find("a[data-url]").Each(func(_ int, a *goquery.Selection) {
			if u, ok := a.Attr("data-url"); ok {
				links = append(links, addSchemeNine(u))
			}
		})
		episodes[n2-1] = media.Episode{Index: n2 - 1, RawStreams: links}
	})
	return episodes, nil
}

func (n *NineAnime) GetEpisode(ctx context.Context, m media.Medium, index int) (media.Episode, error) {
	episodes, err := n.GetEpisodes(ctx, m)
	if err != nil {
		return media.Episode{}, err
	}
	ep, ok := episodes[index]
	if !ok {
		return media.Episode{}, grerr.New(grerr.EpisodeNotFound, fmt.Sprintf("episode %d not found", index))
	}
	return ep, nil
}

func (n *NineAnime) fetchDoc(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return goquery.NewDocumentFromReader(resp.Body)
}

func addSchemeNine(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}
