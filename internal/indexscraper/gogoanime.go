package indexscraper

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/uid"
)

const gogoanimeIndexBase = "https://gogoanime.io"
const gogoanimeFullListURL = gogoanimeIndexBase + "/anime-list.html"
const gogoanimeNewListURL = gogoanimeIndexBase + "/page-recent-release.html"

var reGogoIndexDub = regexp.MustCompile(`\s\(Dub\)$`)

// GogoAnimeFullExtractor crawls gogoanime.io's alphabetical full
// listing page by page, stripping the "(Dub)" suffix to recover the
// dubbed flag.
type GogoAnimeFullExtractor struct {
	httpClient *http.Client
}

// NewGogoAnimeFullExtractor builds the FULL-category gogoanime scraper.
func NewGogoAnimeFullExtractor() *GogoAnimeFullExtractor {
	return &GogoAnimeFullExtractor{httpClient: &http.Client{}}
}

func (g *GogoAnimeFullExtractor) FetchPage(ctx context.Context, pageIndex int) (Page, error) {
	url := fmt.Sprintf("%s?page=%d", gogoanimeFullListURL, pageIndex+1)
	doc, err := fetchDocAt(ctx, g.httpClient, url)
	if err != nil {
		return Page{}, err
	}

	var meds []media.Medium
	doc.Find(".anime_list_body .listing a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		rawTitle := strings.TrimSpace(a.Text())
		if rawTitle == "" {
			return
		}
		isDub := strings.HasSuffix(rawTitle, "(Dub)")
		title := reGogoIndexDub.ReplaceAllString(rawTitle, "")
		meds = append(meds, newIndexMedium("gogoanime", title, gogoanimeIndexBase+href, "en", isDub, nil, ""))
	})

	next := pageIndex + 1
	hasNextPage := doc.Find(".pagination-list .selected").Next().Length() > 0
	if !hasNextPage {
		return Page{Media: meds}, nil
	}
	return Page{Media: meds, NextPageIndex: &next}, nil
}

// GogoAnimeNewExtractor crawls the "recently released" page, one
// scraper instance per sub/dub filter value, grounded on
// GogoAnimeNewSubIndexScraper/GogoAnimeNewDubIndexScraper.
type GogoAnimeNewExtractor struct {
	httpClient *http.Client
	typeParam  int
}

// NewGogoAnimeNewSubExtractor builds the sub-only NEW-category scraper.
func NewGogoAnimeNewSubExtractor() *GogoAnimeNewExtractor {
	return &GogoAnimeNewExtractor{httpClient: &http.Client{}, typeParam: 1}
}

// NewGogoAnimeNewDubExtractor builds the dub-only NEW-category scraper.
func NewGogoAnimeNewDubExtractor() *GogoAnimeNewExtractor {
	return &GogoAnimeNewExtractor{httpClient: &http.Client{}, typeParam: 2}
}

func (g *GogoAnimeNewExtractor) FetchPage(ctx context.Context, pageIndex int) (Page, error) {
	url := fmt.Sprintf("%s?page=%d&type=%d", gogoanimeNewListURL, pageIndex+1, g.typeParam)
	doc, err := fetchDocAt(ctx, g.httpClient, url)
	if err != nil {
		return Page{}, err
	}

	var meds []media.Medium
	doc.Find(".last_episodes .items li").Each(func(_ int, item *goquery.Selection) {
		nameA := item.Find(".name a").First()
		href, _ := nameA.Attr("href")
		rawTitle := strings.TrimSpace(nameA.Text())
		if rawTitle == "" {
			return
		}
		isDub := strings.HasSuffix(rawTitle, "(Dub)")
		title := reGogoIndexDub.ReplaceAllString(rawTitle, "")
		thumbnail, _ := item.Find(".img img").Attr("src")

		var epCount *int
		if rawEp := strings.TrimSpace(item.Find(".episode").Text()); rawEp != "" {
			fields := strings.Fields(rawEp)
			if len(fields) > 0 {
				if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
					epCount = &n
				}
			}
		}

		meds = append(meds, newIndexMedium("gogoanime", title, gogoanimeIndexBase+href, "en", isDub, epCount, thumbnail))
	})

	next := pageIndex + 1
	hasNextPage := doc.Find(".pagination-list .selected").Next().Length() > 0
	if !hasNextPage {
		return Page{Media: meds}, nil
	}
	return Page{Media: meds, NextPageIndex: &next}, nil
}

func newIndexMedium(source, title, href, language string, dubbed bool, episodeCount *int, thumbnail string) media.Medium {
	mediumID := uid.Normalize(title)
	m := media.Medium{
		MediumType:   uid.Anime,
		MediumID:     mediumID,
		Source:       source,
		Language:     language,
		Dubbed:       dubbed,
		Title:        title,
		Href:         href,
		Thumbnail:    thumbnail,
		EpisodeCount: episodeCount,
	}
	m.UID = uid.Create(m.MediumType, m.MediumID, m.Source, m.Language, m.Dubbed)
	return m
}

func fetchDocAt(ctx context.Context, client *http.Client, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return goquery.NewDocumentFromReader(resp.Body)
}
