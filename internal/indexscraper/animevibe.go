package indexscraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nyxmedia/grobber/internal/media"
)

const animevibeBase = "https://animevibe.to"

// AnimeVibeFullExtractor crawls animevibe's sub/dub category listings.
type AnimeVibeFullExtractor struct {
	httpClient *http.Client
	dubbed     bool
}

// NewAnimeVibeSubExtractor builds the sub-category scraper.
func NewAnimeVibeSubExtractor() *AnimeVibeFullExtractor {
	return &AnimeVibeFullExtractor{httpClient: &http.Client{}, dubbed: false}
}

// NewAnimeVibeDubExtractor builds the dub-category scraper.
func NewAnimeVibeDubExtractor() *AnimeVibeFullExtractor {
	return &AnimeVibeFullExtractor{httpClient: &http.Client{}, dubbed: true}
}

func (a *AnimeVibeFullExtractor) FetchPage(ctx context.Context, pageIndex int) (Page, error) {
	category := "sub"
	if a.dubbed {
		category = "dub"
	}
	url := fmt.Sprintf("%s/a/category/%s/page/%d/", animevibeBase, category, pageIndex+1)
	doc, err := fetchDocAt(ctx, a.httpClient, url)
	if err != nil {
		return Page{}, err
	}

	var meds []media.Medium
	doc.Find(".td-ss-main-content .td-animation-stack").Each(func(_ int, item *goquery.Selection) {
		a2 := item.Find("a").First()
		href, _ := a2.Attr("href")
		title := strings.TrimSpace(a2.AttrOr("title", a2.Text()))
		if title == "" {
			return
		}
		thumbnail, _ := item.Find("img").Attr("src")
		meds = append(meds, newIndexMedium("animevibe", title, href, "en", a.dubbed, nil, thumbnail))
	})

	next := pageIndex + 1
	hasNext := doc.Find(".page-nav .td-icon-menu-right").Length() > 0
	if !hasNext {
		return Page{Media: meds}, nil
	}
	return Page{Media: meds, NextPageIndex: &next}, nil
}
