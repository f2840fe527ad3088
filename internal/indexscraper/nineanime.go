package indexscraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nyxmedia/grobber/internal/media"
)

const nineAnimeIndexBase = "https://9anime.to"
const nineAnimeFullListURL = nineAnimeIndexBase + "/az-list"
const nineAnimeNewListURL = nineAnimeIndexBase + "/updated"

// NineAnimeFullExtractor crawls 9anime's A-Z listing page by page.
type NineAnimeFullExtractor struct {
	httpClient *http.Client
}

func NewNineAnimeFullExtractor() *NineAnimeFullExtractor {
	return &NineAnimeFullExtractor{httpClient: &http.Client{}}
}

func (n *NineAnimeFullExtractor) FetchPage(ctx context.Context, pageIndex int) (Page, error) {
	url := fmt.Sprintf("%s?page=%d", nineAnimeFullListURL, pageIndex+1)
	doc, err := fetchDocAt(ctx, n.httpClient, url)
	if err != nil {
		return Page{}, err
	}

	var meds []media.Medium
	doc.Find(".items .item").Each(func(_ int, item *goquery.Selection) {
		nameContainer := item.Find(".info .name").First()
		href, ok := nameContainer.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(nameContainer.Text())
		if title == "" {
			return
		}
		isDub := strings.HasSuffix(title, "(Dub)")
		title = strings.TrimSuffix(title, " (Dub)")
		thumbnail, _ := item.Find(".thumb img").Attr("src")
		meds = append(meds, newIndexMedium("nineanime", title, nineAnimeIndexBase+href, "en", isDub, nil, thumbnail))
	})

	next := pageIndex + 1
	hasNext := item2HasNextPage(doc)
	if !hasNext {
		return Page{Media: meds}, nil
	}
	return Page{Media: meds, NextPageIndex: &next}, nil
}

// NineAnimeNewExtractor crawls 9anime's "updated" listing, grounded on
// NineAnimeNewIndexScraper. The extractor applies no page limit itself;
// a limit comes only from the Scraper's Policy field, which
// cmd/grobber-index leaves at the base always-continue policy.
type NineAnimeNewExtractor struct {
	httpClient *http.Client
}

func NewNineAnimeNewExtractor() *NineAnimeNewExtractor {
	return &NineAnimeNewExtractor{httpClient: &http.Client{}}
}

func (n *NineAnimeNewExtractor) FetchPage(ctx context.Context, pageIndex int) (Page, error) {
	url := fmt.Sprintf("%s?page=%d", nineAnimeNewListURL, pageIndex+1)
	doc, err := fetchDocAt(ctx, n.httpClient, url)
	if err != nil {
		return Page{}, err
	}

	var meds []media.Medium
	doc.Find(".film-list .item .inner").Each(func(_ int, item *goquery.Selection) {
		nameContainer := item.Find(".name").First()
		href, ok := nameContainer.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(nameContainer.Text())
		if title == "" {
			return
		}
		isDub := strings.HasSuffix(title, "(Dub)")
		title = strings.TrimSuffix(title, " (Dub)")
		thumbnail, _ := item.Find(".poster img").Attr("src")
		meds = append(meds, newIndexMedium("nineanime", title, nineAnimeIndexBase+href, "en", isDub, nil, thumbnail))
	})

	next := pageIndex + 1
	hasNext := item2HasNextPage(doc)
	if !hasNext {
		return Page{Media: meds}, nil
	}
	return Page{Media: meds, NextPageIndex: &next}, nil
}

func item2HasNextPage(doc *goquery.Document) bool {
	return doc.Find(".paging-wrapper .pull-right").Not(".disabled").Length() > 0
}
