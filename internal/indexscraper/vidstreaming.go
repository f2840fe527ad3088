package indexscraper

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nyxmedia/grobber/internal/media"
)

const vidstreamingIndexBase = "https://vidstreaming.io"
const vidstreamingOngoingListURL = vidstreamingIndexBase + "/ongoing-series"
const vidstreamingNewDubListURL = vidstreamingIndexBase + "/recently-added-dub"

// VidStreamingExtractor crawls one of vidstreaming.io's three listing
// pages (ongoing, recently-added-sub, recently-added-dub).
type VidStreamingExtractor struct {
	httpClient *http.Client
	listURL    string
	dubbed     bool
}

// NewVidStreamingOngoingExtractor builds the ONGOING-category scraper.
func NewVidStreamingOngoingExtractor() *VidStreamingExtractor {
	return &VidStreamingExtractor{httpClient: &http.Client{}, listURL: vidstreamingOngoingListURL}
}

// NewVidStreamingNewSubExtractor builds the sub NEW-category scraper.
func NewVidStreamingNewSubExtractor() *VidStreamingExtractor {
	return &VidStreamingExtractor{httpClient: &http.Client{}, listURL: vidstreamingIndexBase, dubbed: false}
}

// NewVidStreamingNewDubExtractor builds the dub NEW-category scraper.
func NewVidStreamingNewDubExtractor() *VidStreamingExtractor {
	return &VidStreamingExtractor{httpClient: &http.Client{}, listURL: vidstreamingNewDubListURL, dubbed: true}
}

func (v *VidStreamingExtractor) FetchPage(ctx context.Context, pageIndex int) (Page, error) {
	url := fmt.Sprintf("%s?page=%d", v.listURL, pageIndex+1)
	doc, err := fetchDocAt(ctx, v.httpClient, url)
	if err != nil {
		return Page{}, err
	}

	var meds []media.Medium
	doc.Find(".listing.items .video-block a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		nameContainer := a.Find(".name").First()
		rawTitle := strings.TrimSpace(nameContainer.Text())
		if rawTitle == "" {
			return
		}
		title, isDub, epIndex := parseVidstreamingTitle(rawTitle)
		thumbnail, _ := a.Find(".img .picture img").Attr("src")
		epCount := epIndex + 1
		meds = append(meds, newIndexMedium("vidstreaming", title, vidstreamingIndexBase+href, "en", isDub, &epCount, thumbnail))
	})

	next := pageIndex + 1
	hasNext := doc.Find(".pagination .next").Length() > 0
	if !hasNext {
		return Page{Media: meds}, nil
	}
	return Page{Media: meds, NextPageIndex: &next}, nil
}

// parseVidstreamingTitle splits a raw listing title like "Naruto
// Episode 220 (Dub)" into (title, dubbed, episodeIndex).
func parseVidstreamingTitle(raw string) (string, bool, int) {
	isDub := strings.HasSuffix(raw, "(Dub)")
	raw = strings.TrimSuffix(raw, " (Dub)")

	epIndex := 0
	if idx := strings.LastIndex(raw, "Episode "); idx >= 0 {
		numStr := strings.TrimSpace(raw[idx+len("Episode "):])
		fields := strings.Fields(numStr)
		if len(fields) > 0 {
			if n, err := strconv.Atoi(fields[0]); err == nil {
				epIndex = n - 1
			}
		}
		raw = strings.TrimSpace(raw[:idx])
	}
	return raw, isDub, epIndex
}
