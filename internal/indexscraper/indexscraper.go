// Package indexscraper implements the periodic index-scraper base: a
// page-by-page crawl of a source's full listing, with two opt-in
// continuation policies (UpdateUntilLastState, MaxPageIndex) composed
// by interface rather than inheritance.
package indexscraper

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/store"
)

// Category mirrors IndexScraperCategory: which scheduler cadence a
// scraper belongs to.
type Category string

const (
	Full     Category = "full"
	New      Category = "new"
	Ongoing  Category = "ongoing"
)

// Page is one fetched listing page: the extracted media plus the
// next page index to crawl, or nil if this was the last page.
type Page struct {
	Media         []media.Medium
	NextPageIndex *int
}

// Extractor implements one source's page fetch/parse logic — the Go
// rendering of IndexScraper's create_request/extract_media/
// get_next_page_index trio.
type Extractor interface {
	// FetchPage retrieves and parses page pageIndex, returning the
	// media found and the next page index (nil if this is the last
	// page). A fetch failure is logged and treated as "no media, no
	// next page" by Scraper.Run, matching safe_extract_media.
	FetchPage(ctx context.Context, pageIndex int) (Page, error)
}

// ContinuationPolicy decides whether a scrape should proceed past the
// page it just fetched, the Go rendering of IndexScraper.should_continue
// and its mixins.
type ContinuationPolicy interface {
	ShouldContinue(pageIndex int, page Page) bool
}

// alwaysContinue is the base IndexScraper's should_continue: true
// unless FetchPage itself reported no next page.
type alwaysContinue struct{}

func (alwaysContinue) ShouldContinue(int, Page) bool { return true }

// MaxPageIndexPolicy stops the crawl once the page just fetched has
// index MaxPageIndex or higher. There is no built-in default: the zero
// value stops after page 0.
type MaxPageIndexPolicy struct {
	MaxPageIndex int
	Next         ContinuationPolicy
}

func (p MaxPageIndexPolicy) ShouldContinue(pageIndex int, page Page) bool {
	if pageIndex >= p.MaxPageIndex {
		return false
	}
	if p.Next != nil {
		return p.Next.ShouldContinue(pageIndex, page)
	}
	return true
}

// UpdateUntilLastStatePolicy stops the crawl once every title in
// FirstPageTitles (the titles page 0 produced the last time this
// scraper ran) is among the recently seen titles — "we've caught up to
// where we left off" — matching UpdateUntilLastStateIndexScraper.
// recent is a bounded ring of the last ~200 titles seen, mirroring the
// Python deque(maxlen=200). FirstPageTitles is whatever the caller
// sets (LoadFirstPageTitles reads a stored set); Scraper.Run neither
// loads nor saves first-page titles, and a nil FirstPageTitles never
// stops the crawl.
type UpdateUntilLastStatePolicy struct {
	FirstPageTitles map[string]struct{}
	recent          []string
	Next            ContinuationPolicy
}

const recentTitlesCap = 200

func (p *UpdateUntilLastStatePolicy) addRecent(titles []string) {
	p.recent = append(p.recent, titles...)
	if over := len(p.recent) - recentTitlesCap; over > 0 {
		p.recent = p.recent[over:]
	}
}

func (p *UpdateUntilLastStatePolicy) ShouldContinue(pageIndex int, page Page) bool {
	if p.Next != nil && !p.Next.ShouldContinue(pageIndex, page) {
		return false
	}

	titles := make([]string, len(page.Media))
	for i, m := range page.Media {
		titles[i] = m.Title
	}
	p.addRecent(titles)

	if p.FirstPageTitles == nil {
		return true
	}
	seen := map[string]struct{}{}
	for _, t := range p.recent {
		seen[t] = struct{}{}
	}
	for t := range p.FirstPageTitles {
		if _, ok := seen[t]; !ok {
			return true
		}
	}
	log.Debug("index scraper reached a page whose media matches the previous run's first page", "pageIndex", pageIndex)
	return false
}

// Scraper runs Extractor page-by-page, uploading each page via Store,
// pausing ScrapeDelay between requests — the Go rendering of
// IndexScraper.scrape.
type Scraper struct {
	ID          string
	Category    Category
	Extractor   Extractor
	Policy      ContinuationPolicy
	Store       store.Store
	ScrapeDelay time.Duration
	Logger      *log.Logger
}

// NewScraper builds a Scraper with the base (always-continue) policy
// and the original's 2s default ScrapeDelay; override Policy/
// ScrapeDelay before calling Run as needed.
func NewScraper(id string, category Category, extractor Extractor, st store.Store) *Scraper {
	return &Scraper{
		ID:          id,
		Category:    category,
		Extractor:   extractor,
		Policy:      alwaysContinue{},
		Store:       st,
		ScrapeDelay: 2 * time.Second,
		Logger:      log.Default(),
	}
}

// Run crawls pages starting at 0 until FetchPage reports no next page
// or the continuation policy declines, uploading every page's media
// as it goes. A page whose fetch fails is logged and treated as an
// empty page with no next page, matching safe_extract_media: the crawl
// ends there and Run still returns nil.
func (s *Scraper) Run(ctx context.Context) error {
	pageIndex := 0
	for {
		page, err := s.Extractor.FetchPage(ctx, pageIndex)
		if err != nil {
			s.Logger.Error("index scraper failed to extract page, ignoring", "scraper", s.ID, "page", pageIndex, "err", err)
			page = Page{}
		} else if len(page.Media) > 0 {
			if uploadErr := s.uploadMedia(ctx, page.Media); uploadErr != nil {
				s.Logger.Error("index scraper failed to upload media", "scraper", s.ID, "page", pageIndex, "err", uploadErr)
			}
		}

		if page.NextPageIndex == nil {
			break
		}
		if s.Policy != nil && !s.Policy.ShouldContinue(pageIndex, page) {
			break
		}

		pageIndex = *page.NextPageIndex

		select {
		case <-time.After(s.ScrapeDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.Logger.Info("index scraper done", "scraper", s.ID)
	return nil
}

func (s *Scraper) uploadMedia(ctx context.Context, meds []media.Medium) error {
	docs := make([]store.Document, 0, len(meds))
	for _, m := range meds {
		docs = append(docs, store.Document{
			"uid":          m.UID.String(),
			"mediumType":   string(m.MediumType),
			"mediumId":     m.MediumID,
			"source":       m.Source,
			"language":     m.Language,
			"dubbed":       m.Dubbed,
			"title":        m.Title,
			"aliases":      m.Aliases,
			"href":         m.Href,
			"thumbnail":    m.Thumbnail,
			"episodeCount": episodeCountValue(m.EpisodeCount),
		})
	}
	return s.Store.BulkUpsert(ctx, "index_media", docs)
}

func episodeCountValue(c *int) interface{} {
	if c == nil {
		return nil
	}
	return *c
}

// LoadFirstPageTitles reads the titles the scraper's page 0 produced
// last run, matching UpdateUntilLastStateIndexScraper._get_first_page_titles.
func LoadFirstPageTitles(ctx context.Context, st store.Store, scraperID string) (map[string]struct{}, error) {
	doc, err := st.Get(ctx, "index_scraper_meta", scraperID)
	if err != nil || doc == nil {
		return nil, err
	}
	raw, _ := doc["firstPageTitles"].([]interface{})
	out := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out[s] = struct{}{}
		}
	}
	return out, nil
}

// SaveFirstPageTitles persists titles as the scraper's new page-0
// baseline, matching upload_first_page_titles.
func SaveFirstPageTitles(ctx context.Context, st store.Store, scraperID string, titles []string) error {
	raw := make([]interface{}, len(titles))
	for i, t := range titles {
		raw[i] = t
	}
	return st.Upsert(ctx, "index_scraper_meta", store.Document{
		"uid":             scraperID,
		"firstPageTitles": raw,
	})
}
