package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/indexscraper"
	"github.com/nyxmedia/grobber/internal/media"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/uid"
)

type countingExtractor struct {
	calls int32
}

func (c *countingExtractor) FetchPage(ctx context.Context, pageIndex int) (indexscraper.Page, error) {
	atomic.AddInt32(&c.calls, 1)
	if pageIndex > 0 {
		return indexscraper.Page{}, nil
	}
	mid := uid.Normalize("Scheduled Anime")
	u := uid.Create(uid.Anime, mid, "stub", "en", false)
	m := media.Medium{UID: u, MediumType: uid.Anime, MediumID: mid, Source: "stub", Language: "en", Title: "Scheduled Anime"}
	return indexscraper.Page{Media: []media.Medium{m}}, nil
}

func TestTickerServiceRunsImmediatelyThenOnTick(t *testing.T) {
	extractor := &countingExtractor{}
	mem := store.NewMemoryStore()
	s := indexscraper.NewScraper("stub-new", indexscraper.New, extractor, mem)
	s.ScrapeDelay = 0

	set := ScraperSet{Category: indexscraper.New, Interval: 20 * time.Millisecond, Scrapers: []*indexscraper.Scraper{s}}
	svc := &tickerService{set: set, logger: log.Default()}

	ctx, cancel := context.WithTimeout(context.Background(), 65*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	assert.True(t, err == nil || err == context.DeadlineExceeded || err == context.Canceled)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&extractor.calls), int32(2))
}

func TestTickerServiceString(t *testing.T) {
	svc := &tickerService{set: ScraperSet{Category: indexscraper.Ongoing}}
	assert.Equal(t, "scraper-ongoing", svc.String())
}

func TestNewSkipsEmptyScraperSets(t *testing.T) {
	logger := log.Default()
	sched := New(logger, ScraperSet{Category: indexscraper.Full, Interval: time.Hour})
	require.NotNil(t, sched)
}

func TestNewDefaultBuildsThreeCadences(t *testing.T) {
	logger := log.Default()
	mem := store.NewMemoryStore()
	extractor := &countingExtractor{}
	newScraper := indexscraper.NewScraper("stub-new", indexscraper.New, extractor, mem)

	sched := NewDefault(logger, []*indexscraper.Scraper{newScraper}, nil, nil)
	require.NotNil(t, sched)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sched.Serve(ctx)
	assert.True(t, err == nil || err == context.DeadlineExceeded || err == context.Canceled)
}
