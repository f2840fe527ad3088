// Package schedule runs the index-scraper cadences under one flat
// suture.Supervisor with graceful Serve/ServeBackground, driving NEW
// daily, ONGOING every two weeks, and FULL every sixteen weeks.
package schedule

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thejerf/suture/v4"

	"github.com/nyxmedia/grobber/internal/indexscraper"
)

// Cadence durations for the three scrape categories.
const (
	NewInterval     = 24 * time.Hour
	OngoingInterval = 2 * 7 * 24 * time.Hour
	FullInterval    = 16 * 7 * 24 * time.Hour
)

// Category names one of the three scraper cadences the scheduler
// drives, matching indexscraper.Category.
type Category = indexscraper.Category

// ScraperSet groups the scrapers that belong to one Category, run
// sequentially (with ScrapeDelay already paced inside each Scraper)
// whenever that category's interval fires.
type ScraperSet struct {
	Category Category
	Interval time.Duration
	Scrapers []*indexscraper.Scraper
}

// tickerService turns a ScraperSet into a suture.Service: a
// time.Ticker loop that runs every scraper in the set once per tick.
type tickerService struct {
	set    ScraperSet
	logger *log.Logger
}

func (t *tickerService) String() string { return "scraper-" + string(t.set.Category) }

// Serve implements suture.Service: run once immediately, then on
// every tick, until ctx is canceled.
func (t *tickerService) Serve(ctx context.Context) error {
	t.runOnce(ctx)

	ticker := time.NewTicker(t.set.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *tickerService) runOnce(ctx context.Context) {
	for _, s := range t.set.Scrapers {
		if err := s.Run(ctx); err != nil {
			t.logger.Error("scheduled scrape failed", "category", t.set.Category, "scraper", s.ID, "err", err)
		}
	}
}

// Scheduler supervises one tickerService per category under a single
// suture.Supervisor, matching SupervisorTree's single-layer use for a
// flat set of homogeneous background jobs.
type Scheduler struct {
	supervisor *suture.Supervisor
	logger     *log.Logger
}

// New builds a Scheduler and registers one ticking service per
// non-empty ScraperSet.
func New(logger *log.Logger, sets ...ScraperSet) *Scheduler {
	supervisor := suture.New("grobber-index-scheduler", suture.Spec{})
	s := &Scheduler{supervisor: supervisor, logger: logger}
	for _, set := range sets {
		if len(set.Scrapers) == 0 {
			continue
		}
		supervisor.Add(&tickerService{set: set, logger: logger})
	}
	return s
}

// NewDefault builds the standard three-cadence Scheduler (NEW daily,
// ONGOING biweekly, FULL every sixteen weeks), matching
// create_scheduler's three add_job calls.
func NewDefault(logger *log.Logger, newScrapers, ongoingScrapers, fullScrapers []*indexscraper.Scraper) *Scheduler {
	return New(logger,
		ScraperSet{Category: indexscraper.New, Interval: NewInterval, Scrapers: newScrapers},
		ScraperSet{Category: indexscraper.Ongoing, Interval: OngoingInterval, Scrapers: ongoingScrapers},
		ScraperSet{Category: indexscraper.Full, Interval: FullInterval, Scrapers: fullScrapers},
	)
}

// Serve blocks running the scheduler until ctx is canceled, matching
// start_scheduler's foreground use from cmd/grobber-index's "start"
// subcommand.
func (s *Scheduler) Serve(ctx context.Context) error {
	return s.supervisor.Serve(ctx)
}

// ServeBackground starts the scheduler in a background goroutine,
// returning a channel that receives its terminal error.
func (s *Scheduler) ServeBackground(ctx context.Context) <-chan error {
	return s.supervisor.ServeBackground(ctx)
}
