// Command grobber-index runs the periodic index scraper standalone:
// three subcommands (start/scrape/initdb) read off flag.Args() as
// idiomatic Go flag subcommands, one positional argument selecting
// the mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/nyxmedia/grobber/internal/config"
	"github.com/nyxmedia/grobber/internal/indexscraper"
	"github.com/nyxmedia/grobber/internal/schedule"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/util"
	"github.com/nyxmedia/grobber/internal/version"
)

func main() {
	if version.HasVersionArg() {
		version.ShowVersion("grobber-index")
		return
	}

	configPath := flag.String("config", "", "path to an optional config file (env vars override it)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: grobber-index [-config path] [-debug] <start|scrape|initdb> [categories...]")
		os.Exit(2)
	}

	util.IsDebug = *debug
	logger := util.InitLogger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", "err", err)
	}

	st, err := store.Open(cfg.StoreDSN)
	if err != nil {
		logger.Fatal("open store", "err", err)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "start":
		runStart(ctx, logger, st)
	case "scrape":
		runScrape(ctx, logger, st, args[1:])
	case "initdb":
		runInitdb(ctx, logger, st)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		os.Exit(2)
	}
}

func runInitdb(ctx context.Context, logger *log.Logger, st store.Store) {
	if err := st.EnsureIndexes(ctx); err != nil {
		logger.Fatal("ensure indexes", "err", err)
	}
	logger.Info("indexes ensured")
}

func runScrape(ctx context.Context, logger *log.Logger, st store.Store, categoryArgs []string) {
	newScrapers, ongoingScrapers, fullScrapers := buildScrapers(st, logger)
	byCategory := map[indexscraper.Category][]*indexscraper.Scraper{
		indexscraper.New:     newScrapers,
		indexscraper.Ongoing: ongoingScrapers,
		indexscraper.Full:    fullScrapers,
	}

	categories := categoryArgs
	if len(categories) == 0 {
		categories = []string{string(indexscraper.New), string(indexscraper.Ongoing), string(indexscraper.Full)}
	}

	for _, raw := range categories {
		cat := indexscraper.Category(strings.ToLower(raw))
		scrapers, ok := byCategory[cat]
		if !ok {
			logger.Fatal("unknown category", "category", raw)
		}
		for _, s := range scrapers {
			logger.Info("scraping", "id", s.ID, "category", cat)
			if err := s.Run(ctx); err != nil {
				logger.Error("scrape failed", "id", s.ID, "err", err)
			}
		}
	}
	logger.Info("done")
}

func runStart(ctx context.Context, logger *log.Logger, st store.Store) {
	newScrapers, ongoingScrapers, fullScrapers := buildScrapers(st, logger)
	sched := schedule.NewDefault(logger, newScrapers, ongoingScrapers, fullScrapers)
	if err := sched.Serve(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler exited", "err", err)
	}
	logger.Info("exited")
}

// buildScrapers wires every reference index scraper into its cadence
// category.
func buildScrapers(st store.Store, logger *log.Logger) (newScrapers, ongoingScrapers, fullScrapers []*indexscraper.Scraper) {
	withLogger := func(s *indexscraper.Scraper) *indexscraper.Scraper {
		s.Logger = logger
		return s
	}

	fullScrapers = []*indexscraper.Scraper{
		withLogger(indexscraper.NewScraper("gogoanime-full", indexscraper.Full, indexscraper.NewGogoAnimeFullExtractor(), st)),
		withLogger(indexscraper.NewScraper("nineanime-full", indexscraper.Full, indexscraper.NewNineAnimeFullExtractor(), st)),
		withLogger(indexscraper.NewScraper("animevibe-sub-full", indexscraper.Full, indexscraper.NewAnimeVibeSubExtractor(), st)),
		withLogger(indexscraper.NewScraper("animevibe-dub-full", indexscraper.Full, indexscraper.NewAnimeVibeDubExtractor(), st)),
	}

	newScrapers = []*indexscraper.Scraper{
		withLogger(indexscraper.NewScraper("gogoanime-new-sub", indexscraper.New, indexscraper.NewGogoAnimeNewSubExtractor(), st)),
		withLogger(indexscraper.NewScraper("gogoanime-new-dub", indexscraper.New, indexscraper.NewGogoAnimeNewDubExtractor(), st)),
		withLogger(indexscraper.NewScraper("nineanime-new", indexscraper.New, indexscraper.NewNineAnimeNewExtractor(), st)),
		withLogger(indexscraper.NewScraper("vidstreaming-new-sub", indexscraper.New, indexscraper.NewVidStreamingNewSubExtractor(), st)),
		withLogger(indexscraper.NewScraper("vidstreaming-new-dub", indexscraper.New, indexscraper.NewVidStreamingNewDubExtractor(), st)),
	}

	ongoingScrapers = []*indexscraper.Scraper{
		withLogger(indexscraper.NewScraper("vidstreaming-ongoing", indexscraper.Ongoing, indexscraper.NewVidStreamingOngoingExtractor(), st)),
	}

	return newScrapers, ongoingScrapers, fullScrapers
}
