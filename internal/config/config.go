// Package config loads process configuration by composing koanf
// providers: a file layer with environment overrides.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Config holds every recognized runtime option for the engine.
type Config struct {
	StoreDSN     string        // STORE_DSN: sqlite DSN backing the document store
	ProxyURL     string        // PROXY_URL: outbound proxy for proxied fetches
	ChromeWS     string        // CHROME_WS: optional external headless-browser endpoint
	HostURL      string        // HOST_URL: public base URL used in redirects
	ScrapeDelay  time.Duration // SCRAPE_DELAY: pause between index scraper pages
	MaxPageIndex int           // MAX_PAGE_INDEX: MaxPageIndex mixin ceiling
}

const envPrefix = "GROBBER_"

// Load reads an optional config file at path (skipped only when path
// is empty; a path that cannot be loaded is an error) then overlays environment variables prefixed with
// GROBBER_, mirroring the file-then-env precedence used across the
// retrieval pack.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), nil); err != nil {
			return Config{}, errors.Wrap(err, "load config file")
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return Config{}, errors.Wrap(err, "load env config")
	}

	cfg := Config{
		StoreDSN:     k.String("store_dsn"),
		ProxyURL:     k.String("proxy_url"),
		ChromeWS:     k.String("chrome_ws"),
		HostURL:      k.String("host_url"),
		ScrapeDelay:  2 * time.Second,
		MaxPageIndex: 80,
	}
	if cfg.StoreDSN == "" {
		cfg.StoreDSN = "grobber.sqlite"
	}
	if v := k.String("scrape_delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse SCRAPE_DELAY %q", v)
		}
		cfg.ScrapeDelay = d
	}
	if v := k.String("max_page_index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse MAX_PAGE_INDEX %q", v)
		}
		cfg.MaxPageIndex = n
	}
	return cfg, nil
}
