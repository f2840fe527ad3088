package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "grobber.sqlite", cfg.StoreDSN)
	assert.Equal(t, 2*time.Second, cfg.ScrapeDelay)
	assert.Equal(t, 80, cfg.MaxPageIndex)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GROBBER_STORE_DSN", "file:test.sqlite")
	t.Setenv("GROBBER_SCRAPE_DELAY", "500ms")
	t.Setenv("GROBBER_MAX_PAGE_INDEX", "10")
	t.Setenv("GROBBER_HOST_URL", "https://example.com")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "file:test.sqlite", cfg.StoreDSN)
	assert.Equal(t, 500*time.Millisecond, cfg.ScrapeDelay)
	assert.Equal(t, 10, cfg.MaxPageIndex)
	assert.Equal(t, "https://example.com", cfg.HostURL)
}

func TestLoadRejectsInvalidScrapeDelay(t *testing.T) {
	t.Setenv("GROBBER_SCRAPE_DELAY", "not-a-duration")
	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidMaxPageIndex(t *testing.T) {
	t.Setenv("GROBBER_MAX_PAGE_INDEX", "not-a-number")
	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
