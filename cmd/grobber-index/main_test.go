package main

import (
	"context"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxmedia/grobber/internal/indexscraper"
	"github.com/nyxmedia/grobber/internal/store"
)

func TestBuildScrapersWiresEveryCadence(t *testing.T) {
	mem := store.NewMemoryStore()
	newScrapers, ongoingScrapers, fullScrapers := buildScrapers(mem, log.Default())

	assert.NotEmpty(t, newScrapers)
	assert.NotEmpty(t, ongoingScrapers)
	assert.NotEmpty(t, fullScrapers)

	for _, s := range newScrapers {
		assert.Equal(t, indexscraper.New, s.Category)
	}
	for _, s := range ongoingScrapers {
		assert.Equal(t, indexscraper.Ongoing, s.Category)
	}
	for _, s := range fullScrapers {
		assert.Equal(t, indexscraper.Full, s.Category)
	}
}

func TestRunInitdbEnsuresIndexes(t *testing.T) {
	mem := store.NewMemoryStore()
	require.NotPanics(t, func() {
		runInitdb(context.Background(), log.Default(), mem)
	})
}
