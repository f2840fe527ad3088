// Package grobber is the public facade over the aggregation engine:
// one entry point hiding the internal/query, internal/search,
// internal/sources, internal/streams wiring behind a handful of
// request-shaped methods, one per HTTP route cmd/grobber-server
// exposes.
package grobber

import (
	"context"

	"github.com/nyxmedia/grobber/internal/query"
	"github.com/nyxmedia/grobber/internal/resolve"
	"github.com/nyxmedia/grobber/internal/search"
	"github.com/nyxmedia/grobber/internal/sources"
	"github.com/nyxmedia/grobber/internal/store"
	"github.com/nyxmedia/grobber/internal/streams"
	"github.com/nyxmedia/grobber/pkg/grobber/types"
)

// Params is the raw, unvalidated request shape every lookup method
// takes, re-exported from internal/query so callers never need to
// import an internal package.
type Params = query.Params

// Client is the main client for querying the anime aggregation
// engine, wrapping the document store, source registry, and stream
// registry behind the Query layer.
type Client struct {
	layer *query.Layer
}

// NewClient builds a Client against an already-open store and the
// process-global source/stream registries (internal/sources.Default,
// internal/streams.Default), matching pkg/goanime.NewClient's
// "all available scrapers" default wiring.
func NewClient(st store.Store) *Client {
	return NewClientWithRegistries(st, sources.Default, streams.Default)
}

// NewClientWithRegistries builds a Client against explicit registries,
// for callers (tests, cmd/grobber-index) that need isolated registries
// instead of the process-global defaults.
func NewClientWithRegistries(st store.Store, sourceRegistry *sources.Registry, streamRegistry *streams.Registry) *Client {
	resolver := resolve.New(streamRegistry)
	return &Client{layer: query.New(st, sourceRegistry, resolver)}
}

// Search ranks anime across every registered source, matching
// `GET /anime/search`.
func (c *Client) Search(ctx context.Context, anime, language string, dubbed bool, numResults int, group bool) ([]types.SearchResult, error) {
	opts, err := search.NewOptions(anime, language, dubbed, numResults, group)
	if err != nil {
		return nil, err
	}
	results, err := c.layer.Search(ctx, opts)
	if err != nil {
		return nil, err
	}
	return types.FromSearchResults(results), nil
}

// Anime resolves one anime document by uid or by title/language/
// dubbed, matching `GET /anime/?uid=` or `?anime=&language=&dubbed=`.
func (c *Client) Anime(ctx context.Context, params Params) (types.Anime, error) {
	resolved, err := c.resolve(ctx, params)
	if err != nil {
		return types.Anime{}, err
	}
	return types.FromResolved(resolved), nil
}

// Episode resolves one episode document, matching
// `GET /anime/episode/?…&episode=N`.
func (c *Client) Episode(ctx context.Context, params Params, episodeIndex int) (types.Episode, error) {
	resolved, err := c.resolve(ctx, params)
	if err != nil {
		return types.Episode{}, err
	}
	ep, err := c.layer.GetEpisode(ctx, resolved, episodeIndex)
	if err != nil {
		return types.Episode{}, err
	}
	return types.FromEpisode(ep), nil
}

// Stream resolves one stream document, matching
// `GET /anime/stream/?…&episode=N&stream=K`.
func (c *Client) Stream(ctx context.Context, params Params, episodeIndex, streamIndex int) (types.Stream, error) {
	resolved, err := c.resolve(ctx, params)
	if err != nil {
		return types.Stream{}, err
	}
	s, err := c.layer.GetStream(ctx, resolved, episodeIndex, streamIndex)
	if err != nil {
		return types.Stream{}, err
	}
	return types.FromStream(s), nil
}

// Source returns the raw redirect target at sourceIndex, matching
// `GET /anime/source/{uid}/{episode}`'s 302-to-a-working-link.
func (c *Client) Source(ctx context.Context, params Params, episodeIndex, sourceIndex int) (string, error) {
	resolved, err := c.resolve(ctx, params)
	if err != nil {
		return "", err
	}
	return c.layer.GetSource(ctx, resolved, episodeIndex, sourceIndex)
}

// Poster returns the first non-empty poster across an episode's
// streams, matching `GET /anime/poster/{uid}/{episode}`'s
// 302-to-a-poster.
func (c *Client) Poster(ctx context.Context, params Params, episodeIndex int) (string, error) {
	resolved, err := c.resolve(ctx, params)
	if err != nil {
		return "", err
	}
	ep, err := c.layer.GetEpisode(ctx, resolved, episodeIndex)
	if err != nil {
		return "", err
	}
	return c.layer.Resolver.Poster(ctx, ep), nil
}

func (c *Client) resolve(ctx context.Context, params Params) (query.Resolved, error) {
	q, err := query.Build(params)
	if err != nil {
		return query.Resolved{}, err
	}
	return c.layer.Resolve(ctx, q)
}
