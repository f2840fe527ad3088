// Package urlpool picks one working base URL from a mirror list and
// persists the choice with a TTL, racing HEAD probes across
// candidates and promoting the winner.
//
// The hot value is cached in-process with jellydator/ttlcache/v3,
// backed by internal/store for durability across restarts.
package urlpool

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nyxmedia/grobber/internal/grequest"
	"github.com/nyxmedia/grobber/internal/grerr"
	"github.com/nyxmedia/grobber/internal/store"
)

const defaultTTL = 3600 * time.Second

// Pool picks a working base URL among named mirror candidates.
type Pool struct {
	name       string
	urls       []string
	stripSlash bool
	ttl        time.Duration

	store  store.Store
	client *grequest.Client

	mu    sync.Mutex
	cache *ttlcache.Cache[string, string]
}

// New builds a Pool over its own copy of urls; the winning URL is
// moved to the front of that copy after each probe.
func New(name string, urls []string, st store.Store, client *grequest.Client) *Pool {
	cache := ttlcache.New[string, string](ttlcache.WithTTL[string, string](defaultTTL))
	go cache.Start()
	return &Pool{
		name:       name,
		urls:       append([]string(nil), urls...),
		stripSlash: true,
		ttl:        defaultTTL,
		store:      st,
		client:     client,
		cache:      cache,
	}
}

const collection = "url_pools"

// Resolve returns the current working base URL, refreshing it from
// the store or by racing HEAD probes if expired. Satisfies
// grequest.Resolver so a Request's {POOL} placeholder can name a
// Pool directly.
func (p *Pool) Resolve(ctx context.Context, name string) (string, error) {
	return p.url(ctx)
}

func (p *Pool) url(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if item := p.cache.Get(p.name); item != nil {
		return p.prepare(item.Value()), nil
	}

	if doc, err := p.store.Get(ctx, collection, p.name); err == nil && doc != nil {
		if url, ok := doc["url"].(string); ok {
			if exp, ok := doc["expires_at"].(float64); ok && float64(time.Now().Unix()) < exp {
				p.cache.Set(p.name, url, time.Until(time.Unix(int64(exp), 0)))
				return p.prepare(url), nil
			}
		}
	}

	winner, err := p.probe(ctx)
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(p.ttl)
	p.cache.Set(p.name, winner, p.ttl)
	_ = p.store.Upsert(ctx, collection, store.Document{
		"uid":        p.name,
		"url":        winner,
		"expires_at": float64(expiresAt.Unix()),
	})
	return p.prepare(winner), nil
}

func (p *Pool) prepare(url string) string {
	if p.stripSlash {
		return strings.TrimRight(url, "/")
	}
	return url
}

// probe races a HEAD to every candidate through internal/grequest, so
// a flaky mirror gets the same staggered-retry/circuit-breaker/proxy-
// escalation treatment as every other HTTP call in the module; the
// first success wins and is moved to the front of p.urls.
func (p *Pool) probe(ctx context.Context) (string, error) {
	type result struct {
		idx int
		url string
	}
	resultCh := make(chan result, len(p.urls))
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for i, candidate := range p.urls {
		go func(i int, candidate string) {
			req := grequest.New(p.client, candidate, nil, nil, 10*time.Second)
			if !req.HeadSuccess(pctx) {
				return
			}
			select {
			case resultCh <- result{i, candidate}:
			case <-pctx.Done():
			}
		}(i, candidate)
	}

	select {
	case res := <-resultCh:
		p.urls = append([]string{res.url}, append(p.urls[:res.idx], p.urls[res.idx+1:]...)...)
		return res.url, nil
	case <-pctx.Done():
		return "", grerr.New(grerr.FetchError, "no working url found for pool "+p.name)
	}
}
