// Package grequest implements the Request abstraction: a single
// logical HTTP fetch with lazy, memoized derivations (text/json/dom/
// rendered page), staggered concurrent retries, proxy escalation, and
// URL-pool placeholder templating.
//
// Each derivation is single-flight and memoized by sync.Once: its first
// result, an error included, is what every later call returns, the Go
// rendering of a cached-property: no
// ad-hoc callables or coroutines, just an explicit task+channel
// topology.
package grequest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/nyxmedia/grobber/internal/grerr"
)

// DefaultUserAgent is the default outbound User-Agent header.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:64.0) Gecko/20100101 Firefox/64.0"

const (
	defaultGetTimeout  = 30 * time.Second
	defaultHeadTimeout = 10 * time.Second
	maxRetries         = 5
)

// staggerIntervals is the doubling-ish stagger schedule: 1s, 1.5s,
// 2.25s, ...
func staggerIntervals(n int) []time.Duration {
	out := make([]time.Duration, n)
	d := time.Second
	for i := range out {
		out[i] = d
		d = d * 3 / 2
	}
	return out
}

// Resolver resolves a {POOL} placeholder in a URL template to a
// concrete base URL. Implemented by internal/urlpool.Pool.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// State is the serializable form of a Request: url, params, headers,
// timeout and useProxy, the fields a resumed Request needs to replay
// its fetch. It has no options field.
type State struct {
	URL     string            `json:"url"`
	Params  map[string]string `json:"params,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
	UseProxy bool             `json:"use_proxy,omitempty"`
}

// Client is the process-wide collaborator a Request uses to perform
// fetches: an *http.Client wrapping a circuit breaker, a proxy URL,
// and a pool resolver for {POOL} placeholders.
type Client struct {
	direct    *http.Client
	proxied   *http.Client
	breakers  sync.Map // host -> *gobreaker.CircuitBreaker[*http.Response]
	resolver  Resolver
	limiter   *rate.Limiter
}

// NewClient builds a Client. proxyURL may be empty (proxy escalation
// then always fails and is skipped).
func NewClient(proxyURL string, resolver Resolver) (*Client, error) {
	c := &Client{
		direct:   &http.Client{},
		resolver: resolver,
		limiter:  rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse proxy url")
		}
		c.proxied = &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(u)}}
	}
	return c, nil
}

func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker[*http.Response] {
	if v, ok := c.breakers.Load(host); ok {
		return v.(*gobreaker.CircuitBreaker[*http.Response])
	}
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	actual, _ := c.breakers.LoadOrStore(host, cb)
	return actual.(*gobreaker.CircuitBreaker[*http.Response])
}

// Request is a single logical fetch with memoized derivations. Every
// derivation is single-flight via sync.Once, the explicit-memoization
// analogue of a cached property.
type Request struct {
	client *Client

	rawURL  string
	params  map[string]string
	headers map[string]string
	timeout time.Duration
	useProxy bool

	urlOnce sync.Once
	url     string
	urlErr  error

	fetchOnce   sync.Once
	body        []byte
	status      int
	fetchErr    error

	textOnce sync.Once
	text     string
	textErr  error

	jsonOnce sync.Once
	jsonErr  error
	jsonVal  map[string]interface{}

	domOnce sync.Once
	dom     *goquery.Document
	domErr  error

	pageMu sync.Mutex
	page   *pageScope
}

// New builds a Request bound to client. url may contain {POOL}
// placeholders resolved lazily by client.resolver on first fetch.
func New(client *Client, rawURL string, params, headers map[string]string, timeout time.Duration) *Request {
	return &Request{client: client, rawURL: rawURL, params: params, headers: headers, timeout: timeout}
}

// State returns the serializable form: only non-empty fields are
// included.
func (r *Request) State() State {
	return State{URL: r.rawURL, Params: r.params, Headers: r.headers, Timeout: r.timeout, UseProxy: r.useProxy}
}

// FromState rehydrates a Request with no cached derivations.
func FromState(client *Client, s State) *Request {
	req := New(client, s.URL, s.Params, s.Headers, s.Timeout)
	req.useProxy = s.UseProxy
	return req
}

// MarshalState JSON-encodes the State via goccy/go-json.
func (r *Request) MarshalState() ([]byte, error) {
	return json.Marshal(r.State())
}

func effectiveHeaders(custom map[string]string) map[string]string {
	h := map[string]string{"User-Agent": DefaultUserAgent}
	for k, v := range custom {
		h[k] = v
	}
	return h
}

// URL expands {POOL} placeholders (via client.resolver) and appends
// query params, memoized after the first call (an error included).
func (r *Request) URL(ctx context.Context) (string, error) {
	r.urlOnce.Do(func() {
		expanded := r.rawURL
		if r.client.resolver != nil && strings.Contains(expanded, "{") {
			expanded = r.expandPlaceholders(ctx, expanded)
			if r.urlErr != nil {
				return
			}
		}
		u, err := url.Parse(expanded)
		if err != nil {
			r.urlErr = errors.Wrap(err, "parse url")
			return
		}
		if len(r.params) > 0 {
			q := u.Query()
			for k, v := range r.params {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
		}
		r.url = u.String()
	})
	return r.url, r.urlErr
}

func (r *Request) expandPlaceholders(ctx context.Context, tmpl string) string {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		start := strings.IndexByte(tmpl[i:], '{')
		if start < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		start += i
		end := strings.IndexByte(tmpl[start:], '}')
		if end < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		end += start
		b.WriteString(tmpl[i:start])
		name := tmpl[start+1 : end]
		resolved, err := r.client.resolver.Resolve(ctx, name)
		if err != nil {
			r.urlErr = err
			return ""
		}
		b.WriteString(resolved)
		i = end + 1
	}
	return b.String()
}

// fetch performs the staggered-retry GET/HEAD: (a) staggered
// concurrent attempts racing until one resolves, (b) on connection
// error or {403,429,503,529}, force proxy and retry up to maxRetries,
// (c) on HEAD 405, downgrade to GET.
func (r *Request) fetch(ctx context.Context, method string) (*http.Response, error) {
	rawURL, err := r.URL(ctx)
	if err != nil {
		return nil, grerr.Wrap(grerr.FetchError, err, "resolve url")
	}
	host, err := url.Parse(rawURL)
	if err != nil {
		return nil, grerr.Wrap(grerr.FetchError, err, "parse resolved url")
	}

	attemptOnce := func(useProxy bool) (*http.Response, error) {
		cli := r.client.direct
		if useProxy && r.client.proxied != nil {
			cli = r.client.proxied
		}
		breaker := r.client.breakerFor(host.Host)
		return breaker.Execute(func() (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
			if err != nil {
				return nil, err
			}
			for k, v := range effectiveHeaders(r.headers) {
				req.Header.Set(k, v)
			}
			return cli.Do(req)
		})
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := r.raceStaggered(ctx, func() (*http.Response, error) {
			return attemptOnce(r.useProxy)
		})
		if err == nil {
			if method == http.MethodHead && resp.StatusCode == http.StatusMethodNotAllowed {
				return r.fetch(ctx, http.MethodGet)
			}
			if isRetryableStatus(resp.StatusCode) && attempt < maxRetries {
				_ = resp.Body.Close()
				r.useProxy = r.client.proxied != nil
				lastErr = grerr.New(grerr.FetchError, "retryable status")
				continue
			}
			return resp, nil
		}
		lastErr = err
		r.useProxy = r.client.proxied != nil
	}
	return nil, grerr.Wrap(grerr.FetchError, lastErr, "exhausted retries")
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable, 529:
		return true
	default:
		return false
	}
}

// raceStaggered launches attempt repeatedly on the stagger schedule
// until one succeeds or the schedule is exhausted; the first success
// wins and later attempts are abandoned (their results are discarded;
// Go's runtime reclaims the loser goroutines once they return).
func (r *Request) raceStaggered(ctx context.Context, attempt func() (*http.Response, error)) (*http.Response, error) {
	type result struct {
		resp *http.Response
		err  error
	}
	resultCh := make(chan result, len(staggerIntervals(3))+1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	launch := func() {
		go func() {
			resp, err := attempt()
			select {
			case resultCh <- result{resp, err}:
			case <-ctx.Done():
				if resp != nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	launch()

	intervals := staggerIntervals(3)
	var lastErr error
	idx := 0
	for {
		var timer <-chan time.Time
		if idx < len(intervals) {
			t := time.NewTimer(intervals[idx])
			defer t.Stop()
			timer = t.C
		}
		select {
		case res := <-resultCh:
			if res.err == nil {
				return res.resp, nil
			}
			lastErr = res.err
			if idx >= len(intervals) {
				return nil, lastErr
			}
		case <-timer:
			idx++
			launch()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Fetch performs the GET and memoizes the raw body and status.
func (r *Request) Fetch(ctx context.Context) ([]byte, int, error) {
	r.fetchOnce.Do(func() {
		timeout := r.timeout
		if timeout == 0 {
			timeout = defaultGetTimeout
		}
		fctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := r.fetch(fctx, http.MethodGet)
		if err != nil {
			r.fetchErr = err
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			r.fetchErr = grerr.Wrap(grerr.FetchError, err, "read body")
			return
		}
		r.body, r.status = b, resp.StatusCode
	})
	return r.body, r.status, r.fetchErr
}

// Head performs a HEAD request without memoization — callers such as
// the stream HEAD-probe helper need to fire one per candidate URL.
func (r *Request) Head(ctx context.Context) (*http.Response, error) {
	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultHeadTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.fetch(hctx, http.MethodHead)
}

// Raw performs a single, un-memoized fetch for an arbitrary method
// through the same staggered-retry/circuit-breaker/proxy-escalation
// path as Fetch and Head, returning the raw *http.Response. Callers
// that need the redirect-resolved final URL or a method other than
// GET/HEAD (such as a stream extractor's source-API POST) use this
// instead of Fetch/Head's narrower return shapes.
func (r *Request) Raw(ctx context.Context, method string) (*http.Response, error) {
	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultGetTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.fetch(rctx, method)
}

// Success reports whether Fetch would (or did) succeed; never
// returns an error.
func (r *Request) Success(ctx context.Context) bool {
	_, status, err := r.Fetch(ctx)
	return err == nil && status >= 200 && status < 400
}

// HeadSuccess performs Head and reports success without raising.
func (r *Request) HeadSuccess(ctx context.Context) bool {
	resp, err := r.Head(ctx)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// Text returns the fetched body decoded as UTF-8, stripping a BOM if
// present.
func (r *Request) Text(ctx context.Context) (string, error) {
	r.textOnce.Do(func() {
		body, _, err := r.Fetch(ctx)
		if err != nil {
			r.textErr = err
			return
		}
		r.text = strings.TrimPrefix(string(body), "\xef\xbb\xbf")
	})
	return r.text, r.textErr
}

// JSON parses Text as JSON via goccy/go-json.
func (r *Request) JSON(ctx context.Context) (map[string]interface{}, error) {
	r.jsonOnce.Do(func() {
		text, err := r.Text(ctx)
		if err != nil {
			r.jsonErr = err
			return
		}
		if err := json.Unmarshal([]byte(text), &r.jsonVal); err != nil {
			r.jsonErr = grerr.Wrap(grerr.ExtractError, err, "parse json")
		}
	})
	return r.jsonVal, r.jsonErr
}

// DOM parses Text as HTML via goquery.
func (r *Request) DOM(ctx context.Context) (*goquery.Document, error) {
	r.domOnce.Do(func() {
		text, err := r.Text(ctx)
		if err != nil {
			r.domErr = err
			return
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(text)))
		if err != nil {
			r.domErr = grerr.Wrap(grerr.ExtractError, err, "parse dom")
			return
		}
		r.dom = doc
	})
	return r.dom, r.domErr
}
