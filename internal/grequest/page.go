package grequest

import (
	"context"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/nyxmedia/grobber/internal/grerr"
)

// Browser is the process-wide headless-browser collaborator. It is
// acquired per-request with a strict, mutex-guarded refcount so
// concurrent derivations of the same rendered page share one
// playwright.Page instance (the ref-counted scope decided in
// DESIGN.md).
type Browser struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	wsURL   string
}

// NewBrowser connects to an external headless-browser endpoint
// (CHROME_WS) if wsURL is non-empty, or launches a local Chromium
// instance lazily on first use otherwise.
func NewBrowser(wsURL string) *Browser {
	return &Browser{wsURL: wsURL}
}

func (b *Browser) ensure() (playwright.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, grerr.Wrap(grerr.FetchError, err, "start playwright")
	}
	b.pw = pw

	if b.wsURL != "" {
		br, err := pw.Chromium.Connect(b.wsURL)
		if err != nil {
			return nil, grerr.Wrap(grerr.FetchError, err, "connect chrome_ws")
		}
		b.browser = br
		return br, nil
	}
	br, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(true)})
	if err != nil {
		return nil, grerr.Wrap(grerr.FetchError, err, "launch chromium")
	}
	b.browser = br
	return br, nil
}

// Close tears down the browser and the playwright driver.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		_ = b.browser.Close()
		b.browser = nil
	}
	if b.pw != nil {
		err := b.pw.Stop()
		b.pw = nil
		return err
	}
	return nil
}

// pageScope is a strict refcounted wrapper around one playwright.Page,
// closed only when the last holder releases it.
type pageScope struct {
	mu   sync.Mutex
	page playwright.Page
	refs int
}

func (p *pageScope) acquire() playwright.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.page == nil {
		return nil
	}
	p.refs++
	return p.page
}

func (p *pageScope) release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs--
	if p.refs <= 0 {
		err := p.page.Close()
		p.page = nil
		return err
	}
	return nil
}

// RenderedPage navigates to the Request's URL in a shared, refcounted
// headless page and returns its fully rendered HTML. The caller must
// invoke the returned release func exactly once when done with the
// html (e.g. after extracting what it needs from it).
func (r *Request) RenderedPage(ctx context.Context, browser *Browser) (html string, release func() error, err error) {
	rawURL, err := r.URL(ctx)
	if err != nil {
		return "", nil, err
	}

	r.pageMu.Lock()
	var page playwright.Page
	scope := r.page
	if scope != nil {
		page = scope.acquire()
	}
	if page == nil {
		br, berr := browser.ensure()
		if berr != nil {
			r.pageMu.Unlock()
			return "", nil, berr
		}
		newPage, perr := br.NewPage()
		if perr != nil {
			r.pageMu.Unlock()
			return "", nil, grerr.Wrap(grerr.FetchError, perr, "new page")
		}
		if _, gerr := newPage.Goto(rawURL); gerr != nil {
			r.pageMu.Unlock()
			return "", nil, grerr.Wrap(grerr.FetchError, gerr, "goto")
		}
		page = newPage
		scope = &pageScope{page: page, refs: 1}
		r.page = scope
	}
	r.pageMu.Unlock()

	content, err := page.Content()
	if err != nil {
		_ = scope.release()
		return "", nil, grerr.Wrap(grerr.FetchError, err, "page content")
	}
	return content, scope.release, nil
}
