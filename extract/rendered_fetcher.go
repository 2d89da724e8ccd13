package extract

import (
	"log"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodRenderedFetcher is the headless-Chrome implementation of RenderedFetcher
// (spec.md §9), grounded on the teacher's scraper/price_scraper.go launcher
// setup (system Chromium in Docker, auto-detect locally) but stripped of the
// OCR-service wiring since the spec's only fallback beyond rendering is the
// LLM-based AiExtractor.
type RodRenderedFetcher struct {
	browser *rod.Browser
}

func NewRodRenderedFetcher() (*RodRenderedFetcher, error) {
	l := launcher.New().Headless(true).NoSandbox(true).Leakless(false)
	if _, err := os.Stat("/usr/bin/chromium-browser"); err == nil {
		l = l.Bin("/usr/bin/chromium-browser")
		log.Printf("rendered_fetcher: using system Chromium")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, err
	}

	return &RodRenderedFetcher{browser: browser}, nil
}

func (f *RodRenderedFetcher) Close() error {
	return f.browser.Close()
}

// Fetch navigates to url, waits for network idle (best-effort), and returns
// the rendered HTML and the final URL after any client-side redirects
// (spec.md §5: goto uses timeoutMS, networkidle wait uses timeoutMS/2 and
// swallows its own timeout).
func (f *RodRenderedFetcher) Fetch(targetURL string, timeoutMS int) (html string, finalURL string, ok bool) {
	page, err := f.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", "", false
	}
	defer page.Close()

	page = page.Timeout(time.Duration(timeoutMS) * time.Millisecond)

	if err := page.Navigate(targetURL); err != nil {
		return "", "", false
	}

	// networkidle is best-effort: its own timeout is swallowed, not surfaced
	// (spec.md §5).
	_ = page.Timeout(time.Duration(timeoutMS/2) * time.Millisecond).WaitStable(300 * time.Millisecond)

	info, err := page.Info()
	if err != nil {
		return "", "", false
	}

	body, err := page.HTML()
	if err != nil {
		return "", "", false
	}

	return body, info.URL, true
}
