// Package browser is the headless-browser Source Runner: it bootstraps a
// shared Chromium session and walks a provider's paginated results, leaving
// the actual page-parsing rules (selectors, field extraction) to a
// pluggable PageExtractor. The two scraping-style provider types in the
// registry (provider-a, provider-b) both ride this session with
// provider-specific URL builders and extractors.
package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Session lazily bootstraps one shared headless Chromium instance, the
// same allocator-then-browser-context pattern used to render PDFs.
type Session struct {
	BrowserPath string
	Headless    bool
	Args        []string

	initOnce      sync.Once
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func (s *Session) ensureBrowser() error {
	s.initOnce.Do(func() {
		options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if s.BrowserPath != "" {
			options = append(options, chromedp.ExecPath(s.BrowserPath))
		}
		options = append(options, chromedp.Flag("headless", s.Headless))
		for _, arg := range s.Args {
			options = append(options, chromedp.Flag(arg, true))
		}

		s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), options...)
		s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)
	})
	if s.allocCtx == nil || s.browserCtx == nil {
		return errors.New("browser session allocator unavailable")
	}
	return nil
}

// Close releases the underlying Chromium process, if started.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

func (s *Session) newTab(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := s.ensureBrowser(); err != nil {
		return nil, nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)

	execCtx := tabCtx
	cancelReq := func() {}
	if ctx != nil {
		execCtx, cancelReq = context.WithCancel(tabCtx)
		go func() {
			select {
			case <-ctx.Done():
				cancelReq()
			case <-execCtx.Done():
			}
		}()
	}
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		execCtx, cancelTimeout = context.WithTimeout(execCtx, timeout)
		return execCtx, func() { cancelTimeout(); cancelReq(); cancelTab() }, nil
	}
	return execCtx, func() { cancelReq(); cancelTab() }, nil
}
