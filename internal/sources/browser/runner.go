package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// PageExtractor parses one rendered results page into invoice records and
// reports whether a further page is available. The concrete DOM selectors
// and pagination control are provider-specific business logic, left as a
// documented external collaborator; Runner itself only owns session
// bootstrap, navigation, and the pagination loop.
type PageExtractor func(ctx context.Context, source core.Source) (invoices []core.Invoice, hasNextPage bool, err error)

// URLBuilder resolves the results page URL for a provider, given the
// source's stored extraction parameters and the job's from-date cutoff.
type URLBuilder func(source core.Source, fromDate time.Time, page int) (string, error)

// Runner is a Source Runner for a headless-browser-scraped provider.
type Runner struct {
	Session    *Session
	TabTimeout time.Duration
	MaxPages   int
	BuildURL   URLBuilder
	Extract    PageExtractor
}

// NewRunner creates a Runner sharing session across every invocation.
func NewRunner(session *Session, buildURL URLBuilder, extract PageExtractor) *Runner {
	return &Runner{Session: session, TabTimeout: 2 * time.Minute, MaxPages: 50, BuildURL: buildURL, Extract: extract}
}

var _ core.SourceRunner = (*Runner)(nil)

func (r *Runner) Run(ctx context.Context, source core.Source, fromDate time.Time, maxResults int) ([]core.Invoice, error) {
	if r.Session == nil {
		return nil, core.NewError(core.KindInternal, "browser session is not configured", nil)
	}
	if r.BuildURL == nil || r.Extract == nil {
		return nil, core.NewError(core.KindInternal, "browser runner has no URL builder or page extractor wired", nil)
	}

	tabCtx, cancel, err := r.Session.newTab(ctx, r.TabTimeout)
	if err != nil {
		return nil, core.NewError(core.KindSourceFailure, "browser session bootstrap failed", err)
	}
	defer cancel()

	var invoices []core.Invoice
	for page := 1; page <= r.MaxPages; page++ {
		url, err := r.BuildURL(source, fromDate, page)
		if err != nil {
			return invoices, core.NewError(core.KindSourceFailure, "build results page URL", err)
		}

		if err := chromedp.Run(tabCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
			return invoices, core.NewError(core.KindSourceFailure, "navigate to results page", err)
		}

		pageInvoices, hasNext, err := r.Extract(tabCtx, source)
		if err != nil {
			return invoices, core.NewError(core.KindSourceFailure, "extract results page", err)
		}
		invoices = append(invoices, pageInvoices...)

		if maxResults > 0 && len(invoices) >= maxResults {
			invoices = invoices[:maxResults]
			break
		}
		if !hasNext {
			break
		}
	}

	return invoices, nil
}
