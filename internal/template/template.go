// Package template renders path and label templates against the closed
// variable set {year, month, month_name, quarter, date, invoice_id,
// source, amount, filename}, and provides the date-parsing and quarter
// derivation rules the coordinator needs to build that variable set from
// an Invoice.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/goodsign/monday"
)

// Variables is the closed set of names a template may reference, along
// with the human-readable description surfaced by admin tooling.
var Variables = map[string]string{
	"year":       "Invoice year (e.g., 2025)",
	"month":      "Invoice month (01-12)",
	"month_name": "Month name in French (Janvier, Février, ...)",
	"quarter":    "Quarter (Q1, Q2, Q3, Q4)",
	"date":       "Full date (YYYY-MM-DD)",
	"invoice_id": "Invoice identifier",
	"source":     "Source name",
	"amount":     "Invoice amount (EUR)",
	"filename":   "Original filename",
}

var placeholderRe = regexp.MustCompile(`\{\{?\s*(\w+)\s*\}?\}`)

// Context is the set of values a template may be rendered against.
type Context struct {
	Date      string
	InvoiceID string
	Source    string
	AmountEUR float64
	Filename  string
}

// Renderer renders path/label templates using pongo2, with French month
// names supplied by monday and the derived year/month/quarter/amount
// variables computed the way the original system computed them.
type Renderer struct{}

// NewRenderer creates a template Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Quarter returns the calendar quarter (Q1-Q4) for a two-digit month
// string, per the boundary rule months 1-3->Q1, 4-6->Q2, 7-9->Q3, 10-12->Q4.
func Quarter(month string) (string, error) {
	m, err := strconv.Atoi(month)
	if err != nil {
		return "", fmt.Errorf("invalid month %q: %w", month, err)
	}
	switch {
	case m <= 3:
		return "Q1", nil
	case m <= 6:
		return "Q2", nil
	case m <= 9:
		return "Q3", nil
	default:
		return "Q4", nil
	}
}

// FrenchMonth returns the French month name for a two-digit month string
// via monday's fr_FR locale, falling back to the numeric month if the
// input can't be parsed.
func FrenchMonth(month string) string {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return month
	}
	ref := time.Date(2000, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
	name := monday.Format(ref, "January", monday.LocaleFrFR)
	if name == "" {
		return month
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// ParseFromDate accepts the from_date trigger formats named in the
// coordinator's date-parsing rules: YYYY-MM-DD, YYYY-MM, YYYY/MM,
// MM/YYYY, "<FrenchMonth> YYYY", and bare YYYY. All non-YYYY-MM-DD forms
// normalize to the first day of the month. An empty string parses to the
// zero time (meaning "no lower bound").
func ParseFromDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006/01", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("01/2006", raw); err == nil {
		return t, nil
	}
	if year, month, ok := parseFrenchMonthYear(raw); ok {
		return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
	}
	if t, err := time.Parse("2006", raw); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized from_date format: %q", raw)
}

var frenchMonthsByName = map[string]int{
	"janvier": 1, "février": 2, "fevrier": 2, "mars": 3, "avril": 4,
	"mai": 5, "juin": 6, "juillet": 7, "août": 8, "aout": 8,
	"septembre": 9, "octobre": 10, "novembre": 11, "décembre": 12, "decembre": 12,
}

func parseFrenchMonthYear(raw string) (year, month int, ok bool) {
	parts := strings.Fields(raw)
	if len(parts) != 2 {
		return 0, 0, false
	}
	m, found := frenchMonthsByName[strings.ToLower(parts[0])]
	if !found {
		return 0, 0, false
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return y, m, true
}

// Validate rejects any template referencing a variable outside the
// closed set, before any rendering is attempted.
func (r *Renderer) Validate(tpl string) error {
	if strings.TrimSpace(tpl) == "" {
		return fmt.Errorf("template cannot be empty")
	}
	matches := placeholderRe.FindAllStringSubmatch(tpl, -1)
	if len(matches) == 0 {
		return fmt.Errorf("template must contain at least one variable")
	}
	for _, m := range matches {
		name := m[1]
		if _, ok := Variables[name]; !ok {
			return fmt.Errorf("unknown variable: %s", name)
		}
	}
	return nil
}

// Render renders tpl against ctx. Templates use pongo2 {{var}} syntax.
// Any variable outside the derived set is an error, never a silent
// pass-through.
func (r *Renderer) Render(tpl string, ctx Context) (string, error) {
	if err := r.Validate(tpl); err != nil {
		return "", err
	}

	vars := pongo2.Context{
		"invoice_id": ctx.InvoiceID,
		"source":     ctx.Source,
		"filename":   ctx.Filename,
		"amount":     fmt.Sprintf("%.2f", ctx.AmountEUR),
	}

	if len(ctx.Date) >= 7 {
		year := ctx.Date[0:4]
		month := ctx.Date[5:7]
		quarter, err := Quarter(month)
		if err != nil {
			return "", err
		}
		vars["date"] = ctx.Date
		vars["year"] = year
		vars["month"] = month
		vars["month_name"] = FrenchMonth(month)
		vars["quarter"] = quarter
	}

	template, err := pongo2.FromString(toPongoSyntax(tpl))
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	rendered, err := template.Execute(vars)
	if err != nil {
		return "", missingVariableError(err)
	}
	return rendered, nil
}

// toPongoSyntax rewrites legacy single-brace {var} placeholders to
// pongo2's {{ var }} syntax so existing templates authored against the
// original system's format.-style templates keep working.
func toPongoSyntax(tpl string) string {
	return placeholderRe.ReplaceAllStringFunc(tpl, func(match string) string {
		if strings.HasPrefix(match, "{{") {
			return match
		}
		name := strings.Trim(match, "{}")
		return "{{ " + name + " }}"
	})
}

func missingVariableError(err error) error {
	return fmt.Errorf("missing template variable: %w", err)
}
