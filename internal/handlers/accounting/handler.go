package accounting

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// Config is the per-export JSON configuration accounting exports carry in
// core.Export.Configuration.
type Config struct {
	LabelTemplate string `json:"label_template"`
	Type          string `json:"type"` // EXPENSE, REVENUE, TRANSFER, ADVANCED
	Debit         string `json:"debit"`
	Credit        string `json:"credit"`
}

func (c Config) debitAccount() string  { return firstCode(c.Debit) }
func (c Config) creditAccount() string { return firstCode(c.Credit) }

// firstCode returns the first entry of a comma-or-newline-separated
// account code list, e.g. "601,602" or "601\n602".
func firstCode(codes string) string {
	fields := strings.FieldsFunc(codes, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSpace(fields[0])
}

// Handler posts invoices to a pluggable ledger, one transaction per invoice.
type Handler struct {
	Ledger   LedgerAPI
	Renderer core.TemplateRenderer
}

// NewHandler creates an accounting export Handler.
func NewHandler(ledger LedgerAPI, renderer core.TemplateRenderer) *Handler {
	return &Handler{Ledger: ledger, Renderer: renderer}
}

var _ core.ExportHandler = (*Handler)(nil)

func (h *Handler) Export(ctx context.Context, invoice core.Invoice, exp core.Export, renderCtx core.RenderContext) core.HandlerResult {
	if invoice.InvoiceID == "" || invoice.Date == "" || invoice.AmountEUR == nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "invoice is missing invoice_id, date, or amount_eur"}
	}
	if renderCtx.Date == "" {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "render context is missing date"}
	}

	cfg, err := parseConfig(exp)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: err.Error()}
	}
	if h.Ledger == nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "ledger API is not configured"}
	}

	label, err := h.Renderer.Render(cfg.LabelTemplate, renderCtx)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "render transaction label: " + err.Error()}
	}

	yearID, err := h.accountingYearFor(ctx, invoice.Date)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: err.Error()}
	}
	if yearID == 0 {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "no matching accounting year for invoice date " + invoice.Date}
	}

	isDup, err := h.isDuplicate(ctx, cfg, yearID, label, invoice.Date)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "duplicate check: " + err.Error()}
	}
	if isDup {
		return core.HandlerResult{Status: core.ExportDuplicateSkipped, ErrorMessage: "duplicate entry already exists"}
	}

	debit, credit := cfg.debitAccount(), cfg.creditAccount()
	if debit == "" || credit == "" {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "accounting export requires both debit and credit accounts"}
	}

	txn, err := h.Ledger.CreateTransaction(ctx, TransactionRequest{
		AccountingYearID: yearID,
		Label:            label,
		Date:             invoice.Date,
		Type:             cfg.Type,
		Amount:           *invoice.AmountEUR,
		Debit:            debit,
		Credit:           credit,
	})
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "create transaction: " + err.Error()}
	}

	return core.HandlerResult{Status: core.ExportSuccess, ExternalReference: strconv.Itoa(txn.ID)}
}

// accountingYearFor returns the ID of the accounting year whose start/end
// window (inclusive, both YYYY-MM-DD) contains date. ISO-8601 dates compare
// correctly as plain strings, so no time parsing is needed.
func (h *Handler) accountingYearFor(ctx context.Context, date string) (int, error) {
	years, err := h.Ledger.AccountingYears(ctx)
	if err != nil {
		return 0, err
	}
	for _, y := range years {
		if y.StartDate <= date && date <= y.EndDate {
			return y.ID, nil
		}
	}
	return 0, nil
}

// isDuplicate looks for an existing journal entry on the debit account with
// the same date and label, mirroring the natural key the original
// accounting integration used to avoid re-posting an invoice twice.
func (h *Handler) isDuplicate(ctx context.Context, cfg Config, yearID int, label, date string) (bool, error) {
	account := cfg.debitAccount()
	if account == "" {
		return false, nil
	}
	entries, err := h.Ledger.AccountJournal(ctx, yearID, account)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Date == date && e.Label == label {
			return true, nil
		}
	}
	return false, nil
}

func parseConfig(exp core.Export) (Config, error) {
	var cfg Config
	if exp.Configuration == nil {
		return cfg, core.NewError(core.KindValidation, "accounting export is missing configuration", nil)
	}
	encoded, err := json.Marshal(exp.Configuration)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return cfg, core.NewError(core.KindValidation, "accounting export configuration is invalid", err)
	}
	if cfg.LabelTemplate == "" {
		cfg.LabelTemplate = "Facture {invoice_id}"
	}
	if cfg.Type == "" {
		cfg.Type = "EXPENSE"
	}
	return cfg, nil
}
