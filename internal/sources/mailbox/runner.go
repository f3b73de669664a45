package mailbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// Config is the mailbox-specific shape of Source.ExtractionParams.
type Config struct {
	FromAddress      string `json:"from_address"`
	AttachmentSuffix string `json:"attachment_suffix"` // e.g. ".pdf"
}

// Runner is a Source Runner that pulls invoices out of email attachments.
type Runner struct {
	Client     MailboxClient
	StagingDir string
}

// NewRunner creates a mailbox Runner.
func NewRunner(client MailboxClient, stagingDir string) *Runner {
	return &Runner{Client: client, StagingDir: stagingDir}
}

var _ core.SourceRunner = (*Runner)(nil)

func (r *Runner) Run(ctx context.Context, source core.Source, fromDate time.Time, maxResults int) ([]core.Invoice, error) {
	if r.Client == nil {
		return nil, core.NewError(core.KindInternal, "mailbox client is not configured", nil)
	}
	cfg := parseConfig(source)

	uids, err := r.Client.Search(ctx, fromDate, cfg.FromAddress)
	if err != nil {
		return nil, core.NewError(core.KindSourceFailure, "search mailbox", err)
	}

	var invoices []core.Invoice
	for _, uid := range uids {
		msg, err := r.Client.Fetch(ctx, uid)
		if err != nil {
			return invoices, core.NewError(core.KindSourceFailure, "fetch message "+uid, err)
		}

		for _, att := range msg.Attachments {
			if cfg.AttachmentSuffix != "" && !strings.HasSuffix(strings.ToLower(att.Filename), strings.ToLower(cfg.AttachmentSuffix)) {
				continue
			}

			stagedPath, err := r.stage(uid, att)
			if err != nil {
				return invoices, core.NewError(core.KindSourceFailure, "stage attachment", err)
			}

			invoices = append(invoices, core.Invoice{
				Date:      msg.Date.Format("2006-01-02"),
				InvoiceID: invoiceIDFromFilename(att.Filename),
				FilePath:  stagedPath,
				Source:    string(source.Type),
			})

			if maxResults > 0 && len(invoices) >= maxResults {
				return invoices, nil
			}
		}
	}

	return invoices, nil
}

// stage writes an attachment to StagingDir so downstream export handlers,
// which read Invoice.FilePath from local disk, can find it.
func (r *Runner) stage(uid string, att Attachment) (string, error) {
	if r.StagingDir == "" {
		return "", core.NewError(core.KindValidation, "mailbox runner has no staging directory configured", nil)
	}
	if err := os.MkdirAll(r.StagingDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s", uid, filepath.Base(att.Filename))
	dest := filepath.Join(r.StagingDir, name)
	if err := os.WriteFile(dest, att.Content, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

// invoiceIDFromFilename derives a stable-enough invoice identifier from an
// attachment name. Providers that embed a real invoice number in the
// filename or email body are a documented extraction-rule collaborator;
// this fallback never blocks the pipeline on missing business metadata.
func invoiceIDFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseConfig(source core.Source) Config {
	var cfg Config
	if source.ExtractionParams == nil {
		return cfg
	}
	if v, ok := source.ExtractionParams["from_address"].(string); ok {
		cfg.FromAddress = v
	}
	if v, ok := source.ExtractionParams["attachment_suffix"].(string); ok {
		cfg.AttachmentSuffix = v
	}
	return cfg
}
