// Package filesystem is the local-disk export handler: it copies an
// invoice's source file to a rendered destination path under a configured
// root, atomically and only once per natural key.
package filesystem

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// Config is the per-export JSON configuration filesystem exports carry in
// core.Export.Configuration.
type Config struct {
	Root         string `json:"root"`
	PathTemplate string `json:"path_template"`
}

// Handler writes invoices to a local directory tree, deriving the
// destination from the export's path template.
type Handler struct {
	Renderer core.TemplateRenderer
	Guard    core.DuplicateGuard
	Open     func(path string) (io.ReadCloser, error)
}

// NewHandler creates a filesystem export Handler.
func NewHandler(renderer core.TemplateRenderer) *Handler {
	return &Handler{
		Renderer: renderer,
		Guard:    DuplicateGuardFunc,
		Open:     func(p string) (io.ReadCloser, error) { return os.Open(p) },
	}
}

var _ core.ExportHandler = (*Handler)(nil)

func (h *Handler) Export(ctx context.Context, invoice core.Invoice, exp core.Export, renderCtx core.RenderContext) core.HandlerResult {
	cfg, err := parseConfig(exp)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: err.Error()}
	}

	relPath, err := h.Renderer.Render(cfg.PathTemplate, renderCtx)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "render destination path: " + err.Error()}
	}

	destPath, err := resolvePath(cfg.Root, relPath)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: err.Error()}
	}

	isDup, err := h.Guard.IsDuplicate(ctx, exp, renderCtx)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "duplicate check: " + err.Error()}
	}
	if isDup {
		return core.HandlerResult{Status: core.ExportDuplicateSkipped, ExternalReference: destPath}
	}
	if _, err := os.Stat(destPath); err == nil {
		return core.HandlerResult{Status: core.ExportDuplicateSkipped, ExternalReference: destPath}
	}

	if invoice.FilePath == "" {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "invoice has no local file to export"}
	}

	src, err := h.Open(invoice.FilePath)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "open source file: " + err.Error()}
	}
	defer src.Close()

	if err := writeAtomic(destPath, src); err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "write destination: " + err.Error()}
	}

	return core.HandlerResult{Status: core.ExportSuccess, ExternalReference: destPath}
}

// writeAtomic copies src into a temp file beside the destination, fsyncs
// it, then renames it into place — the copy is visible at destPath all at
// once or not at all, even if the process dies mid-write.
func writeAtomic(destPath string, src io.Reader) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".invoicebridge-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destPath)
}

// resolvePath joins root and a rendered relative path, rejecting any result
// that escapes root via ".." segments or an absolute override.
func resolvePath(root, relPath string) (string, error) {
	if root == "" {
		return "", core.NewError(core.KindValidation, "filesystem export root is required", nil)
	}
	rel := path.Clean(filepath.ToSlash(relPath))
	if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", core.NewError(core.KindValidation, "rendered destination path escapes export root", nil)
	}
	if rel == "" || rel == "." {
		return "", core.NewError(core.KindValidation, "rendered destination path is empty", nil)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(absRoot, filepath.FromSlash(rel))
	if target != absRoot && !strings.HasPrefix(target, absRoot+string(os.PathSeparator)) {
		return "", core.NewError(core.KindValidation, "rendered destination path escapes export root", nil)
	}
	return target, nil
}

func parseConfig(exp core.Export) (Config, error) {
	var cfg Config
	if exp.Configuration == nil {
		return cfg, core.NewError(core.KindValidation, "filesystem export is missing configuration", nil)
	}
	encoded, err := json.Marshal(exp.Configuration)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return cfg, core.NewError(core.KindValidation, "filesystem export configuration is invalid", err)
	}
	if cfg.Root == "" {
		return cfg, core.NewError(core.KindValidation, "filesystem export requires a root", nil)
	}
	if cfg.PathTemplate == "" {
		return cfg, core.NewError(core.KindValidation, "filesystem export requires a path_template", nil)
	}
	return cfg, nil
}

// DuplicateGuardFunc is the default guard: filesystem exports rely on the
// plain existence check in Export rather than a separate guard call, since
// the rendered path itself is the natural key.
var DuplicateGuardFunc = core.DuplicateGuardFunc(func(ctx context.Context, exp core.Export, renderCtx core.RenderContext) (bool, error) {
	return false, nil
})
