package clouddrive

import (
	"context"
	"encoding/json"
	"os"
	"path"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// Config is the per-export JSON configuration cloud-drive exports carry in
// core.Export.Configuration.
type Config struct {
	ParentFolderID string   `json:"parent_folder_id"`
	PathTemplate   string   `json:"path_template"`
	CreateFolders  bool     `json:"create_folders"`
	ShareWith      []string `json:"share_with"`
}

// Handler uploads invoices to a cloud-drive folder tree.
type Handler struct {
	Drive    DriveAPI
	Renderer core.TemplateRenderer
	ReadFile func(path string) ([]byte, error)
}

// NewHandler creates a cloud-drive export Handler.
func NewHandler(drive DriveAPI, renderer core.TemplateRenderer) *Handler {
	return &Handler{Drive: drive, Renderer: renderer, ReadFile: os.ReadFile}
}

var _ core.ExportHandler = (*Handler)(nil)

func (h *Handler) Export(ctx context.Context, invoice core.Invoice, exp core.Export, renderCtx core.RenderContext) core.HandlerResult {
	cfg, err := parseConfig(exp)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: err.Error()}
	}
	if h.Drive == nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "drive API is not configured"}
	}
	if invoice.FilePath == "" {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "invoice has no local file to upload"}
	}

	renderedPath, err := h.Renderer.Render(cfg.PathTemplate, renderCtx)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "render destination path: " + err.Error()}
	}

	dir, name := path.Split(path.Clean(renderedPath))
	if name == "" || name == "." {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "rendered destination path has no filename"}
	}

	folderID := cfg.ParentFolderID
	if cfg.CreateFolders && dir != "" {
		folderID, err = h.Drive.EnsureFolder(ctx, cfg.ParentFolderID, path.Clean(dir))
		if err != nil {
			return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "ensure folder: " + err.Error()}
		}
	}

	exists, err := h.Drive.Exists(ctx, folderID, name)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "duplicate check: " + err.Error()}
	}
	if exists {
		return core.HandlerResult{Status: core.ExportDuplicateSkipped, ExternalReference: renderedPath}
	}

	content, err := h.ReadFile(invoice.FilePath)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "read source file: " + err.Error()}
	}

	fileID, err := h.Drive.Upload(ctx, folderID, name, content)
	if err != nil {
		return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "upload: " + err.Error()}
	}

	if len(cfg.ShareWith) > 0 {
		if err := h.Drive.Share(ctx, folderID, cfg.ShareWith); err != nil {
			return core.HandlerResult{Status: core.ExportFailed, ErrorMessage: "share folder: " + err.Error()}
		}
	}

	return core.HandlerResult{Status: core.ExportSuccess, ExternalReference: fileID}
}

func parseConfig(exp core.Export) (Config, error) {
	var cfg Config
	if exp.Configuration == nil {
		return cfg, core.NewError(core.KindValidation, "cloud-drive export is missing configuration", nil)
	}
	encoded, err := json.Marshal(exp.Configuration)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return cfg, core.NewError(core.KindValidation, "cloud-drive export configuration is invalid", err)
	}
	if cfg.PathTemplate == "" {
		return cfg, core.NewError(core.KindValidation, "cloud-drive export requires a path_template", nil)
	}
	return cfg, nil
}
