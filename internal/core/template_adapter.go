package core

import "github.com/fakturenn/invoicebridge/internal/template"

// templateAdapter adapts internal/template.Renderer to the narrower
// TemplateRenderer contract the coordinator and handlers depend on,
// keeping handler code from importing the rendering engine directly.
type templateAdapter struct {
	renderer *template.Renderer
}

// NewTemplateRenderer wraps a template.Renderer as a core.TemplateRenderer.
func NewTemplateRenderer(renderer *template.Renderer) TemplateRenderer {
	if renderer == nil {
		renderer = template.NewRenderer()
	}
	return &templateAdapter{renderer: renderer}
}

func (a *templateAdapter) Render(tpl string, rc RenderContext) (string, error) {
	return a.renderer.Render(tpl, template.Context{
		Date:      rc.Date,
		InvoiceID: rc.InvoiceID,
		Source:    rc.Source,
		AmountEUR: rc.AmountEUR,
		Filename:  rc.Filename,
	})
}

func (a *templateAdapter) Validate(tpl string) error {
	return a.renderer.Validate(tpl)
}
