// Package web holds the embedded landing page.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// IndexPage is the data rendered into the landing page.
type IndexPage struct {
	Model string
}

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}
