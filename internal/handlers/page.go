package handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"

	"chat-relay-backend/internal/web"
)

type PageHandler struct {
	tmpl  *template.Template
	model string
	log   logrus.FieldLogger
}

func NewPageHandler(tmpl *template.Template, model string, logger logrus.FieldLogger) *PageHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PageHandler{tmpl: tmpl, model: model, log: logger}
}

func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	// Nothing reaches w until rendering succeeds.
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "index.html", web.IndexPage{Model: h.model}); err != nil {
		h.log.WithError(err).Error("failed to render landing page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
