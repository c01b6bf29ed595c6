package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/fleetify/api/internal/httpx"
	"github.com/fleetify/api/internal/importer"
)

func (s *Server) GetImportTemplate(w http.ResponseWriter, r *http.Request, kind string) {
	k, ok := s.Importer.Catalog().Kind(kind)
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "template_not_found", "Import template not found", nil)
		return
	}
	format := r.URL.Query().Get("format")
	file, err := importer.TemplateFor(k, format)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_format", err.Error(), nil)
		return
	}

	var buf bytes.Buffer
	if err := importer.WriteTemplate(&buf, k, format); err != nil {
		httpx.WriteInternal(w, r, s.Logger, "import_template_failed", "Failed to build template", err, "kind", kind)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	_, _ = w.Write(buf.Bytes())
}
