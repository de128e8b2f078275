package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/khoango6804/MLN-chatbot-debate/internal/export"
	"github.com/khoango6804/MLN-chatbot-debate/internal/model"
)

// HandleExportDebate handles GET /v1/debates/{team_id}/export.
// The format query parameter selects md (default), txt or json. Works for
// active sessions and for the team's latest archived session.
func (h *Handlers) HandleExportDebate(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "format must be one of md, txt, json")
		return
	}

	snap, err := h.engine.Snapshot(r.Context(), r.PathValue("team_id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	report := export.Build(snap, h.rubric, h.clock.Now())

	// Render into a buffer so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := export.Render(&buf, report, format); err != nil {
		h.writeInternalError(w, r, "export: render", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(report, format)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
