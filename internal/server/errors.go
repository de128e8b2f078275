package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
	"github.com/khoango6804/MLN-chatbot-debate/internal/model"
)

// writeEngineError maps engine and model errors to HTTP responses.
// Anything unrecognised is logged and reported as a 500 without detail.
func (h *Handlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *debate.ValidationError
		perr *debate.PreconditionError
		lerr *llm.Error
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, verr.Field+" "+verr.Message)
	case errors.Is(err, debate.ErrSessionNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "no debate session for this team")
	case errors.Is(err, debate.ErrDuplicateSession):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "team already has an active debate session")
	case errors.As(err, &perr):
		writeError(w, r, http.StatusConflict, model.ErrCodePreconditionFailed, perr.Message)
	case errors.Is(err, llm.ErrAllCredentialsExhausted), errors.Is(err, llm.ErrDisabled):
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeModelUnavailable, "language model unavailable")
	case errors.As(err, &lerr):
		writeError(w, r, http.StatusBadGateway, model.ErrCodeModelError, "language model request failed")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		w.WriteHeader(499)
	default:
		h.writeInternalError(w, r, "request failed", err)
	}
}

// writeInternalError logs err and writes a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "path", r.URL.Path, "error", err,
		"request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
}
