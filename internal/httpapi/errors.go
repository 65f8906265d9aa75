package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/dispatch"
	"github.com/shalom-dev-bot/astremina/internal/ingest"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, e)
}

// writeRunError maps ingest and store errors onto status codes.
func writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ingest.ErrNotRunning):
		WriteError(w, r, http.StatusNotFound, "not_running", err.Error())
	case errors.Is(err, ingest.ErrSourceInactive):
		WriteError(w, r, http.StatusConflict, "source_inactive", err.Error())
	case errors.Is(err, dispatch.ErrAlreadyRunning):
		WriteError(w, r, http.StatusConflict, "already_running", err.Error())
	case errors.Is(err, dispatch.ErrQueueFull), errors.Is(err, dispatch.ErrStopped):
		WriteError(w, r, http.StatusServiceUnavailable, "queue_full", err.Error())
	default:
		writeInternal(w, r, err)
	}
}

func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	logger.ErrorCtx(r.Context(), err, zap.String("path", r.URL.Path))
	WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
}
