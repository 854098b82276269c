package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"invtrack/cmd/errkind"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// writeKindError maps an errkind-classified error onto the HTTP error envelope.
// Unclassified errors are logged and reported as 500.
func (h *Handler) writeKindError(w http.ResponseWriter, event string, err error) {
	var oe errkind.OpError
	msg := ""
	if errors.As(err, &oe) {
		msg = oe.Msg
	}

	switch {
	case errkind.IsStorageUnavailable(err):
		h.log.Error(event, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage unavailable, retry later")
	case errors.Is(err, errkind.ErrInvalidScope):
		writeError(w, http.StatusUnprocessableEntity, "invalid_scope", orDefault(msg, "invalid scope"))
	case errors.Is(err, errkind.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, "validation_failed", orDefault(msg, "invalid request"))
	case errkind.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, errkind.ErrGone):
		writeError(w, http.StatusGone, "gone", orDefault(msg, "gone"))
	case errors.Is(err, errkind.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errkind.IsConflict(err, ""), errors.Is(err, errkind.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "conflict")
	default:
		h.log.Error(event, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
