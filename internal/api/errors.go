package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
)

// errorBody wraps a formatted error as {"error": {...}}.
type errorBody struct {
	Error json.RawMessage `json:"error"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch driveerrors.GetCode(err) {
	case driveerrors.ErrCodeInvalidInput, driveerrors.ErrCodeInvalidQuery, driveerrors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case driveerrors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case driveerrors.ErrCodeIndexLocked, driveerrors.ErrCodeIndexClosed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError writes err as a JSON error response. Server-side failures are
// logged with their cause.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("http_request_failed",
			append([]any{slog.String("path", r.URL.Path)}, driveerrors.LogAttrs(err)...)...)
	}
	body, ferr := driveerrors.FormatJSON(err)
	if ferr != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	writeJSON(w, status, errorBody{Error: body})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	h.writeError(w, r, driveerrors.ValidationError(msg, nil))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
