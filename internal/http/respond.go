package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/splax/todos/internal/apperr"
)

const msgInternal = "internal server error"

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeMessage sends a plain confirmation message.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps err to a status and body. Errors without a kind are
// logged and reported as a generic 500.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(apperr.KindOf(err))
	if status == http.StatusInternalServerError {
		r.logger.Error("request failed", "error", err, "method", req.Method, "path", req.URL.Path)
		writeError(w, status, msgInternal)
		return
	}
	writeError(w, status, apperr.MessageOf(err, http.StatusText(status)))
}
