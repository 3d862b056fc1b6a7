package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx response.
//
// Error duplicates Message for clients that only read {"error": "..."},
// which is what the host's own endpoints return.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Error codes. Most follow from the status; ErrCodeValidation and
// ErrCodeNotConfigured are 400s with a more specific meaning.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeValidation    = "validation_error"
	ErrCodeNotConfigured = "not_configured"
	ErrCodeUnauthorized  = "unauthorised"
	ErrCodeForbidden     = "forbidden"
	ErrCodeNotFound      = "not_found"
	ErrCodeInternal      = "internal_error"
)

var statusCodes = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusUnauthorized:        ErrCodeUnauthorized,
	http.StatusForbidden:           ErrCodeForbidden,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusInternalServerError: ErrCodeInternal,
}

// Messages shared with the WebSocket commands.
const (
	msgNotConfigured = "Couch Control not configured"
	msgInvalidJSON   = "Invalid JSON"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message, Error: message})
}

// writeStatus writes an error whose code is implied by status.
func writeStatus(w http.ResponseWriter, status int, message string) {
	writeError(w, status, statusCodes[status], message)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusBadRequest, message)
}

// writeNotConfigured is the 400 every selection route returns while no
// config entry exists.
func writeNotConfigured(w http.ResponseWriter) {
	writeError(w, http.StatusBadRequest, ErrCodeNotConfigured, msgNotConfigured)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusInternalServerError, message)
}
