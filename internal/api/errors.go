package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes returned by the inspection API.
const (
	ErrCodeInvalidLimit      = "invalid_limit"
	ErrCodeNoCurrentSnapshot = "no_current_snapshot"
	ErrCodeStoreFailure      = "store_failure"
	ErrCodeInternal          = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v) //nolint:errcheck // client may have gone away
}

// writeError answers with an Error carrying the request's X-Request-ID so
// a client report can be matched to the access log line.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(r),
	})
}
