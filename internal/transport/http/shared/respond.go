// Package shared holds the response helpers every handler uses, so error
// envelopes and JSON encoding stay identical across the API surface.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "medledger/pkg/domain-errors"
)

// ErrorResponse is the uniform error envelope. Message carries the coded
// error's operator-facing text; clients branch on Error, never on Message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into its HTTP status and envelope.
// Errors that carry no code surface as 500 with no detail.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}
	var de *dErrors.Error
	if errors.As(err, &de) {
		resp.Message = de.Message
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), resp)
}
