package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error payload inside the gateway's JSON envelope. Code is a
// stable machine tag (ORDER_NOT_FOUND, ELIGIBILITY, WRONG_GATEWAY, ...) the
// storefront switches on; Details carries structured context such as the
// eligibility reason.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// JSON writes v as a JSON response. Encoding failures are not recoverable at
// this point since the status line is already on the wire.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders the gateway error envelope: {"error":{code,message,details}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, errorEnvelope{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}
