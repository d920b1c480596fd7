package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shipnest/apiserver/internal/validate"
)

// DataResponse is the envelope for successful responses.
type DataResponse struct {
	Status  int    `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope for failed responses. Errors holds a list of
// field errors for validation failures and a detail string otherwise.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Errors  any    `json:"errors"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func sendData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, DataResponse{Status: status, Data: data, Message: message})
}

func sendErrors(w http.ResponseWriter, status int, errs any, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Status: status, Errors: errs, Message: message})
}

// SendValidationErrors reports every failed rule with 422.
func SendValidationErrors(w http.ResponseWriter, failures []validate.FieldError) {
	sendErrors(w, http.StatusUnprocessableEntity, failures, "Validation failed")
}
