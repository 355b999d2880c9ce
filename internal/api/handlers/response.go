package handlers

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the "error" field
const (
	CodeIndexNotFound    = "INDEX_NOT_FOUND"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidDate      = "INVALID_DATE"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeBodyTooLarge     = "BODY_TOO_LARGE"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: code, Message: message})
}
