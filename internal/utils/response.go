package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-boxoffice/internal/errs"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Details   string      `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func WriteJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success:   status < 400,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError maps a domain error to its HTTP status and emits the
// operator-readable details, never the raw internal error.
func WriteError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errs.HTTPStatus(kind))
	json.NewEncoder(w).Encode(APIResponse{
		Success:   false,
		Error:     string(kind),
		Details:   errs.DetailsOf(err),
		Timestamp: time.Now(),
	})
}
