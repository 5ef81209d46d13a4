// Package handlers provides HTTP request handlers for the pathorama API.
// This file contains utilities shared across all handlers.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anstrom/pathorama/internal/api/middleware"
	"github.com/anstrom/pathorama/internal/host"
	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/manager"
)

const maxRequestSize = 1 << 20

// Engine is the scanner surface the API drives.
type Engine interface {
	Describe() host.Descriptor
	OnRequest(ctx host.Context, req *host.HTTPRequest) host.RowBatch
	AddTargetURL(raw string) (bool, error)
	Status() (manager.Status, bool)
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	writeJSON(w, r, statusCode, ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	})
}

// parseJSON decodes a bounded, strictly typed JSON body into dest.
func parseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return fmt.Errorf("request body is empty")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
