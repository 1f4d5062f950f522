// Package handlers implements the HTTP handlers mounted by pkg/server.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/diodb/pkg/diodb"
	"github.com/mnohosten/diodb/pkg/metrics"
)

// Handlers holds the engine handle and metrics collector shared by every
// HTTP route.
type Handlers struct {
	db        *diodb.DB
	collector *metrics.Collector
}

// New returns a Handlers bound to db, recording operation counts on
// collector.
func New(db *diodb.DB, collector *metrics.Collector) *Handlers {
	return &Handlers{db: db, collector: collector}
}

// PutKey stores the request body as the value for the {key} path segment.
func (h *Handlers) PutKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	if key == "" {
		writeError(w, &BadRequestError{Message: "key must not be empty"})
		return
	}
	value, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, &BadRequestError{Message: "failed to read request body"})
		return
	}
	defer r.Body.Close()

	h.db.Put([]byte(key), value)
	h.collector.RecordPut()
	writeSuccess(w, map[string]string{"key": key})
}

// GetKey returns the value stored for {key}, or 404 if it is absent or
// has been erased.
func (h *Handlers) GetKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	present, err := h.db.Exists([]byte(key))
	if err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}
	if !present {
		h.collector.RecordGet(false)
		writeError(w, &KeyNotFoundError{Key: key})
		return
	}

	value, err := h.db.Get([]byte(key))
	if err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}
	h.collector.RecordGet(true)
	writeSuccess(w, map[string]string{
		"key":   key,
		"value": base64.StdEncoding.EncodeToString(value),
	})
}

// HeadKey reports existence of {key} via the status code alone.
func (h *Handlers) HeadKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	present, err := h.db.Exists([]byte(key))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !present {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteKey erases {key}. Erasing an absent key is not an error: it still
// records a tombstone, matching the engine's own Erase semantics.
func (h *Handlers) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	if key == "" {
		writeError(w, &BadRequestError{Message: "key must not be empty"})
		return
	}
	h.db.Erase([]byte(key))
	h.collector.RecordErase()
	writeSuccess(w, map[string]string{"key": key})
}

// Health reports liveness along with server uptime.
func (h *Handlers) Health(startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, map[string]interface{}{
			"status":        "ok",
			"uptimeSeconds": time.Since(startTime).Seconds(),
		})
	}
}

func keyParam(r *http.Request) string {
	return chi.URLParam(r, "key")
}

// parseJSONBody decodes a JSON request body into target.
func parseJSONBody(r *http.Request, target interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return &BadRequestError{Message: "failed to read request body"}
	}
	defer r.Body.Close()

	if len(body) == 0 {
		return &BadRequestError{Message: "request body is empty"}
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &BadRequestError{Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// Error types for consistent error handling.

type BadRequestError struct{ Message string }

func (e *BadRequestError) Error() string { return e.Message }

type KeyNotFoundError struct{ Key string }

func (e *KeyNotFoundError) Error() string { return "key not found: " + e.Key }

type InternalError struct{ Message string }

func (e *InternalError) Error() string { return e.Message }

// writeError writes an error response with the appropriate HTTP status.
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	var errorType, message string

	var badReq *BadRequestError
	var notFound *KeyNotFoundError
	var internal *InternalError
	switch {
	case errors.As(err, &badReq):
		statusCode, errorType, message = http.StatusBadRequest, "BadRequest", badReq.Message
	case errors.As(err, &notFound):
		statusCode, errorType, message = http.StatusNotFound, "KeyNotFound", notFound.Error()
	case errors.As(err, &internal):
		statusCode, errorType, message = http.StatusInternalServerError, "InternalError", internal.Message
	default:
		statusCode, errorType, message = http.StatusInternalServerError, "InternalError", err.Error()
	}

	response := map[string]interface{}{
		"ok":      false,
		"error":   errorType,
		"message": message,
		"code":    statusCode,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter, result interface{}) {
	response := map[string]interface{}{
		"ok":     true,
		"result": result,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
