// Package httpx provides the JSON result envelope shared by HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrEmptyBody indicates a request without a JSON payload.
var ErrEmptyBody = errors.New("httpx: empty request body")

// Fields carries the payload merged into an envelope.
type Fields map[string]any

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success writes {"success": true, ...fields}.
func Success(w http.ResponseWriter, status int, fields Fields) {
	body := Fields{}
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	JSON(w, status, body)
}

// Failure writes {"success": false, "error": message, ...extra}.
func Failure(w http.ResponseWriter, status int, message string, extra Fields) {
	body := Fields{}
	for k, v := range extra {
		body[k] = v
	}
	body["success"] = false
	body["error"] = message
	JSON(w, status, body)
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	return nil
}
