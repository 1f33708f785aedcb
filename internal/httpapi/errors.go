package httpapi

import (
	"encoding/json"
	"net/http"

	"modelserve/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// ServerError is an application error returned to the client as
// {"message": ..., "status_code": ...} with the matching HTTP status.
type ServerError struct {
	Message string
	Status  int
}

// NewServerError builds a ServerError. A zero status means 400.
func NewServerError(msg string, status int) *ServerError {
	if status == 0 {
		status = http.StatusBadRequest
	}
	return &ServerError{Message: msg, Status: status}
}

func (e *ServerError) Error() string { return e.Message }

// StatusCode implements HTTPError.
func (e *ServerError) StatusCode() int { return e.Status }

// Payload returns the JSON body for e.
func (e *ServerError) Payload() types.ErrorResponse {
	return types.ErrorResponse{Message: e.Message, StatusCode: e.Status}
}

// writeServerError writes a consistent JSON error payload.
func writeServerError(w http.ResponseWriter, e *ServerError) {
	writeJSON(w, e.Status, e.Payload())
}

// writeJSONError writes msg with status using the ServerError shape.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeServerError(w, NewServerError(msg, status))
}

// writeJSON encodes v before any header is sent, so a value that cannot be
// encoded becomes a 500 ServerError instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b, _ = json.Marshal(types.ErrorResponse{Message: "encode response: " + err.Error(), StatusCode: status})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
