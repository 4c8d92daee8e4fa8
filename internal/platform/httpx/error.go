// Package httpx defines the JSON error envelope shared by every endpoint.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/shopfront/api/internal/platform/requestctx"
)

// Error is the canonical error envelope. The "error" field carries the
// human-readable message so browser clients can surface it directly; "code"
// is the stable machine identifier.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
}

// NewError constructs an Error, defaulting the status to 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, 80),
		Message: clean(message, 512),
		Status:  status,
	}
}

// WithRequestID sets the request identifier on the error payload.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clean(id, 80)
	return e
}

// WithTraceID sets the trace identifier on the error payload.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = clean(id, 64)
	return e
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteError renders the envelope, filling request and trace identifiers
// from the context when the caller did not set them.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := errorBody{
		Error:     err.Message,
		Code:      err.Code,
		Status:    status,
		RequestID: err.RequestID,
		TraceID:   err.TraceID,
	}
	if body.RequestID == "" {
		body.RequestID = clean(middleware.GetReqID(ctx), 80)
	}
	if body.TraceID == "" {
		body.TraceID = clean(requestctx.TraceID(ctx), 64)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clean(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return value
}
