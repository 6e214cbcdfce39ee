package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/doxvisum/api/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxIDLen      = 80
)

// Error is an API error before it is rendered.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an Error; a zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: code, Message: message, Status: status}
}

// WithDetails returns a copy of e carrying details under "details".
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	cloned := make(map[string]any, len(details))
	for k, v := range details {
		cloned[k] = v
	}
	e.Details = cloned
	return e
}

// Rule maps errors matching Target (via errors.Is) to an API error. With Expose set the
// error text becomes the message, which suits validation failures.
type Rule struct {
	Target  error
	Code    string
	Message string
	Status  int
	Expose  bool
}

// Map returns the API error of the first rule matching err, or fallback.
func Map(err error, fallback Error, rules ...Rule) Error {
	for _, rule := range rules {
		if rule.Target == nil || !errors.Is(err, rule.Target) {
			continue
		}
		message := rule.Message
		if rule.Expose && err != nil {
			message = err.Error()
		}
		return NewError(rule.Code, message, rule.Status)
	}
	return fallback
}

type envelope struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Status    int            `json:"status"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError renders e as JSON, stamping the chi request id and the Cloud Trace id when known.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := envelope{
		Error:     clean(e.Code, maxCodeLen),
		Message:   clean(e.Message, maxMessageLen),
		Status:    status,
		RequestID: clean(middleware.GetReqID(ctx), maxIDLen),
		TraceID:   clean(requestctx.TraceID(ctx), maxIDLen),
		Details:   e.Details,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clean flattens line breaks and truncates to limit bytes.
func clean(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
