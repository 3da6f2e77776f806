// Package errors defines the sentinel errors shared across services and
// maps them to HTTP status codes and metric labels.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidTemporalValue  = errors.New("invalid temporal value")
	ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")
	ErrInvalidQueryOperator  = errors.New("invalid query operator")
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnknownIndex          = errors.New("unknown index")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrSnapshotCorrupt       = errors.New("snapshot corrupt")
	ErrInternal              = errors.New("internal error")
	ErrTimeout               = errors.New("operation timed out")
)

// class ties a sentinel to its HTTP status and metric label. The first
// matching class wins.
type class struct {
	sentinel error
	status   int
	kind     string
}

var classes = []class{
	{ErrInvalidTemporalValue, http.StatusBadRequest, "invalid_temporal_value"},
	{ErrInvalidRecurrenceRule, http.StatusBadRequest, "invalid_recurrence_rule"},
	{ErrInvalidQueryOperator, http.StatusBadRequest, "invalid_query_operator"},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{ErrUnknownIndex, http.StatusNotFound, "unknown_index"},
	{ErrDocumentNotFound, http.StatusNotFound, "document_not_found"},
	{ErrTimeout, http.StatusGatewayTimeout, "timeout"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	{ErrSnapshotCorrupt, http.StatusInternalServerError, "snapshot_corrupt"},
}

func classify(err error) (class, bool) {
	for _, c := range classes {
		if errors.Is(err, c.sentinel) {
			return c, true
		}
	}
	return class{}, false
}

// AppError pins an explicit status and client-facing message to a
// sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// Kind returns a short label for the sentinel err wraps.
func Kind(err error) string {
	if err == nil {
		return "none"
	}
	if c, ok := classify(err); ok {
		return c.kind
	}
	return "internal"
}

// HTTPStatusCode prefers an AppError's explicit status, then the
// sentinel's, then 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	if c, ok := classify(err); ok {
		return c.status
	}
	return http.StatusInternalServerError
}
