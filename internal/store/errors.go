package store

import (
	"errors"
	"fmt"
)

// QueryError is a failure reported by the backend for a single statement.
// The fields mirror what Postgres and PostgREST report.
type QueryError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Err     error  `json:"-"`
}

func (e *QueryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *QueryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newQueryError(code, message string, err error) *QueryError {
	return &QueryError{Code: code, Message: message, Err: err}
}

// AsQueryError converts any error returned by a Store into the QueryError
// shape used in responses. ErrNotFound becomes a QueryError with code
// "not_found".
func AsQueryError(err error) *QueryError {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}
	if errors.Is(err, ErrNotFound) {
		return newQueryError("not_found", err.Error(), err)
	}
	return newQueryError("", err.Error(), err)
}
