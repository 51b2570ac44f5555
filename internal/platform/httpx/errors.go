// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Problem is a domain error carrying the message shown to clients. It matches
// its Kind sentinel under errors.Is.
type Problem struct {
	Kind    error
	Message string
}

func (p *Problem) Error() string { return p.Message }

func (p *Problem) Unwrap() error { return p.Kind }

// NewProblem returns a Problem of kind with a client-facing message.
func NewProblem(kind error, message string) error {
	return &Problem{Kind: kind, Message: message}
}

// RespondError maps domain errors to HTTP responses. The error text is only
// exposed for client-caused failures; server failures use fallback.
func RespondError(w http.ResponseWriter, err error, fallback string) {
	var problem *Problem
	if errors.As(err, &problem) {
		err = problem
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, err.Error())
	default:
		if fallback == "" {
			fallback = http.StatusText(http.StatusInternalServerError)
		}
		Error(w, http.StatusInternalServerError, fallback)
	}
}

// IsClientError reports whether err maps to a 4xx response.
func IsClientError(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrDuplicate, ErrConflict, ErrValidation, ErrForbidden, ErrUnauthorized} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
