// Package apperror carries expected business failures as typed errors so
// callers can branch on them with errors.As instead of string matching.
package apperror

import (
	"errors"
	"strings"
)

type Type int

const (
	Failure Type = iota
	Validation
	Problem
	NotFound
	Conflict
	Authentication
	Authorization
)

func (t Type) String() string {
	switch t {
	case Validation:
		return "validation"
	case Problem:
		return "problem"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Authentication:
		return "authentication"
	case Authorization:
		return "authorization"
	default:
		return "failure"
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	for c := Failure; c <= Authorization; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	*t = Failure
	return nil
}

// Error is an expected business failure. Validation errors carry the
// individual violations in Errors.
type Error struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Type        Type     `json:"type"`
	Errors      []*Error `json:"errors,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

// Is matches another *Error with the same code, so catalog values work as
// sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func New(t Type, code, description string) *Error {
	return &Error{Code: code, Description: description, Type: t}
}

func NewFailure(code, description string) *Error {
	return New(Failure, code, description)
}

func NewProblem(code, description string) *Error {
	return New(Problem, code, description)
}

func NewNotFound(code, description string) *Error {
	return New(NotFound, code, description)
}

func NewConflict(code, description string) *Error {
	return New(Conflict, code, description)
}

func NewAuthentication(code, description string) *Error {
	return New(Authentication, code, description)
}

func NewAuthorization(code, description string) *Error {
	return New(Authorization, code, description)
}

// NewValidation aggregates violations under one code. The description joins
// every message so that single-line consumers still see all of them.
func NewValidation(code string, messages ...string) *Error {
	e := &Error{
		Code:        code,
		Description: strings.Join(messages, "; "),
		Type:        Validation,
	}
	for _, m := range messages {
		e.Errors = append(e.Errors, &Error{Code: code, Description: m, Type: Validation})
	}
	return e
}

// From extracts an *Error from err's chain.
func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TypeOf returns the type of err, or Failure when err is not an *Error.
func TypeOf(err error) Type {
	if e, ok := From(err); ok {
		return e.Type
	}
	return Failure
}
