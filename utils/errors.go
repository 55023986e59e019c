package utils

import (
	"errors"
	"fmt"
)

// Kind classifies failures crossing the service boundary.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindAlreadyExists Kind = "already_exists"
	KindValidation    Kind = "validation"
	KindTransient     Kind = "transient"
	KindUnauthorized  Kind = "unauthorized"
)

// Error is a typed failure. Two errors match with errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

var (
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists, Message: "already exists"}
	ErrValidation    = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrTransient     = &Error{Kind: KindTransient, Message: "storage unavailable"}
	ErrUnauthorized  = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func Unauthorized(message string) error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Transient wraps an I/O failure. Typed errors pass through untouched.
func Transient(message string, err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

// KindOf reports the kind of err, treating untyped errors as transient.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindTransient
}
