package domain

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers caller mistakes. Never retried.
	KindValidation
	// KindUnavailable covers unreachable embedding or rerank backends.
	KindUnavailable
	// KindPersistence covers disk read and write failures.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyQuery        = errors.New("query is empty")
	ErrEmptyText         = errors.New("chunk text is empty")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrCountMismatch     = errors.New("vector and metadata counts differ")
	ErrInvalidVector     = errors.New("vector has zero norm or non-finite values")
	ErrModelMismatch     = errors.New("embedding model differs from the one that built the index")
)

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so callers can test errors.Is(err, &Error{Kind: KindValidation}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func Unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Op: op, Err: err}
}

func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }
func IsPersistence(err error) bool { return KindOf(err) == KindPersistence }
