package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateReference = errors.New("duplicate reference")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrInvalidJSON        = errors.New("invalid JSON")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ParseError is returned by protocol adapters when a payload cannot become a normalized event.
type ParseError struct {
	Source AuditSource
	Field  string
	Reason string
	Err    error
}

func NewParseError(source AuditSource, field, reason string) *ParseError {
	return &ParseError{Source: source, Field: field, Reason: reason}
}

// InvalidJSON reports a body that could not be decoded at all.
func InvalidJSON(source AuditSource, err error) *ParseError {
	return &ParseError{Source: source, Err: fmt.Errorf("%w: %v", ErrInvalidJSON, err)}
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: invalid payload", e.Source)
	if e.Field != "" {
		msg += " field " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrMalformedPayload }

// ErrorKind classifies reconciliation failures for the fail-open/fail-closed decision.
type ErrorKind int

const (
	KindTransactional ErrorKind = iota
	KindMalformed
)

func (k ErrorKind) String() string {
	if k == KindMalformed {
		return "malformed"
	}
	return "transactional"
}

// ReconciliationError is the error half of every engine result.
type ReconciliationError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

func Malformed(op string, err error) error {
	return &ReconciliationError{Op: op, Kind: KindMalformed, Err: err}
}

func Transactional(op string, err error) error {
	return &ReconciliationError{Op: op, Kind: KindTransactional, Err: err}
}

// IsMalformed reports whether err came from a payload that failed validation.
func IsMalformed(err error) bool {
	var re *ReconciliationError
	if errors.As(err, &re) {
		return re.Kind == KindMalformed
	}
	return errors.Is(err, ErrMalformedPayload)
}
