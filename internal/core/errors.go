package core

import (
	"context"
	"errors"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind enumerates the error kinds named in the coordinator's error
// handling design: validation, tenancy, pipeline, and coordinator-fatal
// failures each carry distinct retry/termination semantics.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindTenancyViolation ErrorKind = "tenancy_violation"
	KindNotFound        ErrorKind = "not_found"
	KindEmptyPipeline   ErrorKind = "empty_pipeline"
	KindSourceFailure   ErrorKind = "source_failure"
	KindExportFailure   ErrorKind = "export_failure"
	KindCoordinatorFatal ErrorKind = "coordinator_fatal"
	KindTimeout         ErrorKind = "timeout"
	KindCancelled       ErrorKind = "cancelled"
	KindConflict        ErrorKind = "conflict"
	KindInternal        ErrorKind = "internal"
)

// DomainError wraps an error with a Kind the coordinator and handlers
// switch on to decide retry/terminal behavior.
type DomainError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error.
func NewError(kind ErrorKind, msg string, err error) *DomainError {
	return &DomainError{Kind: kind, Msg: msg, Err: err}
}

// AsGoError maps an error into a go-errors error, the shape the HTTP and
// CLI surfaces render to callers.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	kind := KindInternal
	msg := err.Error()

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		kind = domainErr.Kind
		if domainErr.Msg != "" {
			msg = domainErr.Msg
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		kind = KindCancelled
	}

	switch kind {
	case KindValidation:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("validation")
	case KindTenancyViolation, KindNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode("not_found")
	case KindEmptyPipeline:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("empty_pipeline")
	case KindSourceFailure, KindExportFailure:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("partial_failure")
	case KindTimeout:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("timeout")
	case KindCancelled:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("cancelled")
	case KindConflict:
		return errorslib.New(msg, errorslib.CategoryConflict).WithTextCode("conflict")
	default:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode("internal")
	}
}

// KindFromError maps an error to its domain error kind.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	return KindInternal
}
