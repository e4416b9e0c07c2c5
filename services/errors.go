package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies service failures so handlers can pick a status code
// without string-matching messages.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindConflict          ErrorKind = "conflict"
	KindFull              ErrorKind = "full"
	KindClosed            ErrorKind = "closed"
	KindInvalidState      ErrorKind = "invalid_state"
	KindOutOfRange        ErrorKind = "out_of_range"
	KindIncompleteScoring ErrorKind = "incomplete_scoring"
	KindInvalid           ErrorKind = "invalid"
	KindInternal          ErrorKind = "internal"
)

// Error is returned by every service operation that fails a precondition.
// A failed precondition aborts the whole transition; no partial state is
// ever committed alongside one of these.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

func forbidden(format string, args ...interface{}) *Error {
	return newError(KindForbidden, format, args...)
}

func conflict(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

func sessionFull(format string, args ...interface{}) *Error {
	return newError(KindFull, format, args...)
}

func closed(format string, args ...interface{}) *Error {
	return newError(KindClosed, format, args...)
}

func invalidState(format string, args ...interface{}) *Error {
	return newError(KindInvalidState, format, args...)
}

func outOfRange(format string, args ...interface{}) *Error {
	return newError(KindOutOfRange, format, args...)
}

func invalid(format string, args ...interface{}) *Error {
	return newError(KindInvalid, format, args...)
}

func internal(format string, args ...interface{}) *Error {
	return newError(KindInternal, format, args...)
}

func incompleteScoring(count int, answerIDs []uint) *Error {
	err := newError(KindIncompleteScoring, "%d answers still need scoring", count)
	err.Details = map[string]interface{}{
		"unscored_count":      count,
		"unscored_answer_ids": answerIDs,
	}
	return err
}

// KindOf extracts the kind from a service error, or KindInternal for
// anything else (storage failures and the like).
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a service error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict, KindFull:
		return http.StatusConflict
	case KindClosed:
		return http.StatusGone
	case KindInvalidState, KindOutOfRange, KindIncompleteScoring, KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Details returns the structured payload attached to an error, if any.
func Details(err error) map[string]interface{} {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Details
	}
	return nil
}
