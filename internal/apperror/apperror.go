// Package apperror defines the typed failures returned by the table-service
// core and their mapping onto transport status codes.
package apperror

import (
	stderrors "errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeLockConflict      = "LOCK_CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInconsistentState = "INCONSISTENT_STATE"
	CodePrintJobNotFound  = "PRINT_JOB_NOT_FOUND"
	CodePrintJobNotFailed = "PRINT_JOB_NOT_FAILED"
	CodeTransientStore    = "TRANSIENT_STORE"
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
)

var (
	ErrLockConflict = goerrors.New("table in use", goerrors.CategoryConflict).
			WithTextCode(CodeLockConflict)
	ErrInvalidTransition = goerrors.New("invalid transition", goerrors.CategoryBadInput).
				WithTextCode(CodeInvalidTransition)
	ErrInconsistentState = goerrors.New("inconsistent table/order state", goerrors.CategoryHandler).
				WithTextCode(CodeInconsistentState)
	ErrPrintJobNotFound = goerrors.New("print job not found", goerrors.CategoryBadInput).
				WithTextCode(CodePrintJobNotFound)
	ErrPrintJobNotFailed = goerrors.New("print job is not failed", goerrors.CategoryConflict).
				WithTextCode(CodePrintJobNotFailed)
	ErrTransientStore = goerrors.New("store temporarily unavailable", goerrors.CategoryExternal).
				WithTextCode(CodeTransientStore)
	ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
			WithTextCode(CodeValidation)
	ErrNotFound = goerrors.New("not found", goerrors.CategoryBadInput).
			WithTextCode(CodeNotFound)
)

func clone(base *goerrors.Error, message string, source error, state map[string]any) *goerrors.Error {
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(state) > 0 {
		err = err.WithMetadata(state)
	}
	return err
}

// LockConflict reports a table held by another holder.
func LockConflict(state map[string]any) error {
	return clone(ErrLockConflict, "", nil, state)
}

// InvalidTransition reports a status precondition that does not hold. state
// carries the statuses observed so the client can reconcile.
func InvalidTransition(message string, state map[string]any) error {
	return clone(ErrInvalidTransition, message, nil, state)
}

// InconsistentState reports a table/order pair outside the allowed set.
func InconsistentState(message string, state map[string]any) error {
	return clone(ErrInconsistentState, message, nil, state)
}

func PrintJobNotFound(state map[string]any) error {
	return clone(ErrPrintJobNotFound, "", nil, state)
}

func PrintJobNotFailed(state map[string]any) error {
	return clone(ErrPrintJobNotFailed, "", nil, state)
}

// Transient wraps a connection or transaction failure. Nothing was committed,
// so the whole operation may be retried.
func Transient(source error) error {
	return clone(ErrTransientStore, "", source, nil)
}

func Validation(message string) error {
	return clone(ErrValidation, message, nil, nil)
}

func NotFound(message string, state map[string]any) error {
	return clone(ErrNotFound, message, nil, state)
}

// Code returns the text code of the first typed error in err's chain.
func Code(err error) string {
	var ge *goerrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// Is reports whether err carries the given text code.
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}

// State returns the state snapshot attached to err, if any.
func State(err error) map[string]any {
	var ge *goerrors.Error
	if stderrors.As(err, &ge) {
		return ge.Metadata
	}
	return nil
}

// Message returns the user-facing message of a typed error, or a generic one.
func Message(err error) string {
	var ge *goerrors.Error
	if stderrors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return "internal server error"
}

// HTTPStatus maps err onto a response status. Untyped errors are 500.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound, CodePrintJobNotFound:
		return http.StatusNotFound
	case CodeLockConflict, CodeInvalidTransition, CodePrintJobNotFailed:
		return http.StatusConflict
	case CodeTransientStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
