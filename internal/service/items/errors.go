package items

import (
	"context"
	"errors"
	"strings"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
)

// Kind classifies an item service failure.
type Kind string

const (
	KindClientInput      Kind = "ClientInputError"
	KindNotFound         Kind = "NotFoundError"
	KindCapacityExceeded Kind = "CapacityExceededError"
	KindAccessDenied     Kind = "AccessDeniedError"
	KindTransientStore   Kind = "TransientStoreError"
)

// Error is a classified failure. Code carries the provider error code when the failure came
// from a store.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorType is the value reported to clients: the provider code when known, else the kind.
func (e *Error) ErrorType() string {
	if e.Code != "" {
		return e.Code
	}
	return string(e.Kind)
}

// StatusClass maps the failure onto a metric status class.
func (e *Error) StatusClass() domain.StatusClass {
	switch e.Kind {
	case KindClientInput:
		return domain.StatusClientError
	case KindCapacityExceeded:
		return domain.StatusThrottled
	default:
		return domain.StatusServerError
	}
}

// Trace renders the wrapped error chain, outermost first.
func (e *Error) Trace() string {
	var lines []string
	for err := error(e); err != nil; err = errors.Unwrap(err) {
		lines = append(lines, err.Error())
	}
	return strings.Join(lines, "\n")
}

// ClientInput builds a malformed request failure.
func ClientInput(message string, err error) *Error {
	return &Error{Kind: KindClientInput, Message: message, Err: err}
}

// Classify maps any error onto the failure taxonomy. Already classified errors are returned
// unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	code := repository.Code(err)
	switch {
	case errors.Is(err, repository.ErrThroughputExceeded):
		return &Error{Kind: KindCapacityExceeded, Code: code, Message: "provisioned throughput exceeded", Err: err}
	case repository.IsAccessDenied(err):
		return &Error{Kind: KindAccessDenied, Code: code, Message: "access denied", Err: err}
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Kind: KindNotFound, Code: code, Message: "item not found", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTransientStore, Message: "request aborted", Err: err}
	default:
		return &Error{Kind: KindTransientStore, Code: code, Message: "store request failed", Err: err}
	}
}
