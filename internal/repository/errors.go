package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrThroughputExceeded indicates the store rejected the call because provisioned capacity is exhausted.
var ErrThroughputExceeded = errors.New("repository: provisioned throughput exceeded")

// ErrAccessDenied indicates the caller is not authorised for the operation.
var ErrAccessDenied = errors.New("repository: access denied")

// Provider error codes preserved in responses for observability.
const (
	CodeThroughputExceeded = "ProvisionedThroughputExceededException"
	CodeAccessDenied       = "AccessDenied"
	CodeACLNotSupported    = "AccessControlListNotSupported"
	CodeNoSuchKey          = "NoSuchKey"
	CodeResourceNotFound   = "ResourceNotFoundException"
)

// StoreError carries the provider error code of a failed store call.
type StoreError struct {
	Op   string
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the operation name and provider code.
func NewStoreError(op, code string, err error) error {
	return &StoreError{Op: op, Code: code, Err: err}
}

// Code returns the provider error code carried by err, falling back to the code implied by a
// sentinel. It returns an empty string for unknown errors.
func Code(err error) string {
	var se *StoreError
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	switch {
	case errors.Is(err, ErrThroughputExceeded):
		return CodeThroughputExceeded
	case errors.Is(err, ErrAccessDenied):
		return CodeAccessDenied
	}
	return ""
}

// IsAccessDenied reports whether err is an authorisation failure, including the ACL variant.
func IsAccessDenied(err error) bool {
	if errors.Is(err, ErrAccessDenied) {
		return true
	}
	code := Code(err)
	return code == CodeAccessDenied || code == CodeACLNotSupported
}
