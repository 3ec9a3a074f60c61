package apperr

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before any write happens.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError marks a missing cart, address, order or product.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

func NotFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

// ConflictError marks a state conflict (empty cart, concurrent
// double-checkout, transition precondition no longer holding). Safe to
// retry after re-fetching state.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string {
	return e.Msg
}

func Conflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// DiscountInvalidError carries the structured reason code from discount
// validation, never a bare "invalid".
type DiscountInvalidError struct {
	Reason  string
	Message string
}

func (e *DiscountInvalidError) Error() string {
	return e.Message
}

func DiscountInvalid(reason, message string) error {
	return &DiscountInvalidError{Reason: reason, Message: message}
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsDiscountInvalid(err error) bool {
	var e *DiscountInvalidError
	return errors.As(err, &e)
}
