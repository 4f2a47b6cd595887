// Package errors provides coded application errors shared by the stores,
// the engines and the transport handlers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is an application error carrying a machine-readable code.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

// Sentinels for errors.Is checks. They match any *Error with the same code.
var (
	ErrNotFound            = &Error{Code: ErrCodeNotFound}
	ErrInvalidInput        = &Error{Code: ErrCodeInvalidInput}
	ErrConflict            = &Error{Code: ErrCodeConflict}
	ErrUnauthorized        = &Error{Code: ErrCodeUnauthorized}
	ErrUnknownState        = &Error{Code: ErrCodeUnknownState}
	ErrInvalidAction       = &Error{Code: ErrCodeInvalidAction}
	ErrPermissionDenied    = &Error{Code: ErrCodePermissionDenied}
	ErrInsufficientStock   = &Error{Code: ErrCodeInsufficientStock}
	ErrInsufficientBalance = &Error{Code: ErrCodeInsufficientBalance}
	ErrConfiguration       = &Error{Code: ErrCodeConfiguration}
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

// Is matches sentinels (no message) by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Err == nil {
		return t.Code == e.Code
	}
	return t == e
}

// WithDetail attaches a key/value pair and returns the same error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// PublicMessage returns text that is safe to show to an end user.
func (e *Error) PublicMessage() string {
	switch e.Code {
	case ErrCodeInternal, ErrCodeUnknownState, ErrCodeConfiguration:
		return "an unexpected error occurred"
	case ErrCodeInvalidAction:
		return "this item has changed, please refresh"
	case ErrCodePermissionDenied:
		return "not permitted"
	case ErrCodeConflict:
		return "the record was changed by someone else, please retry"
	}
	return e.Message
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps err with a code and message.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// InvalidInput reports a rejected request field.
func InvalidInput(field, message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("%s: %s", field, message),
		Details: map[string]any{"field": field},
	}
}

// Conflict reports a lost optimistic-concurrency race.
func Conflict(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeConflict,
		Message: fmt.Sprintf("%s %s was modified concurrently", resource, id),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// UnknownState reports a (department, status) pair missing from configuration.
func UnknownState(department, status string) *Error {
	return &Error{
		Code:    ErrCodeUnknownState,
		Message: fmt.Sprintf("unknown workflow state %s/%s", department, status),
		Details: map[string]any{"department": department, "status": status},
	}
}

// InvalidAction reports an action that does not exist for the current state.
func InvalidAction(actionID, department, status string) *Error {
	return &Error{
		Code:    ErrCodeInvalidAction,
		Message: fmt.Sprintf("action %q is not available in %s/%s", actionID, department, status),
		Details: map[string]any{"action_id": actionID, "department": department, "status": status},
	}
}

// PermissionDenied reports an actor without rights for the operation.
func PermissionDenied(message string) *Error {
	return &Error{Code: ErrCodePermissionDenied, Message: message}
}

// InsufficientStock reports a quantity request above what is available.
func InsufficientStock(stockItemID string, requested, available int64) *Error {
	shortfall := requested - available
	return &Error{
		Code: ErrCodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock: requested %d, available %d (short by %d)",
			requested, available, shortfall),
		Details: map[string]any{
			"stock_item_id": stockItemID,
			"requested":     requested,
			"available":     available,
			"shortfall":     shortfall,
		},
	}
}

// InsufficientBalance reports a debit that would overdraw a customer balance.
func InsufficientBalance(customerID, balance, amount string) *Error {
	return &Error{
		Code:    ErrCodeInsufficientBalance,
		Message: fmt.Sprintf("insufficient balance: available %s, requested %s", balance, amount),
		Details: map[string]any{"customer_id": customerID, "balance": balance, "amount": amount},
	}
}

// Configuration reports malformed workflow configuration.
func Configuration(message string) *Error {
	return &Error{Code: ErrCodeConfiguration, Message: message}
}

// GetCode extracts the code from any error, or ErrCodeInternal.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// As is errors.As re-exported so callers need a single errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is re-exported so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
