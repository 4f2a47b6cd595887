package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code is a machine-readable error code.
type Code string

const (
	ErrCodeInternal     Code = "INTERNAL"
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeConflict     Code = "CONFLICT"
	ErrCodeUnauthorized Code = "UNAUTHORIZED"

	// Workflow
	ErrCodeUnknownState     Code = "UNKNOWN_STATE"
	ErrCodeInvalidAction    Code = "INVALID_ACTION"
	ErrCodePermissionDenied Code = "PERMISSION_DENIED"
	ErrCodeConfiguration    Code = "CONFIGURATION"

	// Inventory and ledger
	ErrCodeInsufficientStock   Code = "INSUFFICIENT_STOCK"
	ErrCodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
)

// HTTPStatus maps a code to an HTTP status.
func (c Code) HTTPStatus() int {
	switch c {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeInvalidAction:
		return http.StatusConflict
	case ErrCodeInsufficientStock, ErrCodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps a code to a gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeInvalidInput:
		return codes.InvalidArgument
	case ErrCodeUnauthorized:
		return codes.Unauthenticated
	case ErrCodePermissionDenied:
		return codes.PermissionDenied
	case ErrCodeConflict:
		return codes.Aborted
	case ErrCodeInvalidAction, ErrCodeInsufficientStock, ErrCodeInsufficientBalance:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// ToGRPC converts any error to a gRPC status error with a user-safe message.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if As(err, &e) {
		return status.Error(e.Code.GRPCCode(), e.PublicMessage())
	}
	return status.Error(codes.Internal, "an unexpected error occurred")
}
