package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrInvalidAmount       ErrorType = "INVALID_AMOUNT"
	ErrInsufficientBalance ErrorType = "INSUFFICIENT_BALANCE"
	ErrUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrInvalidAllocation   ErrorType = "INVALID_ALLOCATION"
	ErrRebalanceTooSoon    ErrorType = "REBALANCE_TOO_SOON"
	ErrArithmeticOverflow  ErrorType = "ARITHMETIC_OVERFLOW"
	ErrNotInitialized      ErrorType = "NOT_INITIALIZED"
	ErrAlreadyInitialized  ErrorType = "ALREADY_INITIALIZED"
	ErrInvalidRequest      ErrorType = "INVALID_REQUEST"
	ErrNotFound            ErrorType = "NOT_FOUND"
	ErrUpstream            ErrorType = "UPSTREAM_ERROR"
	ErrReadOnly            ErrorType = "READ_ONLY"
	ErrInternal            ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Newf(errType ErrorType, format string, args ...interface{}) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewUnauthorized(msg string) *AppError {
	return New(ErrUnauthorized, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// Is reports whether err carries the given error type.
func Is(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidAmount, ErrInvalidAllocation, ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrInsufficientBalance, ErrArithmeticOverflow:
		return http.StatusUnprocessableEntity
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrRebalanceTooSoon:
		return http.StatusTooManyRequests
	case ErrNotInitialized, ErrAlreadyInitialized:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrReadOnly:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrInvalidAmount:
		return "Check the deposit bounds via GET /v1/fund/config."
	case ErrInsufficientBalance:
		return "Withdraw at most the current account balance."
	case ErrRebalanceTooSoon:
		return "Retry after the rebalance frequency window elapses."
	case ErrNotInitialized:
		return "Initialize the fund before calling this endpoint."
	case ErrUnauthorized:
		return "Check the caller identity and admin key."
	default:
		return ""
	}
}
