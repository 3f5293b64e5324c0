package utils

import (
	"errors"

	"github.com/kataras/iris/v12"
)

// Stable error codes returned to clients. Handlers map every recoverable
// failure onto one of these; raw infrastructure errors never reach a client.
const (
	CodeValidation        = "ValidationError"
	CodeInvalidTransition = "InvalidTransition"
	CodeInvalidState      = "InvalidState"
	CodeConflict          = "ConflictError"
	CodeUnauthorized      = "Unauthorized"
	CodeForbidden         = "Forbidden"
	CodeNotFound          = "NotFound"
	CodeGatewayTimeout    = "GatewayTimeout"
	CodeGatewayError      = "GatewayError"
	CodeInternal          = "InternalError"
)

type AppError struct {
	Code    string
	Message string
	Status  int
}

func (e *AppError) Error() string {
	return e.Code + ": " + e.Message
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Status: iris.StatusBadRequest}
}

func NewInvalidTransition(message string) *AppError {
	return &AppError{Code: CodeInvalidTransition, Message: message, Status: iris.StatusConflict}
}

func NewInvalidState(message string) *AppError {
	return &AppError{Code: CodeInvalidState, Message: message, Status: iris.StatusConflict}
}

func NewConflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Status: iris.StatusConflict}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message, Status: iris.StatusUnauthorized}
}

func NewForbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, Status: iris.StatusForbidden}
}

func NewNotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Status: iris.StatusNotFound}
}

func NewGatewayTimeout(message string) *AppError {
	return &AppError{Code: CodeGatewayTimeout, Message: message, Status: iris.StatusGatewayTimeout}
}

func NewGatewayError(message string) *AppError {
	return &AppError{Code: CodeGatewayError, Message: message, Status: iris.StatusBadGateway}
}

// AsAppError unwraps err into an *AppError when possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
