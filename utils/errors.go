package utils

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// AppError represents an application error carrying the HTTP status to answer with
type AppError struct {
	Code    int                    // HTTP status code
	Message string                 // User-facing message
	Err     error                  // Underlying error, logged but not shown
	Context map[string]interface{} // Additional context for logs
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying error to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	e.Context[key] = value
	return e
}

// StatusOf returns the HTTP status an error should be answered with
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// PublicMessage returns the part of an error that may be shown to the user
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "Internal Server Error"
}

func BadRequestError(message string, err error) *AppError {
	return NewAppError(fiber.StatusBadRequest, message, err)
}

func UnauthorizedError(message string, err error) *AppError {
	return NewAppError(fiber.StatusUnauthorized, message, err)
}

func NotFoundError(message string, err error) *AppError {
	return NewAppError(fiber.StatusNotFound, message, err)
}

func BadGatewayError(message string, err error) *AppError {
	return NewAppError(fiber.StatusBadGateway, message, err)
}

func InternalServerError(message string, err error) *AppError {
	return NewAppError(fiber.StatusInternalServerError, message, err)
}
