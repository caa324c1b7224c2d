package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrProcessing     ErrorCode = "PROCESSING_ERROR"
	ErrInternalServer ErrorCode = "SYSTEM_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrValidation:
			return http.StatusBadRequest
		case ErrProcessing:
			return http.StatusUnprocessableEntity
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// WireType returns the error type clients see in response bodies. Missing
// resources are reported as validation errors on the wire, matching how
// lookups by unknown batch ids are surfaced to callers.
func WireType(err error) ErrorCode {
	if apiErr, ok := err.(APIError); ok {
		if apiErr.Code == ErrNotFound {
			return ErrValidation
		}
		return apiErr.Code
	}
	return ErrInternalServer
}
