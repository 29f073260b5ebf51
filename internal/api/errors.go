package api

import (
	"fmt"
	"net/http"
	"strings"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func statusMessage(code int) string {
	return strings.ToLower(http.StatusText(code))
}

// NewBadRequestError uses reason as the message when one is given.
func NewBadRequestError(reason ...string) *ApiError {
	msg := statusMessage(http.StatusBadRequest)
	if len(reason) > 0 && reason[0] != "" {
		msg = reason[0]
	}

	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    msg,
	}
}

func NewNotFoundError(reason ...string) *ApiError {
	msg := statusMessage(http.StatusNotFound)
	if len(reason) > 0 && reason[0] != "" {
		msg = reason[0]
	}

	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    msg,
	}
}

func NewConflictError(reason ...string) *ApiError {
	msg := statusMessage(http.StatusConflict)
	if len(reason) > 0 && reason[0] != "" {
		msg = reason[0]
	}

	return &ApiError{
		StatusCode: http.StatusConflict,
		Message:    msg,
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    statusMessage(http.StatusInternalServerError),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    statusMessage(http.StatusUnauthorized),
	}
}

// NewRoomUnavailableError answers both unknown rooms and rooms the caller
// is not a member of.
func NewRoomUnavailableError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    "room not found or access denied",
	}
}

func NewServiceUnavailableError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    statusMessage(http.StatusServiceUnavailable),
		Err:        err,
	}
}
