package api

import (
	"errors"
	"net/http"

	"github.com/digiflow/taskkeeper/internal/api/shared"
	"github.com/digiflow/taskkeeper/internal/service"
	"github.com/digiflow/taskkeeper/internal/service/auth"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, task.ErrInvalidState),
		errors.Is(err, task.ErrDuplicateTask):
		return http.StatusConflict

	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, task.ErrInvalidBehaviour),
		errors.Is(err, task.ErrProgressOutOfRange),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrPoolOverload),
		errors.Is(err, store.ErrHistoryDisabled):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrNotFound):
		return "History record not found"

	case errors.Is(err, task.ErrInvalidState):
		return "Task is not in a state that allows this operation"
	case errors.Is(err, task.ErrDuplicateTask):
		return "Task already exists"

	case errors.Is(err, task.ErrInvalidBehaviour):
		return "Invalid behaviour"
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, task.ErrProgressOutOfRange),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	case errors.Is(err, task.ErrPoolOverload):
		return "All task workers are busy, try again later"
	case errors.Is(err, store.ErrHistoryDisabled):
		return "Task history is not enabled"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error response for err. For errors without a
// specific mapping, defaultMsg is sent instead of the generic message when
// it is not empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		message = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
