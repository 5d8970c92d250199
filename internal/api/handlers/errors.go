package handlers

import (
	"errors"
	"net/http"

	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
)

// statusForError maps domain and provider errors onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, vision.ErrRequestPrecondition), errors.Is(err, llm.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, vision.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, vision.ErrImageNotFound), errors.Is(err, vision.ErrNoDeviceFound):
		return http.StatusNotFound
	case errors.Is(err, vision.ErrDeviceBusy):
		return http.StatusConflict
	case errors.Is(err, vision.ErrEmptyCapture):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vision.ErrDeviceStartFailed):
		return http.StatusServiceUnavailable
	case vision.IsRequestError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}
