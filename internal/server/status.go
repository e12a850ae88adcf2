package server

import (
	"net/http"

	"minutes/internal/services"
)

// statusForFailure maps a run outcome to its HTTP status.
func statusForFailure(failure *services.Failure) int {
	if failure == nil {
		return http.StatusOK
	}
	switch failure.Kind {
	case services.KindMissingPrerequisite, services.KindResourceNotFound, services.KindResourceInvalid:
		return http.StatusUnprocessableEntity
	case services.KindExternalCallTransient, services.KindExternalCallExhausted, services.KindCanceled:
		return http.StatusServiceUnavailable
	case services.KindExternalCallBlocked, services.KindExternalCallRejected, services.KindResponseSchemaInvalid:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
