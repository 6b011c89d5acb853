package api

import (
	"errors"
	"net/http"

	"expert-assistant/internal/domain"
	"expert-assistant/internal/infra/worker"
)

func statusFor(err error) int {
	if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrStopped) {
		return http.StatusServiceUnavailable
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyInProgress, domain.KindClosed, domain.KindDiscarded:
		return http.StatusConflict
	case domain.KindNetwork:
		return http.StatusGatewayTimeout
	case domain.KindUpstream, domain.KindMalformedResponse:
		return http.StatusBadGateway
	case domain.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrStopped) {
		return "busy"
	}
	return string(domain.KindOf(err))
}
