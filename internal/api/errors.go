package api

import (
	"net/http"

	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
)

// statusFor maps the taxonomy to the HTTP status the API surface returns.
func statusFor(err error) int {
	switch {
	case orcherrors.Is(err, orcherrors.KindValidation):
		return http.StatusBadRequest
	case orcherrors.Is(err, orcherrors.KindNotFound):
		return http.StatusNotFound
	case orcherrors.Is(err, orcherrors.KindConflict):
		return http.StatusConflict
	case orcherrors.Is(err, orcherrors.KindAuth):
		return http.StatusUnauthorized
	case orcherrors.Is(err, orcherrors.KindRateLimited):
		return http.StatusTooManyRequests
	case orcherrors.Is(err, orcherrors.KindConfig):
		return http.StatusUnprocessableEntity
	case orcherrors.Is(err, orcherrors.KindServiceUnavailable):
		return http.StatusServiceUnavailable
	case orcherrors.Is(err, orcherrors.KindUpstream), orcherrors.Is(err, orcherrors.KindTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err mapped through the taxonomy to its HTTP status.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, statusFor(err), err.Error())
}
