package web

import (
	"errors"
	"net/http"

	"github.com/franz/pjsk-record/internal/util"
)

// NotFoundMessage is shown whenever an alias or record cannot be resolved
const NotFoundMessage = "No record matches your query, try another name?"

// StatusFromError maps domain errors to HTTP status codes
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, util.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, util.ErrPreconditionMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, util.ErrUpstreamUnavailable), errors.Is(err, util.ErrMalformedResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// outcome labels an error for the metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, util.ErrNotFound):
		return "not_found"
	case errors.Is(err, util.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, util.ErrConflict):
		return "conflict"
	case errors.Is(err, util.ErrPreconditionMissing):
		return "precondition"
	case errors.Is(err, util.ErrUpstreamUnavailable), errors.Is(err, util.ErrMalformedResponse):
		return "upstream"
	}
	return "error"
}

// userMessage is the text shown for err on the error page
func userMessage(err error) string {
	switch StatusFromError(err) {
	case http.StatusNotFound:
		return NotFoundMessage
	case http.StatusBadGateway:
		return "Song data is unavailable right now, please try again later."
	case http.StatusInternalServerError:
		return "Something went wrong, please try again later."
	}
	return err.Error()
}
