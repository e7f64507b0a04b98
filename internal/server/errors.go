package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/signalsfoundry/satloc/core"
	"github.com/signalsfoundry/satloc/elements"
	"github.com/signalsfoundry/satloc/internal/celestrak"
	"github.com/signalsfoundry/satloc/internal/config"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/render"
	"github.com/signalsfoundry/satloc/timectrl"
)

// ErrBadRequest is a package-level sentinel for malformed query parameters.
var ErrBadRequest = errors.New("bad request")

// StatusFor maps pipeline errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, celestrak.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrBadRequest),
		errors.Is(err, celestrak.ErrInvalidCatalogNumber),
		errors.Is(err, config.ErrInvalidStart),
		errors.Is(err, render.ErrUnknownFormat),
		errors.Is(err, timectrl.ErrInvalidSchedule),
		errors.Is(err, core.ErrUnknownGravityModel):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrDecayed):
		return http.StatusUnprocessableEntity

	// Unparsable provider responses count as upstream failures.
	case errors.Is(err, celestrak.ErrUpstream),
		errors.Is(err, elements.ErrMalformed),
		errors.Is(err, elements.ErrChecksum),
		errors.Is(err, elements.ErrCatalogMismatch):
		return http.StatusBadGateway

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	ctx := r.Context()
	log := logging.FromContext(ctx, s.log)
	fields := []logging.Field{logging.Int("status", code), logging.Err(err)}
	if code >= http.StatusInternalServerError {
		log.Error(ctx, "track request failed", fields...)
	} else {
		log.Info(ctx, "track request rejected", fields...)
	}
	http.Error(w, err.Error(), code)
}
