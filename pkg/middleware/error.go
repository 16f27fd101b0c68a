package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/pkg/context"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// sentinelStatus maps domain errors to HTTP statuses so handlers can return
// service errors directly
func sentinelStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, models.ErrAuth), errors.Is(err, models.ErrStaleCredentials):
		return http.StatusUnauthorized, true
	case errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrScanInProgress):
		return http.StatusConflict, true
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return http.StatusBadGateway, true
	default:
		return 0, false
	}
}

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithError(err).Error("api is returning an error")
		if c.Response().Committed {
			return
		}

		// Default response
		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		// Handle specific Echo errors
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if status, ok := sentinelStatus(err); ok {
			code = status
			message = err.Error()
		}

		if ok := httperror.IsHTTPError(err); ok {
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			meta = httperr.Meta
		}
		requestID := context.GetRequestID(ctx)
		traceID := tracing.GetTraceID(ctx)

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: requestID,
			TraceID:   traceID,
			Meta:      meta,
		})
	}
}
