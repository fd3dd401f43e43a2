package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/email-gateway/internal/service/authorizer"
	"github.com/jmehdipour/email-gateway/internal/service/dispatch"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type apiError struct {
	status int
	code   string
	desc   string
}

var errorTable = []struct {
	err error
	apiError
}{
	{authorizer.ErrInvalidKey, apiError{http.StatusUnauthorized, "invalid_key", "api key is not recognized"}},
	{authorizer.ErrInactiveKey, apiError{http.StatusForbidden, "inactive_key", "api key is inactive or expired"}},
	{authorizer.ErrInsufficientCredits, apiError{http.StatusPaymentRequired, "insufficient_credits", "no api credits left for this period"}},
	{authorizer.ErrNoTransportConfigured, apiError{http.StatusUnprocessableEntity, "no_transport_configured", "no default smtp profile configured"}},
	{dispatch.ErrTemplateNotFound, apiError{http.StatusNotFound, "template_not_found", "template does not exist for this company"}},
	{dispatch.ErrNoContent, apiError{http.StatusBadRequest, "no_content", "one of html, text or template_id is required"}},
	{dispatch.ErrQueueFull, apiError{http.StatusServiceUnavailable, "queue_full", "dispatch queue is full, retry later"}},
}

func mapError(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.apiError
		}
	}
	return apiError{http.StatusInternalServerError, "internal", "internal error"}
}

func writeError(c echo.Context, lg *zap.Logger, err error) error {
	ae := mapError(err)
	if ae.status >= http.StatusInternalServerError {
		lg.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err),
		)
	}
	if ae.status == http.StatusServiceUnavailable {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(ae.status, map[string]string{"error": ae.code, "description": ae.desc})
}

func badRequest(c echo.Context, desc string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad_request", "description": desc})
}
