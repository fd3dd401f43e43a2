package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/service/authorizer"
	echo "github.com/labstack/echo/v4"
)

const (
	ctxCompanyID = "company_id"
	ctxAPIKeyID  = "api_key_id"
)

// Identifier resolves an API key to an active key record.
type Identifier interface {
	Identify(ctx context.Context, apiKey string) (*model.APIKey, error)
}

// CompanyIDFromCtx extracts the authenticated company_id set by APIKeyMiddleware.
func CompanyIDFromCtx(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxCompanyID).(int64)
	return id, ok && id > 0
}

// APIKeyMiddleware authenticates requests using the X-API-Key header.
// It never touches credits; the send path charges on its own.
func APIKeyMiddleware(ident Identifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			k, err := ident.Identify(c.Request().Context(), c.Request().Header.Get("X-API-Key"))
			switch {
			case errors.Is(err, authorizer.ErrInvalidKey):
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_key"})
			case errors.Is(err, authorizer.ErrInactiveKey):
				return c.JSON(http.StatusForbidden, map[string]string{"error": "inactive_key"})
			case err != nil:
				c.Logger().Errorf("api key lookup failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			c.Set(ctxCompanyID, k.CompanyID)
			c.Set(ctxAPIKeyID, k.ID)
			return next(c)
		}
	}
}
