package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_service/internal/httperr"
	"github.com/Skotchmaster/user_service/internal/service"
)

// InternalAPIKey admits service-to-service calls carrying the static key as a
// Bearer token.
func InternalAPIKey(key string) echo.MiddlewareFunc {
	want := []byte(key)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got, err := service.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return httperr.FromError(err)
			}
			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, echo.Map{
					"code": "invalid_api_key", "message": "invalid api key",
				})
			}
			return next(c)
		}
	}
}
