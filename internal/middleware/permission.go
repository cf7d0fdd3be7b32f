package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_service/internal/acl"
	"github.com/Skotchmaster/user_service/internal/httperr"
	"github.com/Skotchmaster/user_service/internal/logging"
	"github.com/Skotchmaster/user_service/internal/service"
	"github.com/Skotchmaster/user_service/internal/tokens"
)

const claimsKey = "claims"

// PermittedAction guards a route with perm. The decoded caller is stored on
// the context for handlers, see Claims.
func PermittedAction(gate *service.Gate, perm acl.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := gate.Check(perm, c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				logging.FromContext(c.Request().Context()).Warn("permission_denied",
					"action", perm.Action, "error", err)
				return httperr.FromError(err)
			}

			l := logging.FromContext(c.Request().Context()).With("caller_id", claims.UserID, "caller_role", claims.Role)
			c.SetRequest(c.Request().WithContext(logging.IntoContext(c.Request().Context(), l)))
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// Claims returns the caller set by PermittedAction, or nil.
func Claims(c echo.Context) *tokens.AccessClaims {
	claims, _ := c.Get(claimsKey).(*tokens.AccessClaims)
	return claims
}
