// Package httperr turns service errors into echo HTTP errors with a stable
// machine-readable code.
package httperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_service/internal/service"
)

type mapping struct {
	target error
	status int
	code   string
}

var table = []mapping{
	{service.ErrStorage, http.StatusServiceUnavailable, "storage_unavailable"},
	{service.ErrMissingBearer, http.StatusUnauthorized, "missing_bearer"},
	{service.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{service.ErrTokenParse, http.StatusUnauthorized, "token_invalid"},
	{service.ErrNoSuchTokenUser, http.StatusUnauthorized, "no_such_token_user"},
	{service.ErrStaleRevision, http.StatusUnauthorized, "stale_revision"},
	{service.ErrRestrictedPermission, http.StatusForbidden, "restricted_permission"},
	{service.ErrAccountBanned, http.StatusForbidden, "account_banned"},
	{service.ErrSelfAction, http.StatusForbidden, "self_action"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{service.ErrValidation, http.StatusBadRequest, "validation_error"},
	{service.ErrConflict, http.StatusConflict, "conflict"},
	{service.ErrNoSuchUser, http.StatusNotFound, "no_such_user"},
	{service.ErrRevisionExists, http.StatusConflict, "revision_exists"},
}

// Status reports the HTTP status and code for err. Unknown errors are 500.
func Status(err error) (int, string) {
	for _, m := range table {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func FromError(err error) *echo.HTTPError {
	status, code := Status(err)

	msg := http.StatusText(status)
	switch {
	case status == http.StatusInternalServerError, errors.Is(err, service.ErrStorage):
		// driver details stay in the logs
	case errors.Is(err, service.ErrValidation):
		msg = err.Error()
	default:
		for _, m := range table {
			if errors.Is(err, m.target) {
				msg = m.target.Error()
				break
			}
		}
	}

	he := echo.NewHTTPError(status, echo.Map{"code": code, "message": msg})
	he.Internal = err
	return he
}

func BadRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"code": "bad_request", "message": msg})
}
