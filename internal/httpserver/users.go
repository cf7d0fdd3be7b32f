package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_service/internal/httperr"
	"github.com/Skotchmaster/user_service/internal/logging"
	"github.com/Skotchmaster/user_service/internal/middleware"
	"github.com/Skotchmaster/user_service/internal/service"
	"github.com/Skotchmaster/user_service/internal/transport"
	"github.com/Skotchmaster/user_service/internal/util"
)

type UsersHTTP struct {
	Svc *service.UserService
}

func (h *UsersHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.register")

	var req transport.CreateUser
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return httperr.BadRequest("invalid body")
	}

	res, err := h.Svc.Register(ctx, req)
	if err != nil {
		return httperr.FromError(err)
	}

	return c.JSON(http.StatusCreated, transport.RegisteredUser{
		User:         transport.ToFull(res.User),
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	})
}

func (h *UsersHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.login")

	var req transport.Credentials
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return httperr.BadRequest("invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return httperr.FromError(err)
	}

	return c.JSON(http.StatusOK, transport.RegisteredUser{
		User:         transport.ToFull(res.User),
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	})
}

// AccessToken expects the refresh token as the Bearer credential.
func (h *UsersHTTP) AccessToken(c echo.Context) error {
	ctx := c.Request().Context()

	refresh, err := service.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return httperr.FromError(err)
	}
	access, err := h.Svc.IssueAccessToken(ctx, refresh)
	if err != nil {
		logging.FromContext(ctx).Warn("access_token_refused", "handler", "users.access_token", "error", err)
		return httperr.FromError(err)
	}
	return c.JSON(http.StatusOK, transport.AccessToken{AccessToken: access})
}

func (h *UsersHTTP) UpdateSelf(c echo.Context) error {
	ctx := c.Request().Context()
	caller := middleware.Claims(c)

	var req transport.OptionalUserData
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest("invalid body")
	}

	user, err := h.Svc.UpdateInfo(ctx, caller.UserID, req)
	if err != nil {
		return httperr.FromError(err)
	}
	return c.JSON(http.StatusOK, transport.ToFull(user))
}

// GetInfo returns the full view when callers ask about themselves.
func (h *UsersHTTP) GetInfo(c echo.Context) error {
	ctx := c.Request().Context()
	caller := middleware.Claims(c)

	id, err := util.ParseID(c.Param("user_id"))
	if err != nil {
		return httperr.BadRequest(err.Error())
	}

	user, err := h.Svc.GetInfo(ctx, id)
	if err != nil {
		return httperr.FromError(err)
	}
	if caller.UserID == id {
		return c.JSON(http.StatusOK, transport.ToFull(user))
	}
	return c.JSON(http.StatusOK, transport.ToMinimal(user))
}

func (h *UsersHTTP) GetInfoMany(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.InfoManyRequest
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest("invalid body")
	}
	if len(req.IDs) > util.MaxPageSize {
		return httperr.BadRequest("too many ids")
	}

	users, err := h.Svc.GetInfoMany(ctx, req.IDs)
	if err != nil {
		return httperr.FromError(err)
	}
	return c.JSON(http.StatusOK, transport.MinimalList(users))
}

func (h *UsersHTTP) SearchByEmail(c echo.Context) error {
	ctx := c.Request().Context()

	email := c.QueryParam("email")
	if email == "" {
		return httperr.BadRequest("email is required")
	}
	user, err := h.Svc.GetByEmail(ctx, email)
	if err != nil {
		return httperr.FromError(err)
	}
	return c.JSON(http.StatusOK, transport.ToMinimal(user))
}
