package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_service/internal/acl"
	"github.com/Skotchmaster/user_service/internal/httperr"
	"github.com/Skotchmaster/user_service/internal/logging"
	"github.com/Skotchmaster/user_service/internal/middleware"
	"github.com/Skotchmaster/user_service/internal/service"
	"github.com/Skotchmaster/user_service/internal/transport"
	"github.com/Skotchmaster/user_service/internal/util"
)

type AdminHTTP struct {
	Svc *service.UserService
}

func (h *AdminHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()

	page := util.ClampPage(util.ParseIntDefault(c.QueryParam("page"), 1))
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	users, total, err := h.Svc.GetAll(ctx, offset, limit)
	if err != nil {
		return httperr.FromError(err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": transport.FullList(users),
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *AdminHTTP) Get(c echo.Context) error {
	id, err := util.ParseID(c.Param("user_id"))
	if err != nil {
		return httperr.BadRequest(err.Error())
	}
	user, err := h.Svc.GetInfo(c.Request().Context(), id)
	if err != nil {
		return httperr.FromError(err)
	}
	return c.JSON(http.StatusOK, transport.ToFull(user))
}

// Patch updates profile fields, and optionally the password and role. A role
// change additionally requires UpdateRole. Nothing is written unless the whole
// body is valid.
func (h *AdminHTTP) Patch(c echo.Context) error {
	ctx := c.Request().Context()
	caller := middleware.Claims(c)

	id, err := util.ParseID(c.Param("user_id"))
	if err != nil {
		return httperr.BadRequest(err.Error())
	}
	var req transport.AdminUserPatch
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest("invalid body")
	}

	if req.Role != nil {
		if err := service.Authorize(acl.UpdateRole, caller); err != nil {
			logging.FromContext(ctx).Warn("role_change_denied", "caller_id", caller.UserID, "user_id", id)
			return httperr.FromError(err)
		}
	}

	user, err := h.Svc.AdminUpdate(ctx, caller.UserID, id, req)
	if err != nil {
		return httperr.FromError(err)
	}
	return c.JSON(http.StatusOK, transport.ToFull(user))
}

func (h *AdminHTTP) Ban(c echo.Context) error {
	ctx := c.Request().Context()
	caller := middleware.Claims(c)

	id, err := util.ParseID(c.Param("user_id"))
	if err != nil {
		return httperr.BadRequest(err.Error())
	}
	var req transport.BanRequest
	if err := c.Bind(&req); err != nil || req.IsBanned == nil {
		return httperr.BadRequest("is_banned is required")
	}

	user, err := h.Svc.SetBanned(ctx, caller.UserID, id, *req.IsBanned)
	if err != nil {
		return httperr.FromError(err)
	}
	return c.JSON(http.StatusOK, transport.ToFull(user))
}

func (h *AdminHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	caller := middleware.Claims(c)

	id, err := util.ParseID(c.Param("user_id"))
	if err != nil {
		return httperr.BadRequest(err.Error())
	}
	if err := h.Svc.Delete(ctx, caller.UserID, id); err != nil {
		return httperr.FromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
