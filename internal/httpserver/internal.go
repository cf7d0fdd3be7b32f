package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_service/internal/httperr"
	"github.com/Skotchmaster/user_service/internal/service"
	"github.com/Skotchmaster/user_service/internal/transport"
	"github.com/Skotchmaster/user_service/internal/util"
)

// InternalHTTP serves lookups for other services behind the static API key.
type InternalHTTP struct {
	Svc *service.UserService
}

// GetByID refuses banned users so callers cannot act on their behalf.
func (h *InternalHTTP) GetByID(c echo.Context) error {
	id, err := util.ParseID(c.Param("id"))
	if err != nil {
		return httperr.BadRequest(err.Error())
	}
	user, err := h.Svc.GetInfo(c.Request().Context(), id)
	if err != nil {
		return httperr.FromError(err)
	}
	if user.IsBanned {
		return httperr.FromError(service.ErrAccountBanned)
	}
	return c.JSON(http.StatusOK, transport.ToMinimal(user))
}

func (h *InternalHTTP) Search(c echo.Context) error {
	var id *int64
	if raw := c.QueryParam("id"); raw != "" {
		parsed, err := util.ParseID(raw)
		if err != nil {
			return httperr.BadRequest(err.Error())
		}
		id = &parsed
	}
	user, err := h.Svc.SearchMinimal(c.Request().Context(), id, c.QueryParam("email"))
	if err != nil {
		return httperr.FromError(err)
	}
	return c.JSON(http.StatusOK, transport.ToMinimal(user))
}
