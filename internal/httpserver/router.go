package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/user_service/internal/acl"
	"github.com/Skotchmaster/user_service/internal/logging"
	"github.com/Skotchmaster/user_service/internal/metrics"
	"github.com/Skotchmaster/user_service/internal/middleware"
	"github.com/Skotchmaster/user_service/internal/service"
)

type Deps struct {
	Logger *slog.Logger

	Users    *UsersHTTP
	Admin    *AdminHTTP
	Internal *InternalHTTP
	Gate     *service.Gate

	InternalAPIKey string
	LoginRate      rate.Limit
	LoginBurst     int

	// Ready reports whether the service can reach its storage.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.Use(echomw.RequestID())
	e.Use(metrics.Instrument())
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(echomw.Recover())

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				logging.FromContext(c.Request().Context()).Error("readiness_failed", "error", err)
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	guard := func(p acl.Permission) echo.MiddlewareFunc { return middleware.PermittedAction(d.Gate, p) }
	limited := loginLimiter(d.LoginRate, d.LoginBurst)

	e.POST("/", d.Users.Register)
	e.POST("/login", d.Users.Login, limited)
	e.POST("/access_token", d.Users.AccessToken, limited)
	e.PATCH("/", d.Users.UpdateSelf, guard(acl.UpdateSelf))
	e.GET("/info/:user_id", d.Users.GetInfo, guard(acl.GetUserMinimalInfo))
	e.POST("/info-many", d.Users.GetInfoMany, guard(acl.GetUserMinimalInfo))
	e.GET("/search-by-email", d.Users.SearchByEmail, guard(acl.SearchUserMinimalInfo))

	admin := e.Group("/admin")
	admin.GET("", d.Admin.List, guard(acl.GetUserFullInfo))
	admin.GET("/:user_id", d.Admin.Get, guard(acl.GetUserFullInfo))
	admin.PATCH("/:user_id", d.Admin.Patch, guard(acl.UpdateAnyUser))
	admin.POST("/:user_id/ban", d.Admin.Ban, guard(acl.BanUser))
	admin.DELETE("/:user_id", d.Admin.Delete, guard(acl.DeleteUser))

	internal := e.Group("/internal", middleware.InternalAPIKey(d.InternalAPIKey))
	internal.GET("/search", d.Internal.Search)
	internal.GET("/:id", d.Internal.GetByID)
}

// loginLimiter throttles credential and refresh endpoints per client IP.
func loginLimiter(limit rate.Limit, burst int) echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:      limit,
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logging.FromContext(c.Request().Context()).Warn("rate_limited", "identifier", identifier)
			return echo.NewHTTPError(http.StatusTooManyRequests, echo.Map{
				"code": "rate_limited", "message": "too many requests",
			})
		},
	})
}
