package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes wires every handler and middleware onto e.
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg Config) {
	e.HTTPErrorHandler = NotFoundJSON()

	e.Use(setJSONContentType)
	e.Use(setNoCacheHeaders)

	e.GET("/health", h.Health)

	apiGroup := e.Group("/api")
	apiGroup.GET("/quote/:mint", h.Quote)

	swapGroup := apiGroup.Group("/swap")
	swapGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(2), // 2 requests/sec sustained
		Burst:     5,
		ExpiresIn: time.Minute,
	})))
	swapGroup.POST("/:mint", h.Swap)

	if h.Flags != nil {
		flagGroup := e.Group("/api/flags")
		flagGroup.GET("", h.FlagsList)
		flagGroup.POST("", h.FlagsUpsert)
		flagGroup.GET("/:key", h.FlagsGet)
		flagGroup.PUT("/:key", h.FlagsUpdate)
		flagGroup.DELETE("/:key", h.FlagsDelete)
	}

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
