// Package api implements the quote/swap HTTP surface (F): it reads the
// price index (D), dispatches to the builder registry (E), falls back to
// the external aggregator (G) on a miss, and finalizes the resulting
// instructions into an unsigned, encoded transaction.
package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Config holds HTTP-server-level settings.
type Config struct {
	Addr    string
	DevMode bool
}

// Deps bundles what's needed to construct a Server.
type Deps struct {
	Handlers *Handlers
	Config   Config
}

// Server wraps an Echo instance with the project's lifecycle conventions.
type Server struct {
	e      *echo.Echo
	cfg    Config
	closed chan struct{}
}

// NewServer builds a Server with recovery, request logging and the fixed
// timeouts the service has always used.
func NewServer(deps Deps) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 75 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	RegisterRoutes(e, deps.Handlers, deps.Config)

	return &Server{e: e, cfg: deps.Config, closed: make(chan struct{})}, nil
}

// Start begins serving on the configured address, blocking until Shutdown.
func (s *Server) Start() error {
	return s.e.Start(s.cfg.Addr)
}

// Shutdown gracefully stops the server, bounded to 10 seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	defer close(s.closed)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

// WaitClosed blocks until shutdown completes or ctx is done.
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

func setJSONContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return next(c)
	}
}

func setNoCacheHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}
