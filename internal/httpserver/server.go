package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/voxrelay/voxrelay/internal/capture"
	"github.com/voxrelay/voxrelay/internal/gateway"
	"github.com/voxrelay/voxrelay/internal/settings"
)

// Server bundles the HTTP router and its dependencies.
type Server struct {
	Router http.Handler
}

// Deps are the collaborators the HTTP surface relays to.
type Deps struct {
	Pool            *gateway.Pool
	Store           *settings.Store
	Recognizer      capture.Recognizer
	DispatchTimeout time.Duration
	Logger          *zap.Logger
}

// New constructs the HTTP server with routes.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	// Permissive CORS for browser demos; restrict in production.
	e.Use(middleware.CORS())

	// Liveness only; dependency health is deliberately not reported.
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	h := &handlers{deps: deps}
	api := e.Group("/api/v1")
	api.POST("/complete", h.complete)
	api.GET("/agents", h.agents)
	api.GET("/settings", h.getSettings)
	api.PUT("/settings", h.putSettings)
	e.GET("/ws", h.voiceSession)

	return &Server{Router: e}
}
