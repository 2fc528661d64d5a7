// Package http provides the HTTP server of the interview service.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiaot623/mockinterview/internal/service"
	v1 "github.com/xiaot623/mockinterview/internal/transport/http/v1"
	"github.com/xiaot623/mockinterview/internal/transport/ws"
)

// NewServer creates and configures the HTTP server: the session API, the
// device WebSocket and, when gatherer is set, the metrics endpoint.
func NewServer(svc *service.Service, wsServer *ws.Server, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	v1Handler.RegisterRoutes(e)

	if wsServer != nil {
		e.GET("/ws", wsServer.HandleWebSocket)
	}
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return e
}
