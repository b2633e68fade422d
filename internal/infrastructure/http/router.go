// Package http wires the Echo HTTP surface: middleware stack, routes, and
// the handlers that mediate between callers and a workspace's worker.
package http

import (
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/graflow/graflow/internal/domain/runner"
	"github.com/graflow/graflow/internal/infrastructure/http/handlers"
	"github.com/graflow/graflow/internal/infrastructure/http/middleware"
	"github.com/graflow/graflow/internal/infrastructure/monitoring"
	"github.com/graflow/graflow/internal/infrastructure/registry"
	"github.com/graflow/graflow/internal/infrastructure/transport"
)

// Config parameterizes the router.
type Config struct {
	Version         string
	MutationWait    time.Duration
	RateLimitPerSec float64
	RateLimitBurst  int
}

// New builds a fully wired Echo instance.
func New(reg *registry.Registry, bridge *transport.Bridge, metrics *monitoring.Metrics, runners *runner.Registry, cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler()

	e.Use(middleware.Logger())
	e.Use(middleware.Metrics(metrics))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(otelecho.Middleware("graflow"))
	if cfg.RateLimitPerSec > 0 {
		e.Use(middleware.SimpleRateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	}

	systemHandler := handlers.NewSystemHandler(cfg.Version)
	e.GET("/health", systemHandler.Ok)
	e.GET("/info", systemHandler.Info)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	openHandler := handlers.NewOpenHandler(reg)
	e.POST("/workspace/open", openHandler.Open)

	runnerHandler := handlers.NewRunnerHandler(runners, metrics)
	e.POST("/runner/register", runnerHandler.Register)
	e.POST("/runner/heartbeat", runnerHandler.Heartbeat)
	e.POST("/runner/deregister", runnerHandler.Deregister)
	e.GET("/runner/list", runnerHandler.List)

	wsHandler := handlers.NewWorkspaceHandler(reg, cfg.MutationWait)
	streamHandler := handlers.NewStreamHandler(reg, bridge)

	ws := e.Group("/workspace/:workspace_id")
	ws.GET("/get-graph", wsHandler.GetGraph)
	ws.GET("/get-node-log/:id", wsHandler.GetNodeLog)
	ws.POST("/add-node", wsHandler.AddNode)
	ws.POST("/remove-node", wsHandler.RemoveNode)
	ws.POST("/add-edge", wsHandler.AddEdge)
	ws.POST("/remove-edge", wsHandler.RemoveEdge)
	ws.POST("/edit-edge-type", wsHandler.EditEdgeType)
	ws.POST("/edit-status", wsHandler.EditStatus)
	ws.POST("/edit-node-position", wsHandler.EditNodePosition)
	ws.POST("/edit-node-label", wsHandler.EditNodeLabel)
	ws.POST("/edit-wrapper", wsHandler.EditWrapper)
	ws.POST("/save-node-log", wsHandler.SaveNodeLog)
	ws.POST("/run", wsHandler.Run)
	ws.POST("/client-connect", wsHandler.ClientConnect)
	ws.POST("/client-disconnect", wsHandler.ClientDisconnect)
	ws.GET("/stream", streamHandler.Stream)

	return e
}
