package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Logger returns a configured logger middleware. The format adds the
// workspace_id route param alongside the usual access-log fields, since
// almost every graflow endpoint is scoped to a single workspace's worker
// and that id is the first thing an operator greps logs for.
func Logger() echo.MiddlewareFunc {
	return middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","method":"${method}","uri":"${uri}",` +
			`"workspace_id":"${param:workspace_id}","status":${status},` +
			`"latency":"${latency_human}","error":"${error}"}` + "\n",
		CustomTimeFormat: time.RFC3339,
	})
}
