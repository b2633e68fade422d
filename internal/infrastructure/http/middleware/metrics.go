package middleware

import (
	"time"

	"strconv"

	"github.com/graflow/graflow/internal/infrastructure/monitoring"
	"github.com/labstack/echo/v4"
)

// Metrics creates a middleware that records Prometheus metrics for HTTP requests
func Metrics(m *monitoring.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			method := c.Request().Method
			path := c.Path()
			status := strconv.Itoa(c.Response().Status)

			m.RecordHTTPRequest(method, path, status, duration)

			return err
		}
	}
}
