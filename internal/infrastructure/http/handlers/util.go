package handlers

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/graflow/graflow/internal/pkg/ids"
)

func newID() string {
	return ids.New()
}

// withTimeout bounds a request's wait on a mutation's apply-latch by the
// shorter of the request's own context and d (§5 cancellation/timeouts).
func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}
