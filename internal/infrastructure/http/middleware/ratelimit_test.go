package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graflow/graflow/internal/infrastructure/http/middleware"
)

func TestSimpleRateLimit_BlocksAfterBurstExhausted(t *testing.T) {
	e := echo.New()
	e.Use(middleware.SimpleRateLimit(1, 2))
	e.GET("/workspace/open", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/workspace/open", nil)
		req.RemoteAddr = "203.0.113.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}

func TestSimpleRateLimit_ExemptsHealthEndpoint(t *testing.T) {
	e := echo.New()
	e.Use(middleware.SimpleRateLimit(0.001, 1))
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "203.0.113.2:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestSimpleLimiter_GetLimiterReturnsSameInstancePerKey(t *testing.T) {
	l := middleware.NewSimpleLimiter(1, 5)
	a := l.GetLimiter("client-a")
	b := l.GetLimiter("client-a")
	assert.Same(t, a, b)

	c := l.GetLimiter("client-b")
	assert.NotSame(t, a, c)
}
