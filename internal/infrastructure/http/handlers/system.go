package handlers

import (
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
)

// SystemHandler handles process-level health/info endpoints.
type SystemHandler struct {
	version string
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(version string) *SystemHandler {
	return &SystemHandler{version: version}
}

// OkResponse is the body of GET /health.
type OkResponse struct {
	Ok bool `json:"ok"`
}

// InfoResponse is the body of GET /info.
type InfoResponse struct {
	Version      string   `json:"version"`
	GoVersion    string   `json:"go_version"`
	Platform     string   `json:"platform"`
	Architecture string   `json:"arch"`
	Capabilities []string `json:"capabilities"`
}

// Ok handles GET /health.
func (h *SystemHandler) Ok(c echo.Context) error {
	return c.JSON(http.StatusOK, OkResponse{Ok: true})
}

// Info handles GET /info.
func (h *SystemHandler) Info(c echo.Context) error {
	return c.JSON(http.StatusOK, InfoResponse{
		Version:      h.version,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		Capabilities: []string{
			"workspaces",
			"runs",
			"streaming",
		},
	})
}
