package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-erp/backend/internal/version"
)

type healthResponse struct {
	Status string `json:"status"`
	version.Info
}

// HealthHandler reports liveness together with the running build.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Info: version.Current()})
}
