package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/service"
)

type HealthHandler struct {
	service *service.HealthService
}

func NewHealthHandler(service *service.HealthService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Connections handles GET /health/connections.
func (h *HealthHandler) Connections(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Connections(c.Request.Context()))
}
