package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eiq-engine/internal/service"
)

// HealthHandler reporta el estado del banco de items cargado.
type HealthHandler struct {
	bank *service.ItemBank
}

func NewHealthHandler(bank *service.ItemBank) *HealthHandler {
	return &HealthHandler{bank: bank}
}

// Health maneja GET /healthz. Un banco degradado sigue sirviendo, asi que
// responde 200 e informa el estado.
func (h *HealthHandler) Health(c *gin.Context) {
	if h.bank == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	counts := make(map[string]int)
	for _, d := range h.bank.Domains() {
		counts[string(d)] = h.bank.Count(d)
	}
	status := "ok"
	if h.bank.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"degraded":  h.bank.Degraded(),
		"items":     h.bank.Size(),
		"by_domain": counts,
		"loaded_at": h.bank.LoadedAt(),
	})
}
