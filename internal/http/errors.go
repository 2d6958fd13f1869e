package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eiq-engine/internal/service"
)

// writeServiceError traduce los errores de servicio a codigos HTTP. Los no
// reconocidos se registran y devuelven 500 con un mensaje generico.
func writeServiceError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrNoEligibleItem):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidAssessmentRequest),
		errors.Is(err, service.ErrDomainNotRequested),
		errors.Is(err, service.ErrInvalidBehaviorInput),
		errors.Is(err, service.ErrInvalidResponseInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionTerminated),
		errors.Is(err, service.ErrInvalidResponseSubmission),
		errors.Is(err, service.ErrDomainCompleted),
		errors.Is(err, service.ErrProfileConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
