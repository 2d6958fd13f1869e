package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/service"
)

// AssessmentHandler expone el ciclo de vida de las evaluaciones adaptativas.
type AssessmentHandler struct {
	logger      *zap.Logger
	assessments *service.AssessmentService
}

func NewAssessmentHandler(logger *zap.Logger, assessments *service.AssessmentService) *AssessmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentHandler{
		logger:      logger,
		assessments: assessments,
	}
}

type domainPlanRequest struct {
	Domain      string  `json:"domain" binding:"required"`
	MaxItems    int     `json:"max_items"`
	MinItems    int     `json:"min_items"`
	SEThreshold float64 `json:"se_threshold"`
}

// StartAssessment maneja POST /assessments.
func (h *AssessmentHandler) StartAssessment(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}
	var req struct {
		Domains []domainPlanRequest `json:"domains" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid start assessment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	plans := make([]domain.DomainPlan, 0, len(req.Domains))
	for _, p := range req.Domains {
		d, err := domain.ParseDomain(p.Domain)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		plans = append(plans, domain.DomainPlan{
			Domain:      d,
			MaxItems:    p.MaxItems,
			MinItems:    p.MinItems,
			SEThreshold: p.SEThreshold,
		})
	}

	view, err := h.assessments.StartAssessment(c.Request.Context(), userID, plans)
	if err != nil {
		writeServiceError(c, h.logger, err, "could not start assessment")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": view})
}

// NextItem maneja GET /assessments/:id/next?domain=.
func (h *AssessmentHandler) NextItem(c *gin.Context) {
	sessionID, ok := h.ownedSession(c)
	if !ok {
		return
	}
	d, err := domain.ParseDomain(c.Query("domain"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.assessments.NextItem(c.Request.Context(), sessionID, d)
	if err != nil {
		writeServiceError(c, h.logger, err, "could not select next item")
		return
	}
	view, err := h.assessments.Session(sessionID)
	if err != nil {
		writeServiceError(c, h.logger, err, "could not load session")
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, gin.H{"item": nil, "exhausted": true, "session": view})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item.View(), "exhausted": false, "session": view})
}

// SubmitResponse maneja POST /assessments/:id/responses.
func (h *AssessmentHandler) SubmitResponse(c *gin.Context) {
	sessionID, ok := h.ownedSession(c)
	if !ok {
		return
	}
	var req struct {
		ItemID      string `json:"item_id" binding:"required"`
		Answer      string `json:"answer"`
		TimeSpentMS int64  `json:"time_spent_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid submit response request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.assessments.SubmitResponse(
		c.Request.Context(),
		sessionID,
		req.ItemID,
		req.Answer,
		time.Duration(req.TimeSpentMS)*time.Millisecond,
	)
	if err != nil {
		writeServiceError(c, h.logger, err, "could not record response")
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// Abandon maneja POST /assessments/:id/abandon.
func (h *AssessmentHandler) Abandon(c *gin.Context) {
	sessionID, ok := h.ownedSession(c)
	if !ok {
		return
	}
	view, err := h.assessments.Abandon(c.Request.Context(), sessionID)
	if err != nil {
		writeServiceError(c, h.logger, err, "could not abandon assessment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

// Results maneja GET /assessments/:id/results.
func (h *AssessmentHandler) Results(c *gin.Context) {
	sessionID, ok := h.ownedSession(c)
	if !ok {
		return
	}
	res, err := h.assessments.Results(c.Request.Context(), sessionID)
	if err != nil {
		writeServiceError(c, h.logger, err, "could not compute results")
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": res})
}

// ownedSession valida que la sesion exista y sea del usuario autenticado.
// Una sesion ajena se reporta como inexistente.
func (h *AssessmentHandler) ownedSession(c *gin.Context) (string, bool) {
	userID, ok := userIDFrom(c)
	if !ok {
		return "", false
	}
	sessionID := c.Param("id")
	view, err := h.assessments.Session(sessionID)
	if err != nil {
		writeServiceError(c, h.logger, err, "could not load session")
		return "", false
	}
	if view.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrSessionNotFound.Error()})
		return "", false
	}
	return sessionID, true
}
