package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/service"
)

// BehaviorHandler expone el perfil conductual, las pistas y la prediccion.
type BehaviorHandler struct {
	logger    *zap.Logger
	behavior  *service.BehaviorService
	predictor *service.GrowthPredictor
}

func NewBehaviorHandler(logger *zap.Logger, behavior *service.BehaviorService, predictor *service.GrowthPredictor) *BehaviorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BehaviorHandler{
		logger:    logger,
		behavior:  behavior,
		predictor: predictor,
	}
}

// LearnFromResponse maneja POST /behavior/responses.
func (h *BehaviorHandler) LearnFromResponse(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}
	var req struct {
		ItemID      string `json:"item_id" binding:"required"`
		Answer      string `json:"answer"`
		Correct     *bool  `json:"correct"`
		TimeSpentMS int64  `json:"time_spent_ms"`
		HintsUsed   int    `json:"hints_used"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid learn request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	profile, err := h.behavior.LearnFromResponse(c.Request.Context(), userID, service.LearnInput{
		ItemID:    req.ItemID,
		Answer:    req.Answer,
		Correct:   req.Correct,
		TimeSpent: time.Duration(req.TimeSpentMS) * time.Millisecond,
		HintsUsed: req.HintsUsed,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "could not record behavior")
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// AdaptedQuestion maneja POST /behavior/adaptive-question.
func (h *BehaviorHandler) AdaptedQuestion(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}
	var req struct {
		Domain string `json:"domain" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid adaptive question request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	d, err := domain.ParseDomain(req.Domain)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	adapted, err := h.behavior.AdaptedQuestion(c.Request.Context(), userID, d)
	if err != nil {
		writeServiceError(c, h.logger, err, "could not adapt question")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item":       adapted.Item.View(),
		"adaptation": adapted,
	})
}

// PersonalizedHints maneja POST /behavior/hints.
func (h *BehaviorHandler) PersonalizedHints(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}
	var req struct {
		ItemID      string `json:"item_id" binding:"required"`
		Attempts    int    `json:"attempts"`
		TimeSpentMS int64  `json:"time_spent_ms"`
		LastAnswer  string `json:"last_answer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid hints request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	hints, err := h.behavior.PersonalizedHints(c.Request.Context(), userID, req.ItemID, domain.HintContext{
		Attempts:   req.Attempts,
		TimeSpent:  time.Duration(req.TimeSpentMS) * time.Millisecond,
		LastAnswer: req.LastAnswer,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "could not build hints")
		return
	}
	c.JSON(http.StatusOK, gin.H{"hints": hints})
}

// PredictGrowth maneja GET /behavior/eiq-prediction. La falta de historial no
// es un error del cliente: responde 200 con el estado y los conteos.
func (h *BehaviorHandler) PredictGrowth(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}
	pred, err := h.predictor.Predict(c.Request.Context(), userID)
	if err != nil {
		var insufficient *service.InsufficientHistoryError
		if errors.As(err, &insufficient) {
			c.JSON(http.StatusOK, gin.H{
				"status":            "insufficient_history",
				"sessions_recorded": insufficient.Have,
				"sessions_required": insufficient.Need,
			})
			return
		}
		writeServiceError(c, h.logger, err, "could not predict growth")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "prediction": pred})
}
