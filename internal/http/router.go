package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"eiq-engine/internal/metrics"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	m *metrics.Metrics,
	verifier TokenVerifier,
	healthH *HealthHandler,
	assessH *AssessmentHandler,
	behaviorH *BehaviorHandler,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()

	// Middlewares basicos: logging, metricas y recovery.
	r.Use(zapLoggerMiddleware(logger), metricsMiddleware(m), gin.Recovery())

	r.GET("/healthz", healthH.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("", jsonContentTypeMiddleware(), JWTAuthMiddleware(verifier))

	assessments := api.Group("/assessments")
	assessments.POST("", assessH.StartAssessment)
	assessments.GET("/:id/next", assessH.NextItem)
	assessments.POST("/:id/responses", assessH.SubmitResponse)
	assessments.POST("/:id/abandon", assessH.Abandon)
	assessments.GET("/:id/results", assessH.Results)

	behavior := api.Group("/behavior")
	behavior.POST("/responses", behaviorH.LearnFromResponse)
	behavior.POST("/adaptive-question", behaviorH.AdaptedQuestion)
	behavior.POST("/hints", behaviorH.PersonalizedHints)
	behavior.GET("/eiq-prediction", behaviorH.PredictGrowth)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// metricsMiddleware registra conteo y latencia por ruta. Usa el patron de la
// ruta para no explotar la cardinalidad con ids de sesion.
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
