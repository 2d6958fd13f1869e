package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eiq-engine/internal/config"
	"eiq-engine/internal/db"
	apihttp "eiq-engine/internal/http"
	"eiq-engine/internal/llm"
	"eiq-engine/internal/logging"
	"eiq-engine/internal/metrics"
	"eiq-engine/internal/repository"
	"eiq-engine/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	m := metrics.NewMetrics()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
	} else {
		logger.Warn("database url not configured, sessions and scores stay in memory")
	}

	// Sin Postgres el banco arranca degradado con los items embebidos.
	var source service.ItemSource
	if pool != nil {
		source = repository.NewPgItemRepository(pool)
	}
	bank := service.LoadItemBank(ctx, source, service.ItemBankOptions{
		Timeout: cfg.ItemBankLoadTimeout,
		Retries: 1,
		Metrics: m,
	}, logger)

	exposure := service.NewMemoryExposureTracker()
	profiles := service.NewMemoryProfileStore()
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory exposure and profiles", zap.Error(err))
		} else {
			exposure = service.NewRedisExposureTracker(redisClient)
			profiles = service.NewRedisProfileStore(redisClient)
		}
		cancel()
		defer redisClient.Close()
	}

	policy := service.ExposurePolicy{MaxRatio: cfg.ExposureMaxRatio, Floor: cfg.ExposureFloor}
	selector := service.NewItemSelector(bank, exposure, policy, m)
	estimator := service.NewAbilityEstimator(cfg.UseResponseLatency)

	var writer service.HintWriter
	if cfg.LLMAPIKey != "" {
		client := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, logger)
		writer = service.NewLLMHintWriter(client)
	} else {
		logger.Info("llm api key not configured, hints use the item ladder")
	}
	behaviorSvc := service.NewBehaviorService(logger, selector, profiles, writer, m, service.BehaviorOptions{
		Decay:   cfg.ProfileDecay,
		HintTTL: cfg.HintRequestTTL,
	})

	var (
		assessmentRepo repository.AssessmentRepository
		scores         service.ScoreStore
	)
	if pool != nil {
		assessmentRepo = repository.NewPgAssessmentRepository(pool)
		scores = repository.NewPgScoreRepository(pool)
	} else {
		scores = service.NewMemoryScoreStore()
	}
	assessmentSvc := service.NewAssessmentService(
		logger,
		selector,
		estimator,
		assessmentRepo,
		scores,
		behaviorSvc,
		m,
		service.AssessmentOptions{
			DefaultItemsPerDomain: cfg.DefaultItemsPerDomain,
			DefaultSEThreshold:    cfg.DefaultSEThreshold,
			IdleTimeout:           cfg.SessionIdleTimeout,
			Retention:             cfg.SessionRetention,
		},
	)
	predictor := service.NewGrowthPredictor(logger, scores, profiles, m, service.GrowthOptions{
		MinSessions: cfg.PredictMinSessions,
		HorizonDays: cfg.PredictHorizonDays,
	})

	jwtSvc := service.NewJWTService(cfg.JWTSecret, "", 0)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	healthHandler := apihttp.NewHealthHandler(bank)
	assessmentHandler := apihttp.NewAssessmentHandler(logger, assessmentSvc)
	behaviorHandler := apihttp.NewBehaviorHandler(logger, behaviorSvc, predictor)
	router := apihttp.NewRouter(logger, m, jwtSvc, healthHandler, assessmentHandler, behaviorHandler)

	go assessmentSvc.RunJanitor(ctx, cfg.JanitorInterval)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.Bool("item_bank_degraded", bank.Degraded()),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
