package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/metrics"
)

var ErrInsufficientHistory = errors.New("insufficient history")

// InsufficientHistoryError indica cuantas sesiones hay y cuantas se necesitan.
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%s: have %d completed sessions, need %d", ErrInsufficientHistory, e.Have, e.Need)
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }

// projectionHorizons son los horizontes extra que acompanan a la prediccion.
var projectionHorizons = []int{30, 90, 180}

// tQuantile975 es el cuantil 0.975 de la t de Student para 1..30 grados de libertad.
var tQuantile975 = []float64{
	12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
	2.201, 2.179, 2.160, 2.145, 2.131, 2.120, 2.110, 2.101, 2.093, 2.086,
	2.080, 2.074, 2.069, 2.064, 2.060, 2.056, 2.052, 2.048, 2.045, 2.042,
}

func tCritical(df int) float64 {
	switch {
	case df <= 0:
		return math.Inf(1)
	case df <= len(tQuantile975):
		return tQuantile975[df-1]
	case df <= 40:
		return 2.021
	case df <= 60:
		return 2.000
	case df <= 120:
		return 1.980
	default:
		return 1.960
	}
}

// GrowthOptions configura el predictor.
type GrowthOptions struct {
	MinSessions int
	HorizonDays int
	Now         func() time.Time
}

// GrowthPredictor proyecta el puntaje EiQ con una regresion lineal sobre el
// historial de sesiones completadas. No usa aleatoriedad: el mismo historial
// produce la misma prediccion.
type GrowthPredictor struct {
	logger   *zap.Logger
	scores   ScoreStore
	profiles ProfileStore
	metrics  *metrics.Metrics
	opts     GrowthOptions
}

func NewGrowthPredictor(logger *zap.Logger, scores ScoreStore, profiles ProfileStore, m *metrics.Metrics, opts GrowthOptions) *GrowthPredictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Con menos de tres puntos no hay varianza residual.
	if opts.MinSessions < 3 {
		opts.MinSessions = 3
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 30
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &GrowthPredictor{
		logger:   logger,
		scores:   scores,
		profiles: profiles,
		metrics:  m,
		opts:     opts,
	}
}

type trendFit struct {
	n         int
	meanX     float64
	sxx       float64
	slope     float64
	intercept float64
	residual  float64
	lastX     float64
}

// Predict calcula la tendencia y el intervalo de prediccion al 95%.
func (g *GrowthPredictor) Predict(ctx context.Context, userID string) (domain.Prediction, error) {
	if g.scores == nil {
		return domain.Prediction{}, errors.New("growth predictor not configured")
	}
	history, err := g.scores.ListByUser(ctx, userID)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("load score history: %w", err)
	}
	if len(history) < g.opts.MinSessions {
		g.metrics.RecordPrediction("insufficient_history")
		return domain.Prediction{}, &InsufficientHistoryError{Have: len(history), Need: g.opts.MinSessions}
	}
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].RecordedAt.Equal(history[j].RecordedAt) {
			return history[i].SessionID < history[j].SessionID
		}
		return history[i].RecordedAt.Before(history[j].RecordedAt)
	})

	fit := fitTrend(history)
	projected, lower, upper := fit.project(float64(g.opts.HorizonDays))

	pred := domain.Prediction{
		UserID:          userID,
		CurrentScore:    history[len(history)-1].Score,
		ProjectedScore:  projected,
		Lower:           lower,
		Upper:           upper,
		ConfidenceLevel: 0.95,
		SlopePerDay:     fit.slope,
		HorizonDays:     g.opts.HorizonDays,
		SessionsUsed:    fit.n,
		GeneratedAt:     g.opts.Now(),
	}
	for _, h := range projectionHorizons {
		score, lo, hi := fit.project(float64(h))
		pred.Projections = append(pred.Projections, domain.Projection{
			HorizonDays: h,
			Score:       score,
			Lower:       lo,
			Upper:       hi,
		})
	}

	var profile domain.BehavioralProfile
	found := false
	if g.profiles != nil {
		profile, found, err = g.profiles.Get(ctx, userID)
		if err != nil {
			g.logger.Warn("load profile for prediction failed", zap.String("user_id", userID), zap.Error(err))
			found = false
		}
	}
	pred.GrowthFactors, pred.Interventions = growthFactors(fit.slope, profile, found)

	g.metrics.RecordPrediction("ok")
	return pred, nil
}

func fitTrend(history []domain.ScorePoint) trendFit {
	n := len(history)
	origin := history[0].RecordedAt
	xs := make([]float64, n)
	ys := make([]float64, n)
	var sumX, sumY float64
	for i, p := range history {
		xs[i] = p.RecordedAt.Sub(origin).Hours() / 24
		ys[i] = p.Score
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}
	fit := trendFit{n: n, meanX: meanX, sxx: sxx, lastX: xs[n-1]}
	if sxx > 0 {
		fit.slope = sxy / sxx
	}
	fit.intercept = meanY - fit.slope*meanX

	var sse float64
	for i := range xs {
		r := ys[i] - (fit.intercept + fit.slope*xs[i])
		sse += r * r
	}
	if n > 2 {
		fit.residual = math.Sqrt(sse / float64(n-2))
	}
	return fit
}

// project devuelve el puntaje y el intervalo de prediccion a horizon dias de
// la ultima sesion, recortados a [0, 1000].
func (f trendFit) project(horizon float64) (score, lower, upper float64) {
	x0 := f.lastX + horizon
	y := f.intercept + f.slope*x0
	spread := 1 + 1/float64(f.n)
	if f.sxx > 0 {
		spread += (x0 - f.meanX) * (x0 - f.meanX) / f.sxx
	}
	margin := tCritical(f.n-2) * f.residual * math.Sqrt(spread)
	return clampScore(y), clampScore(y - margin), clampScore(y + margin)
}

func clampScore(v float64) float64 {
	return math.Min(math.Max(v, 0), 1000)
}

// growthFactors deriva factores y recomendaciones del perfil conductual en
// un orden fijo.
func growthFactors(slope float64, p domain.BehavioralProfile, found bool) ([]string, []string) {
	factors := []string{}
	interventions := []string{}

	switch {
	case slope > 0.5:
		factors = append(factors, "steady upward score trend")
	case slope < -0.5:
		factors = append(factors, "declining score trend")
		interventions = append(interventions, "Schedule shorter, more frequent practice sessions")
	default:
		factors = append(factors, "stable score trend")
	}
	if !found || p.Responses == 0 {
		if len(interventions) == 0 {
			interventions = append(interventions, "Complete more practice items to personalize recommendations")
		}
		return factors, interventions
	}

	switch {
	case p.RecentCorrectness >= 0.7:
		factors = append(factors, "high recent accuracy")
	case p.RecentCorrectness < 0.4:
		factors = append(factors, "low recent accuracy")
	}

	totalErrors := 0
	for _, n := range p.Errors {
		totalErrors += n
	}
	if totalErrors > 0 {
		if float64(p.Errors[domain.ErrorCareless])/float64(totalErrors) > 0.3 {
			factors = append(factors, "frequent careless errors")
			interventions = append(interventions, "Slow down and double-check answers before submitting")
		}
		if float64(p.Errors[domain.ErrorConceptual])/float64(totalErrors) > 0.5 {
			factors = append(factors, "conceptual gaps")
		}
	}
	if p.HintRate > 0.5 {
		factors = append(factors, "heavy hint reliance")
		interventions = append(interventions, "Attempt problems independently before requesting hints")
	}

	var strongest, weakest domain.Domain
	best, worst := -1.0, 2.0
	for _, d := range domain.AllDomains() {
		ds, ok := p.Domains[d]
		if !ok || ds.Count < 2 {
			continue
		}
		if ds.Accuracy > best {
			best, strongest = ds.Accuracy, d
		}
		if ds.Accuracy < worst {
			worst, weakest = ds.Accuracy, d
		}
	}
	if strongest != "" && best >= 0.75 {
		factors = append(factors, fmt.Sprintf("strength in %s", strongest))
	}
	if weakest != "" && worst < 0.5 {
		factors = append(factors, fmt.Sprintf("weakness in %s", weakest))
		interventions = append(interventions, fmt.Sprintf("Review foundational concepts in %s", weakest))
	}
	if len(interventions) == 0 {
		interventions = append(interventions, "Maintain the current practice routine")
	}
	return factors, interventions
}
