package service

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"eiq-engine/internal/domain"
)

func seedScores(t *testing.T, store ScoreStore, userID string, scores ...float64) {
	t.Helper()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	for i, s := range scores {
		err := store.Append(context.Background(), domain.ScorePoint{
			SessionID:  userID + "-" + string(rune('a'+i)),
			UserID:     userID,
			Score:      s,
			RecordedAt: base.AddDate(0, 0, 10*i),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func newPredictor(scores ScoreStore, profiles ProfileStore, now time.Time) *GrowthPredictor {
	return NewGrowthPredictor(zap.NewNop(), scores, profiles, nil, GrowthOptions{
		MinSessions: 1,
		HorizonDays: 30,
		Now:         func() time.Time { return now },
	})
}

func TestPredict_InsufficientHistory(t *testing.T) {
	scores := NewMemoryScoreStore()
	seedScores(t, scores, "u1", 500, 520)
	// MinSessions por debajo de 3 se eleva a 3.
	g := newPredictor(scores, nil, time.Now())

	_, err := g.Predict(context.Background(), "u1")
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
	var detail *InsufficientHistoryError
	if !errors.As(err, &detail) || detail.Have != 2 || detail.Need != 3 {
		t.Fatalf("expected counts 2/3, got %+v", detail)
	}

	if _, err := g.Predict(context.Background(), "nobody"); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory for empty history, got %v", err)
	}
}

func TestPredict_LinearTrend(t *testing.T) {
	scores := NewMemoryScoreStore()
	// Tendencia perfecta de 2 puntos por dia.
	seedScores(t, scores, "u1", 400, 420, 440, 460)
	g := newPredictor(scores, nil, time.Now())

	pred, err := g.Predict(context.Background(), "u1")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if math.Abs(pred.SlopePerDay-2) > 1e-9 {
		t.Fatalf("expected slope 2, got %v", pred.SlopePerDay)
	}
	if math.Abs(pred.ProjectedScore-520) > 1e-6 {
		t.Fatalf("expected projection 520 at 30 days, got %v", pred.ProjectedScore)
	}
	if math.Abs(pred.Upper-pred.Lower) > 1e-6 {
		t.Fatalf("a perfect fit should have a zero-width interval, got [%v, %v]", pred.Lower, pred.Upper)
	}
	if pred.CurrentScore != 460 || pred.SessionsUsed != 4 || pred.ConfidenceLevel != 0.95 {
		t.Fatalf("unexpected prediction: %+v", pred)
	}
	if len(pred.Projections) != 3 || pred.Projections[2].HorizonDays != 180 {
		t.Fatalf("unexpected projections: %+v", pred.Projections)
	}
	if math.Abs(pred.Projections[2].Score-820) > 1e-6 {
		t.Fatalf("expected 820 at 180 days, got %v", pred.Projections[2].Score)
	}
}

func TestPredict_IntervalAndClamp(t *testing.T) {
	scores := NewMemoryScoreStore()
	seedScores(t, scores, "noisy", 500, 560, 470, 590, 520)
	seedScores(t, scores, "soaring", 850, 900, 950)
	g := newPredictor(scores, nil, time.Now())
	ctx := context.Background()

	noisy, err := g.Predict(ctx, "noisy")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !(noisy.Lower < noisy.ProjectedScore && noisy.ProjectedScore < noisy.Upper) {
		t.Fatalf("expected a proper interval, got [%v, %v] around %v", noisy.Lower, noisy.Upper, noisy.ProjectedScore)
	}
	if noisy.Projections[2].Upper-noisy.Projections[2].Lower <= noisy.Upper-noisy.Lower {
		t.Fatalf("interval should widen with the horizon")
	}

	soaring, err := g.Predict(ctx, "soaring")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if soaring.ProjectedScore != 1000 || soaring.Upper != 1000 {
		t.Fatalf("projection must be clamped to 1000, got %+v", soaring)
	}
}

func TestPredict_DeterministicAcrossClock(t *testing.T) {
	scores := NewMemoryScoreStore()
	seedScores(t, scores, "u1", 480, 510, 495, 530)
	profiles := NewMemoryProfileStore()
	if err := profiles.Save(context.Background(), sampleProfile("u1")); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	first, err := newPredictor(scores, profiles, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)).Predict(context.Background(), "u1")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	second, err := newPredictor(scores, profiles, time.Date(2027, 9, 9, 0, 0, 0, 0, time.UTC)).Predict(context.Background(), "u1")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	first.GeneratedAt, second.GeneratedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("prediction depends on the wall clock:\n%+v\n%+v", first, second)
	}
}

func TestGrowthFactors(t *testing.T) {
	t.Run("without profile", func(t *testing.T) {
		factors, interventions := growthFactors(-1, domain.BehavioralProfile{}, false)
		if !reflect.DeepEqual(factors, []string{"declining score trend"}) {
			t.Fatalf("unexpected factors: %v", factors)
		}
		if len(interventions) != 1 {
			t.Fatalf("unexpected interventions: %v", interventions)
		}
	})

	t.Run("with profile", func(t *testing.T) {
		p := domain.NewBehavioralProfile("u1")
		p.Responses = 10
		p.RecentCorrectness = 0.3
		p.HintRate = 0.8
		p.Errors[domain.ErrorCareless] = 4
		p.Errors[domain.ErrorConceptual] = 2
		p.Domains[domain.DomainCoreMath] = domain.DomainStats{Accuracy: 0.9, Count: 5}
		p.Domains[domain.DomainAIConceptual] = domain.DomainStats{Accuracy: 0.2, Count: 5}

		factors, interventions := growthFactors(1, p, true)
		wantFactors := []string{
			"steady upward score trend",
			"low recent accuracy",
			"frequent careless errors",
			"heavy hint reliance",
			"strength in core-math",
			"weakness in ai-conceptual",
		}
		if !reflect.DeepEqual(factors, wantFactors) {
			t.Fatalf("unexpected factors: %v", factors)
		}
		if len(interventions) != 3 {
			t.Fatalf("unexpected interventions: %v", interventions)
		}
	})
}

func TestTCritical(t *testing.T) {
	if !math.IsInf(tCritical(0), 1) {
		t.Fatalf("expected infinite critical value without residual degrees of freedom")
	}
	if tCritical(1) != 12.706 || tCritical(30) != 2.042 || tCritical(1000) != 1.96 {
		t.Fatalf("unexpected t table values")
	}
}
