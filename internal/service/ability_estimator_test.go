package service

import (
	"testing"
	"time"

	"eiq-engine/internal/domain"
)

func TestAbilityEstimator_Monotonic(t *testing.T) {
	priors := []float64{-6, -4, -1.3, 0, 0.8, 4, 6}
	items := []domain.Item{
		numericItem("easy", domain.DomainCoreMath, 0.8, -2, 0),
		numericItem("mid", domain.DomainCoreMath, 1.5, 0, 0.2),
		numericItem("hard", domain.DomainCoreMath, 2.2, 2.5, 0.25),
		numericItem("broken", domain.DomainCoreMath, -1, 0, 0.9),
	}
	times := []time.Duration{0, 2 * time.Second, 30 * time.Second, 5 * time.Minute}

	for _, useLatency := range []bool{false, true} {
		est := NewAbilityEstimator(useLatency)
		for _, theta := range priors {
			for _, item := range items {
				for _, spent := range times {
					prior := AbilityEstimate{Theta: theta, Information: 1.5, StandardError: 0.6, Administered: 2}
					up := est.Update(prior, item, true, spent)
					down := est.Update(prior, item, false, spent)
					if up.Theta < theta {
						t.Fatalf("correct answer lowered theta: prior %.2f item %s -> %.4f", theta, item.ID, up.Theta)
					}
					if down.Theta > theta {
						t.Fatalf("incorrect answer raised theta: prior %.2f item %s -> %.4f", theta, item.ID, down.Theta)
					}
					if up.Administered != 3 || down.Administered != 3 {
						t.Fatalf("expected administered count to advance")
					}
				}
			}
		}
	}
}

func TestAbilityEstimator_StandardErrorShrinks(t *testing.T) {
	est := NewAbilityEstimator(false)
	cur := PriorEstimate()
	prevSE := cur.StandardError
	for i, item := range spreadItems(domain.DomainAppliedReasoning, "ar", 8) {
		cur = est.Update(cur, item, i%2 == 0, 0)
		if cur.StandardError >= prevSE {
			t.Fatalf("standard error did not shrink at step %d: %.4f >= %.4f", i, cur.StandardError, prevSE)
		}
		prevSE = cur.StandardError
	}
	if cur.Theta < thetaMin || cur.Theta > thetaMax {
		t.Fatalf("theta escaped bounds: %v", cur.Theta)
	}
}

func TestAbilityEstimator_StepsShrinkWithEvidence(t *testing.T) {
	est := NewAbilityEstimator(false)
	item := numericItem("mid", domain.DomainCoreMath, 1.2, 0, 0)
	fresh := est.Update(AbilityEstimate{Theta: 0}, item, true, 0)
	seasoned := est.Update(AbilityEstimate{Theta: 0, Information: 10}, item, true, 0)
	if seasoned.Theta-0 >= fresh.Theta-0 {
		t.Fatalf("expected smaller step with more accumulated information: %.4f vs %.4f", seasoned.Theta, fresh.Theta)
	}
}

func TestLatencyFactor(t *testing.T) {
	item := numericItem("mid", domain.DomainCoreMath, 1, 0, 0)
	cases := []struct {
		name    string
		correct bool
		spent   time.Duration
		want    float64
	}{
		{"no timing", true, 0, 1},
		{"fast correct", true, 5 * time.Second, 1.2},
		{"slow correct", true, 2 * time.Minute, 0.8},
		{"fast incorrect", false, 5 * time.Second, 0.8},
		{"normal incorrect", false, 30 * time.Second, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := latencyFactor(item, tc.correct, tc.spent); got != tc.want {
				t.Fatalf("expected %.1f, got %.1f", tc.want, got)
			}
		})
	}
}
