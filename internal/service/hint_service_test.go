package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/llm"
)

// struggle deja al usuario con baja correccion y alta dependencia de pistas.
func struggle(t *testing.T, svc *BehaviorService, userID string, item domain.Item) {
	t.Helper()
	for i := 0; i < 4; i++ {
		_, err := svc.LearnFromResponse(context.Background(), userID, LearnInput{
			ItemID:    item.ID,
			Answer:    "9",
			TimeSpent: 30 * time.Second,
			HintsUsed: 2,
		})
		if err != nil {
			t.Fatalf("learn: %v", err)
		}
	}
}

func TestPersonalizedHints_UnknownUserGetsGenericFirstLevel(t *testing.T) {
	item := numericItem("cm-1", domain.DomainCoreMath, 1, 0, 0)
	svc, _ := newBehaviorFixture(t, []domain.Item{item}, nil)

	hints, err := svc.PersonalizedHints(context.Background(), "nobody", item.ID, domain.HintContext{Attempts: 1})
	if err != nil {
		t.Fatalf("hints: %v", err)
	}
	if len(hints) != 1 {
		t.Fatalf("expected one hint, got %d", len(hints))
	}
	h := hints[0]
	if h.Level != 1 || h.Kind != domain.HintStrategic || h.Source != "generic" || h.Content != "first cm-1" {
		t.Fatalf("unexpected hint: %+v", h)
	}
}

func TestPersonalizedHints_LevelFollowsStruggle(t *testing.T) {
	item := numericItem("cm-1", domain.DomainCoreMath, 1, 0, 0)
	svc, _ := newBehaviorFixture(t, []domain.Item{item}, nil)
	struggle(t, svc, "u1", item)
	ctx := context.Background()

	hints, err := svc.PersonalizedHints(ctx, "u1", item.ID, domain.HintContext{Attempts: 2})
	if err != nil {
		t.Fatalf("hints: %v", err)
	}
	if len(hints) != 3 {
		t.Fatalf("expected the full ladder, got %d hints", len(hints))
	}
	for i, h := range hints {
		if h.Level != i+1 || h.Kind != levelKinds[i] || h.Source != "ladder" {
			t.Fatalf("unexpected hint %d: %+v", i, h)
		}
	}
	if hints[2].Content != "third cm-1" {
		t.Fatalf("expected item ladder content, got %q", hints[2].Content)
	}
}

func TestPersonalizedHints_EncouragementAfterRepeatedAttempts(t *testing.T) {
	item := numericItem("cm-1", domain.DomainCoreMath, 1, 0, 0)
	svc, _ := newBehaviorFixture(t, []domain.Item{item}, nil)
	struggle(t, svc, "u1", item)

	hints, err := svc.PersonalizedHints(context.Background(), "u1", item.ID, domain.HintContext{Attempts: 3})
	if err != nil {
		t.Fatalf("hints: %v", err)
	}
	if len(hints) != maxHints {
		t.Fatalf("expected %d hints, got %d", maxHints, len(hints))
	}
	if hints[0].Level != 2 || hints[1].Level != 3 {
		t.Fatalf("expected the two deepest levels, got %+v", hints)
	}
	last := hints[2]
	if last.Kind != domain.HintEncouragement || last.Content != encouragements[3] {
		t.Fatalf("unexpected encouragement: %+v", last)
	}
}

func TestPersonalizedHints_GenericLadderWhenItemHasNone(t *testing.T) {
	item := numericItem("bare", domain.DomainCoreMath, 1, 0, 0)
	item.Hints = nil
	svc, _ := newBehaviorFixture(t, []domain.Item{item}, nil)

	hints, err := svc.PersonalizedHints(context.Background(), "nobody", item.ID, domain.HintContext{Attempts: 2})
	if err != nil {
		t.Fatalf("hints: %v", err)
	}
	if len(hints) != 2 || hints[1].Content != genericLadder[domain.HintConceptual] {
		t.Fatalf("expected generic ladder up to level 2, got %+v", hints)
	}
}

func TestPersonalizedHints_Validation(t *testing.T) {
	item := numericItem("cm-1", domain.DomainCoreMath, 1, 0, 0)
	svc, _ := newBehaviorFixture(t, []domain.Item{item}, nil)
	ctx := context.Background()

	if _, err := svc.PersonalizedHints(ctx, "u1", "missing", domain.HintContext{}); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := svc.PersonalizedHints(ctx, " ", item.ID, domain.HintContext{}); !errors.Is(err, ErrInvalidBehaviorInput) {
		t.Fatalf("expected ErrInvalidBehaviorInput, got %v", err)
	}
	if _, err := svc.PersonalizedHints(ctx, "u1", item.ID, domain.HintContext{Attempts: -1}); !errors.Is(err, ErrInvalidBehaviorInput) {
		t.Fatalf("expected ErrInvalidBehaviorInput, got %v", err)
	}
}

func TestPersonalizedHints_LLMWriter(t *testing.T) {
	item := numericItem("cm-1", domain.DomainCoreMath, 1, 0, 0)

	t.Run("rephrased for known users", func(t *testing.T) {
		client := &llm.MockClient{Response: "  Try isolating the unknown first.  "}
		svc, _ := newBehaviorFixture(t, []domain.Item{item}, NewLLMHintWriter(client))
		struggle(t, svc, "u1", item)

		hints, err := svc.PersonalizedHints(context.Background(), "u1", item.ID, domain.HintContext{Attempts: 1})
		if err != nil {
			t.Fatalf("hints: %v", err)
		}
		for _, h := range hints {
			if h.Source != "llm" || h.Content != "Try isolating the unknown first." {
				t.Fatalf("expected llm rephrasing, got %+v", h)
			}
		}
		prompts := client.Prompts()
		if len(prompts) != len(hints) || !strings.Contains(prompts[0], "question cm-1") {
			t.Fatalf("unexpected prompts: %v", prompts)
		}
	})

	t.Run("falls back to ladder on failure", func(t *testing.T) {
		client := &llm.MockClient{Err: errors.New("provider down")}
		svc, _ := newBehaviorFixture(t, []domain.Item{item}, NewLLMHintWriter(client))
		struggle(t, svc, "u1", item)

		hints, err := svc.PersonalizedHints(context.Background(), "u1", item.ID, domain.HintContext{Attempts: 1})
		if err != nil {
			t.Fatalf("hints: %v", err)
		}
		for _, h := range hints {
			if h.Source != "ladder" {
				t.Fatalf("expected ladder fallback, got %+v", h)
			}
		}
	})

	t.Run("unknown users skip the writer", func(t *testing.T) {
		client := &llm.MockClient{Response: "rephrased"}
		svc, _ := newBehaviorFixture(t, []domain.Item{item}, NewLLMHintWriter(client))
		if _, err := svc.PersonalizedHints(context.Background(), "nobody", item.ID, domain.HintContext{}); err != nil {
			t.Fatalf("hints: %v", err)
		}
		if len(client.Prompts()) != 0 {
			t.Fatalf("writer should not be called for unknown users")
		}
	})
}

func TestHintLevel(t *testing.T) {
	cases := map[int]int{0: 1, 1: 2, 2: 2, 3: 3, 5: 3}
	for score, want := range cases {
		if got := hintLevel(score); got != want {
			t.Fatalf("hintLevel(%d) = %d, want %d", score, got, want)
		}
	}
}

func TestStruggleScore_SlowPace(t *testing.T) {
	item := numericItem("cm-1", domain.DomainCoreMath, 1, 0, 0)
	p := domain.NewBehavioralProfile("u1")
	p.Bands[domain.BandMedium] = domain.BandStats{ResponseTime: domain.EWStat{Mean: 20, Count: 3}, Count: 3}
	p.Responses = 3
	p.RecentCorrectness = 0.9

	if got := struggleScore(p, true, item, domain.HintContext{TimeSpent: 25 * time.Second}); got != 0 {
		t.Fatalf("expected no struggle at normal pace, got %d", got)
	}
	if got := struggleScore(p, true, item, domain.HintContext{TimeSpent: 45 * time.Second}); got != 1 {
		t.Fatalf("expected slow pace to count, got %d", got)
	}
}

func TestPersonalizedHints_CountTowardNextResponse(t *testing.T) {
	item := numericItem("cm-1", domain.DomainCoreMath, 1, 0, 0)
	clock := newFakeClock()
	sel := unlimitedSelector(mustBank(t, []domain.Item{item}, false))
	svc := NewBehaviorService(nil, sel, NewMemoryProfileStore(), nil, nil, BehaviorOptions{
		HintTTL: 10 * time.Minute,
		Now:     clock.Now,
	})
	ctx := context.Background()

	if _, err := svc.PersonalizedHints(ctx, "u1", item.ID, domain.HintContext{Attempts: 1}); err != nil {
		t.Fatalf("hints: %v", err)
	}
	p, err := svc.LearnFromResponse(ctx, "u1", LearnInput{ItemID: item.ID, Answer: "1", TimeSpent: 5 * time.Second})
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if p.HintRate != 1 {
		t.Fatalf("a hint request before the answer should count as hint use, got rate %.2f", p.HintRate)
	}

	// Otro usuario no hereda los pedidos.
	if _, err := svc.PersonalizedHints(ctx, "u2", item.ID, domain.HintContext{}); err != nil {
		t.Fatalf("hints: %v", err)
	}
	if n := svc.TakeHintRequests("u1", item.ID); n != 0 {
		t.Fatalf("expected no pending requests for u1, got %d", n)
	}

	// Un pedido viejo ya no se atribuye a la respuesta.
	clock.Advance(11 * time.Minute)
	if n := svc.TakeHintRequests("u2", item.ID); n != 0 {
		t.Fatalf("expired requests must be dropped, got %d", n)
	}
}
