package service

import (
	"context"
	"testing"

	"eiq-engine/internal/domain"
)

func TestSelectNext_PicksMostInformative(t *testing.T) {
	bank := mustBank(t, []domain.Item{
		numericItem("far", domain.DomainCoreMath, 1.2, 2.5, 0),
		numericItem("near", domain.DomainCoreMath, 1.2, 0.1, 0),
		numericItem("mid", domain.DomainCoreMath, 1.2, -1, 0),
	}, false)
	sel := unlimitedSelector(bank)

	item, err := sel.SelectNext(context.Background(), 0, domain.DomainCoreMath, nil)
	if err != nil {
		t.Fatalf("select next: %v", err)
	}
	if item == nil || item.ID != "near" {
		t.Fatalf("expected item closest to theta, got %+v", item)
	}
	n, _ := sel.Exposure().CountFor(context.Background(), "near")
	if n != 1 {
		t.Fatalf("selection must increment exposure, got %d", n)
	}
}

func TestSelectNext_SkipsAdministeredAndExhausts(t *testing.T) {
	bank := mustBank(t, spreadItems(domain.DomainCoreMath, "cm", 2), false)
	sel := unlimitedSelector(bank)
	administered := map[string]struct{}{"cm-00": {}, "cm-01": {}}

	item, err := sel.SelectNext(context.Background(), 0, domain.DomainCoreMath, administered)
	if err != nil {
		t.Fatalf("select next: %v", err)
	}
	if item != nil {
		t.Fatalf("expected exhaustion, got %s", item.ID)
	}

	item, err = sel.SelectNext(context.Background(), 0, domain.DomainAIConceptual, nil)
	if err != nil || item != nil {
		t.Fatalf("expected nil for a domain without items, got %+v (%v)", item, err)
	}
}

func TestSelectNext_RespectsExposureCap(t *testing.T) {
	bank := mustBank(t, []domain.Item{
		numericItem("best", domain.DomainCoreMath, 1.5, 0, 0),
		numericItem("next", domain.DomainCoreMath, 1.5, 1, 0),
	}, false)
	sel := NewItemSelector(bank, NewMemoryExposureTracker(), DefaultExposurePolicy(), nil)
	ctx := context.Background()
	if _, err := sel.Exposure().DomainSessionStarted(ctx, domain.DomainCoreMath); err != nil {
		t.Fatalf("session started: %v", err)
	}

	first, _ := sel.SelectNext(ctx, 0, domain.DomainCoreMath, nil)
	second, _ := sel.SelectNext(ctx, 0, domain.DomainCoreMath, nil)
	if first == nil || first.ID != "best" {
		t.Fatalf("expected best first, got %+v", first)
	}
	if second == nil || second.ID != "next" {
		t.Fatalf("capped item must be skipped, got %+v", second)
	}
}

func TestSelectNext_SoftCapFallsBackToLeastExposed(t *testing.T) {
	bank := mustBank(t, []domain.Item{
		numericItem("best", domain.DomainCoreMath, 1.5, 0, 0),
		numericItem("next", domain.DomainCoreMath, 1.5, 1, 0),
	}, false)
	sel := NewItemSelector(bank, NewMemoryExposureTracker(), DefaultExposurePolicy(), nil)
	ctx := context.Background()
	_, _ = sel.Exposure().DomainSessionStarted(ctx, domain.DomainCoreMath)
	_, _ = sel.Exposure().TryAdminister(ctx, "best", NoExposureLimit)
	_, _ = sel.Exposure().TryAdminister(ctx, "best", NoExposureLimit)
	_, _ = sel.Exposure().TryAdminister(ctx, "next", NoExposureLimit)

	// Los dos superan el tope de 1: gana el menos expuesto aunque informe menos.
	item, err := sel.SelectNext(ctx, 0, domain.DomainCoreMath, nil)
	if err != nil {
		t.Fatalf("select next: %v", err)
	}
	if item == nil || item.ID != "next" {
		t.Fatalf("expected least exposed item once every item hit the cap, got %+v", item)
	}
	if n, _ := sel.Exposure().CountFor(ctx, "next"); n != 2 {
		t.Fatalf("fallback must still count exposure, got %d", n)
	}

	list, err := sel.Shortlist(ctx, 0, domain.DomainCoreMath, nil, 0)
	if err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("shortlist must fall back to capped items, got %d", len(list))
	}

	item, err = sel.SelectNext(ctx, 0, domain.DomainCoreMath, map[string]struct{}{"best": {}, "next": {}})
	if err != nil || item != nil {
		t.Fatalf("expected nil only when nothing is left to administer, got %+v (%v)", item, err)
	}
}

func TestRank_SplitsCappedCandidates(t *testing.T) {
	bank := mustBank(t, spreadItems(domain.DomainCoreMath, "cm", 4), false)
	sel := NewItemSelector(bank, NewMemoryExposureTracker(), ExposurePolicy{MaxRatio: 0.5, Floor: 1}, nil)
	ctx := context.Background()
	_, _ = sel.Exposure().DomainSessionStarted(ctx, domain.DomainCoreMath)
	_, _ = sel.Exposure().TryAdminister(ctx, "cm-01", NoExposureLimit)
	_, _ = sel.Exposure().TryAdminister(ctx, "cm-01", NoExposureLimit)
	_, _ = sel.Exposure().TryAdminister(ctx, "cm-02", NoExposureLimit)

	eligible, overflow, limit, err := sel.rank(ctx, 0, domain.DomainCoreMath, nil)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if limit != 1 {
		t.Fatalf("expected limit 1, got %d", limit)
	}
	if len(eligible) != 2 || len(overflow) != 2 {
		t.Fatalf("expected 2 eligible and 2 capped, got %d and %d", len(eligible), len(overflow))
	}
	if overflow[0].Item.ID != "cm-02" || overflow[1].Item.ID != "cm-01" {
		t.Fatalf("capped candidates must be ordered by exposure, got %s, %s", overflow[0].Item.ID, overflow[1].Item.ID)
	}
}

func TestRank_TiesPreferLessExposedThenRandom(t *testing.T) {
	items := []domain.Item{
		numericItem("twin-a", domain.DomainCoreMath, 1.3, 0.5, 0),
		numericItem("twin-b", domain.DomainCoreMath, 1.3, 0.5, 0),
		numericItem("twin-c", domain.DomainCoreMath, 1.3, 0.5, 0),
	}
	bank := mustBank(t, items, false)
	sel := unlimitedSelector(bank)
	ctx := context.Background()
	_, _ = sel.Exposure().TryAdminister(ctx, "twin-a", NoExposureLimit)
	_, _ = sel.Exposure().TryAdminister(ctx, "twin-b", NoExposureLimit)
	_, _ = sel.Exposure().TryAdminister(ctx, "twin-b", NoExposureLimit)

	ranked, _, _, err := sel.rank(ctx, 0.5, domain.DomainCoreMath, nil)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if ranked[0].Item.ID != "twin-c" || ranked[1].Item.ID != "twin-a" || ranked[2].Item.ID != "twin-b" {
		t.Fatalf("expected exposure order c, a, b; got %s, %s, %s", ranked[0].Item.ID, ranked[1].Item.ID, ranked[2].Item.ID)
	}

	// Con igual exposicion decide el desempate aleatorio.
	fresh := unlimitedSelector(bank)
	seq := []uint64{30, 10, 20}
	i := 0
	fresh.random = func() uint64 {
		v := seq[i%len(seq)]
		i++
		return v
	}
	ranked, _, _, err = fresh.rank(ctx, 0.5, domain.DomainCoreMath, nil)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if ranked[0].Item.ID != "twin-b" || ranked[1].Item.ID != "twin-c" || ranked[2].Item.ID != "twin-a" {
		t.Fatalf("expected tie-break order b, c, a; got %s, %s, %s", ranked[0].Item.ID, ranked[1].Item.ID, ranked[2].Item.ID)
	}
}

func TestShortlist_DoesNotAdminister(t *testing.T) {
	bank := mustBank(t, spreadItems(domain.DomainAIConceptual, "ai", 8), false)
	sel := unlimitedSelector(bank)
	ctx := context.Background()

	list, err := sel.Shortlist(ctx, 0, domain.DomainAIConceptual, map[string]struct{}{"ai-03": {}}, 5)
	if err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(list))
	}
	for i, c := range list {
		if c.Item.ID == "ai-03" {
			t.Fatalf("excluded item returned")
		}
		if i > 0 && c.Information > list[i-1].Information+1e-9 {
			t.Fatalf("shortlist not ordered by information")
		}
		if n, _ := sel.Exposure().CountFor(ctx, c.Item.ID); n != 0 {
			t.Fatalf("shortlist must not touch exposure")
		}
	}
}

func TestRank_DegradedBankPrefersLeastExposed(t *testing.T) {
	bank := mustBank(t, []domain.Item{
		numericItem("best", domain.DomainCoreMath, 2, 0, 0),
		numericItem("weak", domain.DomainCoreMath, 0.5, 2, 0),
	}, true)
	sel := unlimitedSelector(bank)
	ctx := context.Background()
	_, _ = sel.Exposure().TryAdminister(ctx, "best", NoExposureLimit)

	item, err := sel.SelectNext(ctx, 0, domain.DomainCoreMath, nil)
	if err != nil {
		t.Fatalf("select next: %v", err)
	}
	if item == nil || item.ID != "weak" {
		t.Fatalf("degraded bank should spread exposure, got %+v", item)
	}
}
