package service

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/metrics"
)

// ScoredItem es un candidato con su informacion en el theta actual.
type ScoredItem struct {
	Item        domain.Item
	Information float64
	Exposure    int64
	tieBreak    uint64
}

// ItemSelector elige el siguiente item por maxima informacion con control de exposicion.
type ItemSelector struct {
	bank     *ItemBank
	exposure ExposureTracker
	policy   ExposurePolicy
	metrics  *metrics.Metrics
	random   func() uint64
}

func NewItemSelector(bank *ItemBank, exposure ExposureTracker, policy ExposurePolicy, m *metrics.Metrics) *ItemSelector {
	if exposure == nil {
		exposure = NewMemoryExposureTracker()
	}
	return &ItemSelector{
		bank:     bank,
		exposure: exposure,
		policy:   policy,
		metrics:  m,
		random:   rand.Uint64,
	}
}

// Bank expone la foto de items usada por el selector.
func (s *ItemSelector) Bank() *ItemBank { return s.bank }

// Exposure expone el contador compartido.
func (s *ItemSelector) Exposure() ExposureTracker { return s.exposure }

// SelectNext administra el item mas informativo del dominio que no este en
// administered. Primero recorre los que estan bajo el tope de exposicion; si
// ninguno entra, cae al menos expuesto con el conteo observado como tope, asi
// una carrera perdida no se convierte en doble asignacion. Devuelve nil cuando
// el dominio no tiene items sin administrar o todos cambiaron entre la lectura
// y el intento. El incremento de exposicion ocurre aca y solo aca.
func (s *ItemSelector) SelectNext(ctx context.Context, theta float64, d domain.Domain, administered map[string]struct{}) (*domain.Item, error) {
	started := time.Now()
	eligible, overflow, limit, err := s.rank(ctx, theta, d, administered)
	if err != nil {
		return nil, err
	}
	for _, cand := range eligible {
		ok, err := s.exposure.TryAdminister(ctx, cand.Item.ID, limit)
		if err != nil {
			return nil, fmt.Errorf("administer item %s: %w", cand.Item.ID, err)
		}
		if ok {
			item := cand.Item
			s.metrics.ObserveSelection(string(d), started, true)
			return &item, nil
		}
	}
	for _, cand := range softCap(eligible, overflow) {
		ok, err := s.exposure.TryAdminister(ctx, cand.Item.ID, cand.Exposure+1)
		if err != nil {
			return nil, fmt.Errorf("administer item %s: %w", cand.Item.ID, err)
		}
		if ok {
			item := cand.Item
			s.metrics.ObserveSelection(string(d), started, true)
			return &item, nil
		}
	}
	s.metrics.ObserveSelection(string(d), started, false)
	return nil, nil
}

// Shortlist devuelve hasta k candidatos ya ordenados, sin administrarlos. Si
// todos superan el tope devuelve los menos expuestos, igual que SelectNext.
func (s *ItemSelector) Shortlist(ctx context.Context, theta float64, d domain.Domain, excluded map[string]struct{}, k int) ([]ScoredItem, error) {
	eligible, overflow, _, err := s.rank(ctx, theta, d, excluded)
	if err != nil {
		return nil, err
	}
	ranked := eligible
	if len(ranked) == 0 {
		ranked = overflow
	}
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// softCap ordena la segunda pasada: todos los candidatos por exposicion
// ascendente, cada uno con el conteo que se leyo en rank.
func softCap(eligible, overflow []ScoredItem) []ScoredItem {
	out := make([]ScoredItem, 0, len(eligible)+len(overflow))
	out = append(out, eligible...)
	out = append(out, overflow...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Exposure < out[j].Exposure
	})
	return out
}

// rank separa los candidatos bajo el tope (eligible) de los que ya lo
// alcanzaron (overflow). overflow queda ordenado por exposicion ascendente.
func (s *ItemSelector) rank(ctx context.Context, theta float64, d domain.Domain, excluded map[string]struct{}) ([]ScoredItem, []ScoredItem, int64, error) {
	candidates := s.bank.Query(d, excluded)
	if len(candidates) == 0 {
		return nil, nil, 0, nil
	}
	sessions, err := s.exposure.DomainSessions(ctx, d)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("domain sessions: %w", err)
	}
	limit := s.policy.Limit(sessions)

	ids := make([]string, len(candidates))
	for i, it := range candidates {
		ids[i] = it.ID
	}
	counts, err := s.exposure.Counts(ctx, ids)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("exposure counts: %w", err)
	}

	var eligible, overflow []ScoredItem
	for _, it := range candidates {
		cand := ScoredItem{
			Item:        it,
			Information: Information(theta, it.IRT),
			Exposure:    counts[it.ID],
			tieBreak:    s.random(),
		}
		if cand.Exposure >= limit {
			overflow = append(overflow, cand)
			continue
		}
		eligible = append(eligible, cand)
	}
	// El banco de respaldo es chico y sin calibrar: ahi manda la exposicion.
	sortCandidates(eligible, s.bank.Degraded())
	sortCandidates(overflow, true)
	return eligible, overflow, limit, nil
}

func sortCandidates(ranked []ScoredItem, exposureFirst bool) {
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if exposureFirst && a.Exposure != b.Exposure {
			return a.Exposure < b.Exposure
		}
		ia, ib := quantize(a.Information), quantize(b.Information)
		if ia != ib {
			return ia > ib
		}
		if a.Exposure != b.Exposure {
			return a.Exposure < b.Exposure
		}
		return a.tieBreak < b.tieBreak
	})
}

// quantize evita que el ruido de punto flotante rompa empates reales.
func quantize(v float64) int64 {
	return int64(math.Round(v * 1e9))
}
