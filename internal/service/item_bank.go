package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/fallback"
	"eiq-engine/internal/metrics"
)

var ErrItemBankUnavailable = errors.New("item bank unavailable")

// ItemSource es el almacen de items calibrados (Postgres en produccion).
type ItemSource interface {
	ListActive(ctx context.Context) ([]domain.Item, error)
}

// ItemBankOptions controla la carga inicial del banco.
type ItemBankOptions struct {
	Timeout  time.Duration
	Retries  int
	Fallback func() ([]domain.Item, error)
	Metrics  *metrics.Metrics
}

// ItemBank es una foto inmutable del banco de items. Se comparte sin locks
// entre todas las sesiones.
type ItemBank struct {
	byID     map[string]domain.Item
	byDomain map[domain.Domain][]domain.Item
	degraded bool
	loadedAt time.Time
}

// NewItemBank indexa los items por id y por dominio (solo activos, ordenados por id).
func NewItemBank(items []domain.Item, degraded bool) (*ItemBank, error) {
	bank := &ItemBank{
		byID:     make(map[string]domain.Item, len(items)),
		byDomain: make(map[domain.Domain][]domain.Item),
		degraded: degraded,
		loadedAt: time.Now().UTC(),
	}
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return nil, errors.New("item with empty id")
		}
		if !it.Domain.Valid() {
			return nil, fmt.Errorf("item %s: unknown domain %q", it.ID, it.Domain)
		}
		if it.Content == nil {
			return nil, fmt.Errorf("item %s: missing content", it.ID)
		}
		if _, dup := bank.byID[it.ID]; dup {
			return nil, fmt.Errorf("item %s: duplicated id", it.ID)
		}
		it.Hints = append([]string(nil), it.Hints...)
		bank.byID[it.ID] = it
		if it.Active {
			bank.byDomain[it.Domain] = append(bank.byDomain[it.Domain], it)
		}
	}
	for d := range bank.byDomain {
		list := bank.byDomain[d]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return bank, nil
}

// LoadItemBank carga el banco desde source con timeout y un reintento. Si no
// lo logra devuelve el banco embebido marcado como degradado; nunca falla.
func LoadItemBank(ctx context.Context, source ItemSource, opts ItemBankOptions, logger *zap.Logger) *ItemBank {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Fallback == nil {
		opts.Fallback = fallback.Items
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		bank, err := loadOnce(ctx, source, opts.Timeout)
		if err == nil {
			logger.Info("item bank loaded",
				zap.Int("items", bank.Size()),
				zap.Int("attempt", attempt+1),
			)
			opts.Metrics.SetItemBank(false, bank.domainCounts())
			return bank
		}
		lastErr = err
		logger.Debug("item bank load attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	logger.Warn("item bank degraded, serving embedded fallback items", zap.Error(lastErr))
	bank := fallbackBank(opts.Fallback, logger)
	opts.Metrics.SetItemBank(true, bank.domainCounts())
	return bank
}

func loadOnce(ctx context.Context, source ItemSource, timeout time.Duration) (*ItemBank, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: no item source configured", ErrItemBankUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		items []domain.Item
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		items, err := source.ListActive(ctx)
		ch <- result{items: items, err: err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrItemBankUnavailable, ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrItemBankUnavailable, res.err)
	}
	bank, err := NewItemBank(res.items, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrItemBankUnavailable, err)
	}
	if bank.activeCount() == 0 {
		return nil, fmt.Errorf("%w: no active items", ErrItemBankUnavailable)
	}
	return bank, nil
}

func fallbackBank(load func() ([]domain.Item, error), logger *zap.Logger) *ItemBank {
	items, err := load()
	if err == nil {
		var bank *ItemBank
		if bank, err = NewItemBank(items, true); err == nil {
			return bank
		}
	}
	logger.Error("fallback item bank invalid", zap.Error(err))
	empty, _ := NewItemBank(nil, true)
	return empty
}

// Query devuelve los items activos del dominio que no estan en excluding.
func (b *ItemBank) Query(d domain.Domain, excluding map[string]struct{}) []domain.Item {
	list := b.byDomain[d]
	out := make([]domain.Item, 0, len(list))
	for _, it := range list {
		if _, skip := excluding[it.ID]; skip {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Item busca un item por id, incluidos los inactivos.
func (b *ItemBank) Item(id string) (domain.Item, bool) {
	it, ok := b.byID[id]
	return it, ok
}

// Domains devuelve los dominios con al menos un item activo.
func (b *ItemBank) Domains() []domain.Domain {
	out := make([]domain.Domain, 0, len(b.byDomain))
	for _, d := range domain.AllDomains() {
		if len(b.byDomain[d]) > 0 {
			out = append(out, d)
		}
	}
	return out
}

func (b *ItemBank) Count(d domain.Domain) int { return len(b.byDomain[d]) }
func (b *ItemBank) Size() int                 { return len(b.byID) }
func (b *ItemBank) Degraded() bool            { return b.degraded }
func (b *ItemBank) LoadedAt() time.Time       { return b.loadedAt }

func (b *ItemBank) activeCount() int {
	n := 0
	for _, list := range b.byDomain {
		n += len(list)
	}
	return n
}

func (b *ItemBank) domainCounts() map[string]int {
	out := make(map[string]int, len(b.byDomain))
	for _, d := range domain.AllDomains() {
		out[string(d)] = len(b.byDomain[d])
	}
	return out
}
