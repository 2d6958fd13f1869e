package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"eiq-engine/internal/domain"
)

// NoExposureLimit desactiva el tope de exposicion.
const NoExposureLimit int64 = math.MaxInt64

// ExposureTracker cuenta cuantas veces se administro cada item en todas las
// sesiones. Los contadores solo crecen.
type ExposureTracker interface {
	// TryAdminister incrementa el contador si esta por debajo de limit. La
	// comparacion y el incremento son atomicos.
	TryAdminister(ctx context.Context, itemID string, limit int64) (bool, error)
	CountFor(ctx context.Context, itemID string) (int64, error)
	Counts(ctx context.Context, itemIDs []string) (map[string]int64, error)
	DomainSessionStarted(ctx context.Context, d domain.Domain) (int64, error)
	DomainSessions(ctx context.Context, d domain.Domain) (int64, error)
}

// ExposurePolicy fija la exposicion maxima de un item como fraccion de las
// sesiones que pidieron su dominio, con un minimo de Floor.
type ExposurePolicy struct {
	MaxRatio float64
	Floor    int64
}

func DefaultExposurePolicy() ExposurePolicy {
	return ExposurePolicy{MaxRatio: 0.15, Floor: 1}
}

// Limit devuelve el tope vigente para un dominio con sessions sesiones.
func (p ExposurePolicy) Limit(sessions int64) int64 {
	if p.MaxRatio <= 0 || p.MaxRatio >= 1 {
		return NoExposureLimit
	}
	floor := p.Floor
	if floor < 1 {
		floor = 1
	}
	limit := int64(math.Ceil(p.MaxRatio * float64(sessions)))
	if limit < floor {
		return floor
	}
	return limit
}

type memoryExposureTracker struct {
	mu       sync.Mutex
	items    map[string]int64
	sessions map[domain.Domain]int64
}

func NewMemoryExposureTracker() ExposureTracker {
	return &memoryExposureTracker{
		items:    make(map[string]int64),
		sessions: make(map[domain.Domain]int64),
	}
}

func (t *memoryExposureTracker) TryAdminister(_ context.Context, itemID string, limit int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.items[itemID] >= limit {
		return false, nil
	}
	t.items[itemID]++
	return true, nil
}

func (t *memoryExposureTracker) CountFor(_ context.Context, itemID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items[itemID], nil
}

func (t *memoryExposureTracker) Counts(_ context.Context, itemIDs []string) (map[string]int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(itemIDs))
	for _, id := range itemIDs {
		out[id] = t.items[id]
	}
	return out, nil
}

func (t *memoryExposureTracker) DomainSessionStarted(_ context.Context, d domain.Domain) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[d]++
	return t.sessions[d], nil
}

func (t *memoryExposureTracker) DomainSessions(_ context.Context, d domain.Domain) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[d], nil
}

const redisExposureAdministerScript = `
local current = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
if current < tonumber(ARGV[2]) then
  redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
  return 1
end
return 0
`

type redisExposureClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
}

type redisExposureTracker struct {
	client      redisExposureClient
	itemsKey    string
	sessionsKey string
	timeout     time.Duration
}

// NewRedisExposureTracker comparte los contadores entre instancias del API.
func NewRedisExposureTracker(client *redis.Client) ExposureTracker {
	if client == nil {
		return nil
	}
	return newRedisExposureTracker(client)
}

func newRedisExposureTracker(client redisExposureClient) *redisExposureTracker {
	return &redisExposureTracker{
		client:      client,
		itemsKey:    "exposure:items",
		sessionsKey: "exposure:sessions",
		timeout:     500 * time.Millisecond,
	}
}

func (t *redisExposureTracker) TryAdminister(ctx context.Context, itemID string, limit int64) (bool, error) {
	if strings.TrimSpace(itemID) == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	n, err := t.client.Eval(ctx, redisExposureAdministerScript, []string{t.itemsKey}, itemID, limit).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *redisExposureTracker) CountFor(ctx context.Context, itemID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	n, err := t.client.HGet(ctx, t.itemsKey, itemID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (t *redisExposureTracker) Counts(ctx context.Context, itemIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	vals, err := t.client.HMGet(ctx, t.itemsKey, itemIDs...).Result()
	if err != nil {
		return nil, err
	}
	for i, id := range itemIDs {
		if i >= len(vals) {
			break
		}
		out[id] = parseRedisCount(vals[i])
	}
	return out, nil
}

func (t *redisExposureTracker) DomainSessionStarted(ctx context.Context, d domain.Domain) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.client.HIncrBy(ctx, t.sessionsKey, string(d), 1).Result()
}

func (t *redisExposureTracker) DomainSessions(ctx context.Context, d domain.Domain) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	n, err := t.client.HGet(ctx, t.sessionsKey, string(d)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func parseRedisCount(v interface{}) int64 {
	switch val := v.(type) {
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case int64:
		return val
	default:
		return 0
	}
}
