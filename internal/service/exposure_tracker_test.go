package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"

	"eiq-engine/internal/domain"
)

func TestExposurePolicy_Limit(t *testing.T) {
	cases := []struct {
		name     string
		policy   ExposurePolicy
		sessions int64
		want     int64
	}{
		{"floor with no sessions", DefaultExposurePolicy(), 0, 1},
		{"floor for few sessions", DefaultExposurePolicy(), 6, 1},
		{"ratio rounds up", DefaultExposurePolicy(), 7, 2},
		{"fifteen sessions", DefaultExposurePolicy(), 15, 3},
		{"custom floor", ExposurePolicy{MaxRatio: 0.1, Floor: 4}, 10, 4},
		{"disabled", ExposurePolicy{}, 100, NoExposureLimit},
		{"ratio of one disables", ExposurePolicy{MaxRatio: 1}, 100, NoExposureLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.Limit(tc.sessions); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestMemoryExposureTracker_TryAdministerIsAtomic(t *testing.T) {
	tracker := NewMemoryExposureTracker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tracker.TryAdminister(ctx, "item-1", 7)
			if err != nil {
				t.Errorf("try administer: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 7 {
		t.Fatalf("expected exactly 7 grants, got %d", granted)
	}
	n, _ := tracker.CountFor(ctx, "item-1")
	if n != 7 {
		t.Fatalf("expected count 7, got %d", n)
	}
}

func TestMemoryExposureTracker_Counts(t *testing.T) {
	tracker := NewMemoryExposureTracker()
	ctx := context.Background()
	_, _ = tracker.TryAdminister(ctx, "a", 5)
	_, _ = tracker.TryAdminister(ctx, "a", 5)
	_, _ = tracker.TryAdminister(ctx, "b", 5)

	counts, err := tracker.Counts(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["a"] != 2 || counts["b"] != 1 || counts["c"] != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	for i := 0; i < 3; i++ {
		if _, err := tracker.DomainSessionStarted(ctx, domain.DomainCoreMath); err != nil {
			t.Fatalf("session started: %v", err)
		}
	}
	n, _ := tracker.DomainSessions(ctx, domain.DomainCoreMath)
	other, _ := tracker.DomainSessions(ctx, domain.DomainAIConceptual)
	if n != 3 || other != 0 {
		t.Fatalf("unexpected domain sessions: %d / %d", n, other)
	}
}

// fakeRedisHashes emula los comandos de hash y el script de administracion.
type fakeRedisHashes struct {
	mu         sync.Mutex
	hashes     map[string]map[string]int64
	lastScript string
	evalErr    error
}

func newFakeRedisHashes() *fakeRedisHashes {
	return &fakeRedisHashes{hashes: make(map[string]map[string]int64)}
}

func (f *fakeRedisHashes) hash(key string) map[string]int64 {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]int64)
		f.hashes[key] = h
	}
	return h
}

func (f *fakeRedisHashes) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScript = script
	cmd := redis.NewCmd(ctx)
	if f.evalErr != nil {
		cmd.SetErr(f.evalErr)
		return cmd
	}
	field := args[0].(string)
	limit := args[1].(int64)
	h := f.hash(keys[0])
	if h[field] < limit {
		h[field]++
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func (f *fakeRedisHashes) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.hash(key)[field]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(strconv.FormatInt(v, 10))
	return cmd
}

func (f *fakeRedisHashes) HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewSliceCmd(ctx)
	h := f.hash(key)
	vals := make([]interface{}, len(fields))
	for i, field := range fields {
		if v, ok := h[field]; ok {
			vals[i] = strconv.FormatInt(v, 10)
		}
	}
	cmd.SetVal(vals)
	return cmd
}

func (f *fakeRedisHashes) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	h := f.hash(key)
	h[field] += incr
	cmd.SetVal(h[field])
	return cmd
}

func TestRedisExposureTracker(t *testing.T) {
	ctx := context.Background()

	t.Run("administer respects limit", func(t *testing.T) {
		fake := newFakeRedisHashes()
		tracker := newRedisExposureTracker(fake)
		for i := 0; i < 3; i++ {
			ok, err := tracker.TryAdminister(ctx, "item-1", 2)
			if err != nil {
				t.Fatalf("try administer: %v", err)
			}
			if want := i < 2; ok != want {
				t.Fatalf("attempt %d: expected %v, got %v", i, want, ok)
			}
		}
		if fake.lastScript != redisExposureAdministerScript {
			t.Fatalf("expected administer script")
		}
		n, err := tracker.CountFor(ctx, "item-1")
		if err != nil || n != 2 {
			t.Fatalf("expected count 2, got %d (%v)", n, err)
		}
	})

	t.Run("missing counters read as zero", func(t *testing.T) {
		tracker := newRedisExposureTracker(newFakeRedisHashes())
		n, err := tracker.CountFor(ctx, "nope")
		if err != nil || n != 0 {
			t.Fatalf("expected 0, got %d (%v)", n, err)
		}
		sessions, err := tracker.DomainSessions(ctx, domain.DomainCoreMath)
		if err != nil || sessions != 0 {
			t.Fatalf("expected 0 sessions, got %d (%v)", sessions, err)
		}
	})

	t.Run("counts and sessions", func(t *testing.T) {
		tracker := newRedisExposureTracker(newFakeRedisHashes())
		_, _ = tracker.TryAdminister(ctx, "a", 10)
		_, _ = tracker.TryAdminister(ctx, "a", 10)
		counts, err := tracker.Counts(ctx, []string{"a", "b"})
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		if counts["a"] != 2 || counts["b"] != 0 {
			t.Fatalf("unexpected counts: %+v", counts)
		}
		n, err := tracker.DomainSessionStarted(ctx, domain.DomainAppliedReasoning)
		if err != nil || n != 1 {
			t.Fatalf("expected 1 session, got %d (%v)", n, err)
		}
	})

	t.Run("eval error surfaces", func(t *testing.T) {
		fake := newFakeRedisHashes()
		fake.evalErr = errors.New("redis down")
		tracker := newRedisExposureTracker(fake)
		if _, err := tracker.TryAdminister(ctx, "a", 1); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("blank item is never administered", func(t *testing.T) {
		tracker := newRedisExposureTracker(newFakeRedisHashes())
		ok, err := tracker.TryAdminister(ctx, "  ", 10)
		if err != nil || ok {
			t.Fatalf("expected refusal without error, got %v (%v)", ok, err)
		}
	})
}

func TestParseRedisCount(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
	}{
		{"12", 12},
		{int64(4), 4},
		{nil, 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := parseRedisCount(tc.in); got != tc.want {
			t.Fatalf("parseRedisCount(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
