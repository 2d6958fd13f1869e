package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"eiq-engine/internal/domain"
)

// ErrProfileConflict indica que otra escritura gano todos los reintentos.
var ErrProfileConflict = errors.New("profile update conflict")

// ProfileStore guarda un perfil conductual por usuario.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (domain.BehavioralProfile, bool, error)
	Save(ctx context.Context, profile domain.BehavioralProfile) error
	// Update aplica fn sobre el perfil actual (o uno nuevo) y lo guarda sin
	// pisar escrituras concurrentes de otras instancias.
	Update(ctx context.Context, userID string, fn func(*domain.BehavioralProfile)) (domain.BehavioralProfile, error)
}

type memoryProfileStore struct {
	mu    sync.RWMutex
	items map[string]domain.BehavioralProfile
}

func NewMemoryProfileStore() ProfileStore {
	return &memoryProfileStore{items: make(map[string]domain.BehavioralProfile)}
}

func (s *memoryProfileStore) Get(_ context.Context, userID string) (domain.BehavioralProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[userID]
	if !ok {
		return domain.BehavioralProfile{}, false, nil
	}
	return p.Clone(), true, nil
}

func (s *memoryProfileStore) Save(_ context.Context, profile domain.BehavioralProfile) error {
	if strings.TrimSpace(profile.UserID) == "" {
		return errors.New("profile without user id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[profile.UserID] = profile.Clone()
	return nil
}

func (s *memoryProfileStore) Update(_ context.Context, userID string, fn func(*domain.BehavioralProfile)) (domain.BehavioralProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.BehavioralProfile{}, errors.New("profile without user id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[userID]
	if ok {
		p = p.Clone()
	} else {
		p = domain.NewBehavioralProfile(userID)
	}
	fn(&p)
	s.items[userID] = p.Clone()
	return p, nil
}

// redisProfileSwapScript escribe ARGV[2] solo si la clave sigue valiendo
// ARGV[1]; ARGV[1] vacio exige que la clave no exista.
const redisProfileSwapScript = `
local current = redis.call("GET", KEYS[1])
if ARGV[1] == "" then
  if current then
    return 0
  end
elseif current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2])
return 1
`

type redisKVClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisProfileStore struct {
	client   redisKVClient
	prefix   string
	timeout  time.Duration
	attempts int
}

// NewRedisProfileStore guarda los perfiles como JSON sin expiracion.
func NewRedisProfileStore(client *redis.Client) ProfileStore {
	if client == nil {
		return nil
	}
	return newRedisProfileStore(client)
}

func newRedisProfileStore(client redisKVClient) *redisProfileStore {
	return &redisProfileStore{
		client:  client,
		prefix:   "behavior:profile:",
		timeout:  500 * time.Millisecond,
		attempts: 5,
	}
}

func (s *redisProfileStore) Get(ctx context.Context, userID string) (domain.BehavioralProfile, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.BehavioralProfile{}, false, nil
	}
	raw, err := s.load(ctx, userID)
	if err != nil || raw == "" {
		return domain.BehavioralProfile{}, false, err
	}
	profile, err := decodeProfile(userID, raw)
	if err != nil {
		return domain.BehavioralProfile{}, false, err
	}
	return profile, true, nil
}

// load devuelve el JSON guardado tal cual; "" si la clave no existe.
func (s *redisProfileStore) load(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.client.Get(ctx, s.prefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return raw, err
}

func decodeProfile(userID, raw string) (domain.BehavioralProfile, error) {
	profile := domain.NewBehavioralProfile(userID)
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return domain.BehavioralProfile{}, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	// Clone reconstruye los mapas que el JSON pudo dejar en nil.
	return profile.Clone(), nil
}

// Update lee, aplica fn y escribe con un compare-and-set en Lua. Si otra
// instancia escribio en el medio se vuelve a leer y a aplicar fn.
func (s *redisProfileStore) Update(ctx context.Context, userID string, fn func(*domain.BehavioralProfile)) (domain.BehavioralProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.BehavioralProfile{}, errors.New("profile without user id")
	}
	key := s.prefix + userID
	for attempt := 0; attempt < s.attempts; attempt++ {
		raw, err := s.load(ctx, userID)
		if err != nil {
			return domain.BehavioralProfile{}, err
		}
		profile := domain.NewBehavioralProfile(userID)
		if raw != "" {
			if profile, err = decodeProfile(userID, raw); err != nil {
				return domain.BehavioralProfile{}, err
			}
		}
		fn(&profile)
		next, err := json.Marshal(profile)
		if err != nil {
			return domain.BehavioralProfile{}, fmt.Errorf("encode profile %s: %w", userID, err)
		}
		swapped, err := s.swap(ctx, key, raw, string(next))
		if err != nil {
			return domain.BehavioralProfile{}, err
		}
		if swapped {
			return profile, nil
		}
	}
	return domain.BehavioralProfile{}, fmt.Errorf("%w: %s", ErrProfileConflict, userID)
}

func (s *redisProfileStore) swap(ctx context.Context, key, expected, next string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.client.Eval(ctx, redisProfileSwapScript, []string{key}, expected, next).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisProfileStore) Save(ctx context.Context, profile domain.BehavioralProfile) error {
	if strings.TrimSpace(profile.UserID) == "" {
		return errors.New("profile without user id")
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", profile.UserID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+profile.UserID, raw, 0).Err()
}
