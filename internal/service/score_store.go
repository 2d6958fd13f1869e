package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"eiq-engine/internal/domain"
)

// ScoreStore guarda el puntaje compuesto de cada sesion completada.
// repository.PgScoreRepository la implementa contra Postgres.
type ScoreStore interface {
	Append(ctx context.Context, point domain.ScorePoint) error
	ListByUser(ctx context.Context, userID string) ([]domain.ScorePoint, error)
}

type memoryScoreStore struct {
	mu     sync.Mutex
	byUser map[string][]domain.ScorePoint
}

func NewMemoryScoreStore() ScoreStore {
	return &memoryScoreStore{byUser: make(map[string][]domain.ScorePoint)}
}

func (s *memoryScoreStore) Append(_ context.Context, point domain.ScorePoint) error {
	if strings.TrimSpace(point.UserID) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byUser[point.UserID] {
		if existing.SessionID == point.SessionID {
			return nil
		}
	}
	s.byUser[point.UserID] = append(s.byUser[point.UserID], point)
	return nil
}

// ListByUser devuelve una copia ordenada por fecha.
func (s *memoryScoreStore) ListByUser(_ context.Context, userID string) ([]domain.ScorePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.ScorePoint(nil), s.byUser[userID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out, nil
}
