package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"eiq-engine/internal/domain"
)

// PgScoreRepository guarda el historial de puntajes compuestos por usuario.
type PgScoreRepository struct {
	pool *pgxpool.Pool
}

func NewPgScoreRepository(pool *pgxpool.Pool) *PgScoreRepository {
	return &PgScoreRepository{pool: pool}
}

func (r *PgScoreRepository) Append(ctx context.Context, point domain.ScorePoint) error {
	const query = `
		INSERT INTO score_history (session_id, user_id, score, theta, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		point.SessionID,
		point.UserID,
		point.Score,
		point.Theta,
		point.RecordedAt,
	)
	return err
}

func (r *PgScoreRepository) ListByUser(ctx context.Context, userID string) ([]domain.ScorePoint, error) {
	const query = `
		SELECT session_id, user_id, score, theta, recorded_at
		FROM score_history
		WHERE user_id = $1
		ORDER BY recorded_at ASC, session_id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScorePoint
	for rows.Next() {
		var p domain.ScorePoint
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.Score, &p.Theta, &p.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
