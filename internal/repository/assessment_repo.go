package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"eiq-engine/internal/domain"
)

// AssessmentRepository persiste sesiones y respuestas. La fuente de verdad en
// caliente es la memoria del servicio; esto es el registro durable.
type AssessmentRepository interface {
	CreateSession(ctx context.Context, session domain.Session) error
	UpdateSessionState(ctx context.Context, id string, state domain.SessionState, endedAt *time.Time) error
	InsertResponse(ctx context.Context, response domain.Response) error
}

type PgAssessmentRepository struct {
	pool *pgxpool.Pool
}

func NewPgAssessmentRepository(pool *pgxpool.Pool) *PgAssessmentRepository {
	return &PgAssessmentRepository{pool: pool}
}

func (r *PgAssessmentRepository) CreateSession(ctx context.Context, session domain.Session) error {
	plans, err := json.Marshal(session.Plans)
	if err != nil {
		return fmt.Errorf("marshal plans: %w", err)
	}
	const query = `
		INSERT INTO assessment_sessions (id, user_id, plans, state, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		plans,
		string(session.State),
		session.StartedAt,
	)
	return err
}

func (r *PgAssessmentRepository) UpdateSessionState(ctx context.Context, id string, state domain.SessionState, endedAt *time.Time) error {
	const query = `
		UPDATE assessment_sessions
		SET state = $2, ended_at = $3
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, string(state), endedAt)
	return err
}

func (r *PgAssessmentRepository) InsertResponse(ctx context.Context, response domain.Response) error {
	const query = `
		INSERT INTO assessment_responses
			(id, session_id, user_id, item_id, domain, answer, correct, distance, time_spent_ms, hints_used, theta_after, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		response.ID,
		response.SessionID,
		response.UserID,
		response.ItemID,
		string(response.Domain),
		response.Answer,
		response.Correct,
		response.Distance,
		response.TimeSpent.Milliseconds(),
		response.HintsUsed,
		response.ThetaAfter,
		response.AnsweredAt,
	)
	return err
}
