package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"eiq-engine/internal/domain"
)

type ItemRepository interface {
	ListActive(ctx context.Context) ([]domain.Item, error)
}

type PgItemRepository struct {
	pool *pgxpool.Pool
}

func NewPgItemRepository(pool *pgxpool.Pool) *PgItemRepository {
	return &PgItemRepository{pool: pool}
}

type itemRow struct {
	id             string
	subject        string
	domain         *string
	discrimination float64
	difficulty     float64
	guessing       float64
	content        []byte
	weight         float64
}

// ListActive lee items activos y su escalera de pistas en paralelo. Las
// materias heredadas se traducen a dominios.
func (r *PgItemRepository) ListActive(ctx context.Context) ([]domain.Item, error) {
	var (
		rows  []itemRow
		hints map[string][]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = r.activeRows(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		hints, err = r.hintLadders(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, len(rows))
	for _, row := range rows {
		raw := row.subject
		if row.domain != nil && *row.domain != "" {
			raw = *row.domain
		}
		d, err := domain.ParseDomain(raw)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", row.id, err)
		}
		var spec domain.ContentSpec
		if err := json.Unmarshal(row.content, &spec); err != nil {
			return nil, fmt.Errorf("item %s: decode content: %w", row.id, err)
		}
		content, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", row.id, err)
		}
		items = append(items, domain.Item{
			ID:      row.id,
			Domain:  d,
			Subject: row.subject,
			IRT: domain.IRTParams{
				Discrimination: row.discrimination,
				Difficulty:     row.difficulty,
				Guessing:       row.guessing,
			},
			Content: content,
			Hints:   hints[row.id],
			Weight:  row.weight,
			Active:  true,
		})
	}
	return items, nil
}

func (r *PgItemRepository) activeRows(ctx context.Context) ([]itemRow, error) {
	const query = `
		SELECT id, subject, domain, discrimination, difficulty, COALESCE(guessing, 0), content, COALESCE(weight, 1)
		FROM assessment_items
		WHERE active = TRUE
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []itemRow
	for rows.Next() {
		var row itemRow
		if err := rows.Scan(
			&row.id,
			&row.subject,
			&row.domain,
			&row.discrimination,
			&row.difficulty,
			&row.guessing,
			&row.content,
			&row.weight,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PgItemRepository) hintLadders(ctx context.Context) (map[string][]string, error) {
	const query = `
		SELECT item_id, content
		FROM assessment_item_hints
		ORDER BY item_id, position
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var itemID, content string
		if err := rows.Scan(&itemID, &content); err != nil {
			return nil, err
		}
		out[itemID] = append(out[itemID], content)
	}
	return out, rows.Err()
}
