package postgres

import (
	"context"
	"errors"
	"fmt"

	"audience-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SlideLoader loads quiz slide configuration from Postgres.
type SlideLoader struct {
	pool *pgxpool.Pool
}

func NewSlideLoader(pool *pgxpool.Pool) *SlideLoader {
	return &SlideLoader{pool: pool}
}

func (l *SlideLoader) LoadQuizConfig(ctx context.Context, slideID string) (domain.QuizSlideConfig, error) {
	cfg := domain.QuizSlideConfig{SlideID: slideID}
	err := l.pool.QueryRow(ctx,
		`SELECT time_limit, correct_option_id FROM slides WHERE id=$1`,
		slideID,
	).Scan(&cfg.TimeLimit, &cfg.CorrectOptionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSlideConfig{}, domain.ErrConfigMissing
	}
	if err != nil {
		return domain.QuizSlideConfig{}, fmt.Errorf("load quiz config: %w", err)
	}
	return cfg, nil
}

func (l *SlideLoader) LoadQuizSlideIDs(ctx context.Context, presentationID string) ([]string, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id FROM slides WHERE presentation_id=$1 ORDER BY position`,
		presentationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load quiz slide ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan slide id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slides: %w", err)
	}
	return ids, nil
}
