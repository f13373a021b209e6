package postgres

import (
	"context"
	"fmt"

	"audience-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AnswerLog appends accepted submissions to the responses table. Rows are
// written once per accepted answer and never mutated; they exist for audit
// and export, not for live reads.
type AnswerLog struct {
	pool *pgxpool.Pool
}

func NewAnswerLog(pool *pgxpool.Pool) *AnswerLog {
	return &AnswerLog{pool: pool}
}

func (l *AnswerLog) Append(ctx context.Context, ev domain.AnswerEvent) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO responses
		   (presentation_id, slide_id, participant_id, participant_name,
		    answer, response_time_ms, is_correct, score, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.PresentationID, ev.SlideID, ev.ParticipantID, ev.ParticipantName,
		ev.Answer, ev.LatencyMs, ev.Correct, ev.Score, ev.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("append response: %w", err)
	}
	return nil
}
