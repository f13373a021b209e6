package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"audience-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ScoreLedger stores participant scores in Postgres. The row's slide entries
// live in a jsonb column mirroring the ledger row shape; the per-slide upsert
// runs in a transaction with SELECT FOR UPDATE so concurrent resubmissions
// for the same participant serialize on the row, not on the table.
type ScoreLedger struct {
	pool *pgxpool.Pool
}

func NewScoreLedger(pool *pgxpool.Pool) *ScoreLedger {
	return &ScoreLedger{pool: pool}
}

func (l *ScoreLedger) RecordSlideScore(ctx context.Context, ev domain.AnswerEvent) (domain.ParticipantScore, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.ParticipantScore{}, fmt.Errorf("begin score upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	row := domain.ParticipantScore{
		PresentationID: ev.PresentationID,
		ParticipantID:  ev.ParticipantID,
	}
	var rawScores []byte
	err = tx.QueryRow(ctx,
		`SELECT total_score, quiz_scores FROM participant_scores
		 WHERE presentation_id=$1 AND participant_id=$2 FOR UPDATE`,
		ev.PresentationID, ev.ParticipantID,
	).Scan(&row.TotalScore, &rawScores)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// first scored answer creates the row below
	case err != nil:
		return domain.ParticipantScore{}, fmt.Errorf("lock score row: %w", err)
	default:
		if err := json.Unmarshal(rawScores, &row.SlideScores); err != nil {
			return domain.ParticipantScore{}, fmt.Errorf("unmarshal quiz scores: %w", err)
		}
	}

	entry := domain.SlideScore{
		SlideID:    ev.SlideID,
		Score:      ev.Score,
		LatencyMs:  ev.LatencyMs,
		Correct:    ev.Correct,
		AnsweredAt: ev.SubmittedAt,
	}
	replaced := false
	for i := range row.SlideScores {
		if row.SlideScores[i].SlideID == ev.SlideID {
			row.TotalScore += entry.Score - row.SlideScores[i].Score
			row.SlideScores[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		row.TotalScore += entry.Score
		row.SlideScores = append(row.SlideScores, entry)
	}
	row.ParticipantName = ev.ParticipantName
	row.LastUpdated = ev.SubmittedAt

	updated, err := json.Marshal(row.SlideScores)
	if err != nil {
		return domain.ParticipantScore{}, fmt.Errorf("marshal quiz scores: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO participant_scores
		   (presentation_id, participant_id, participant_name, total_score, quiz_scores, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (presentation_id, participant_id) DO UPDATE SET
		   participant_name = EXCLUDED.participant_name,
		   total_score      = EXCLUDED.total_score,
		   quiz_scores      = EXCLUDED.quiz_scores,
		   last_updated     = EXCLUDED.last_updated`,
		ev.PresentationID, ev.ParticipantID, ev.ParticipantName,
		row.TotalScore, updated, row.LastUpdated,
	)
	if err != nil {
		return domain.ParticipantScore{}, fmt.Errorf("upsert score row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ParticipantScore{}, fmt.Errorf("commit score upsert: %w", err)
	}
	return row, nil
}

func (l *ScoreLedger) ParticipantScore(ctx context.Context, presentationID, participantID string) (domain.ParticipantScore, bool, error) {
	row := domain.ParticipantScore{
		PresentationID: presentationID,
		ParticipantID:  participantID,
	}
	var rawScores []byte
	err := l.pool.QueryRow(ctx,
		`SELECT participant_name, total_score, quiz_scores, last_updated
		 FROM participant_scores WHERE presentation_id=$1 AND participant_id=$2`,
		presentationID, participantID,
	).Scan(&row.ParticipantName, &row.TotalScore, &rawScores, &row.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ParticipantScore{}, false, nil
	}
	if err != nil {
		return domain.ParticipantScore{}, false, fmt.Errorf("load participant score: %w", err)
	}
	if err := json.Unmarshal(rawScores, &row.SlideScores); err != nil {
		return domain.ParticipantScore{}, false, fmt.Errorf("unmarshal quiz scores: %w", err)
	}
	return row, true, nil
}

func (l *ScoreLedger) PresentationScores(ctx context.Context, presentationID string) ([]domain.ParticipantScore, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT participant_id, participant_name, total_score, quiz_scores, last_updated
		 FROM participant_scores WHERE presentation_id=$1`,
		presentationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load presentation scores: %w", err)
	}
	defer rows.Close()

	var scores []domain.ParticipantScore
	for rows.Next() {
		row := domain.ParticipantScore{PresentationID: presentationID}
		var rawScores []byte
		if err := rows.Scan(&row.ParticipantID, &row.ParticipantName, &row.TotalScore, &rawScores, &row.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		if err := json.Unmarshal(rawScores, &row.SlideScores); err != nil {
			return nil, fmt.Errorf("unmarshal quiz scores: %w", err)
		}
		scores = append(scores, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score rows: %w", err)
	}
	return scores, nil
}

func (l *ScoreLedger) ClearPresentationScores(ctx context.Context, presentationID string) error {
	_, err := l.pool.Exec(ctx,
		`DELETE FROM participant_scores WHERE presentation_id=$1`, presentationID)
	if err != nil {
		return fmt.Errorf("clear presentation scores: %w", err)
	}
	return nil
}
