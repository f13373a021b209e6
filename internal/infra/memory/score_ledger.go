package memory

import (
	"context"
	"sync"

	"audience-quiz-service/internal/domain"
)

// ScoreLedger is an in-memory implementation of app.ScoreLedger. Each
// (presentation, participant) row carries its own lock so resubmissions for
// different participants never contend.
type ScoreLedger struct {
	mu   sync.RWMutex
	rows map[ledgerKey]*ledgerRow
}

type ledgerKey struct {
	presentationID string
	participantID  string
}

type ledgerRow struct {
	mu    sync.Mutex
	score domain.ParticipantScore
}

func NewScoreLedger() *ScoreLedger {
	return &ScoreLedger{rows: make(map[ledgerKey]*ledgerRow)}
}

// RecordSlideScore upserts the slide entry into the participant's row. A
// repeated submission for the same slide replaces the entry and recomputes
// the total from the row's own prior state, so a slide can never be counted
// twice.
func (l *ScoreLedger) RecordSlideScore(_ context.Context, ev domain.AnswerEvent) (domain.ParticipantScore, error) {
	row := l.row(ev.PresentationID, ev.ParticipantID)

	row.mu.Lock()
	defer row.mu.Unlock()

	entry := domain.SlideScore{
		SlideID:    ev.SlideID,
		Score:      ev.Score,
		LatencyMs:  ev.LatencyMs,
		Correct:    ev.Correct,
		AnsweredAt: ev.SubmittedAt,
	}

	replaced := false
	for i := range row.score.SlideScores {
		if row.score.SlideScores[i].SlideID == ev.SlideID {
			row.score.TotalScore += entry.Score - row.score.SlideScores[i].Score
			row.score.SlideScores[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		row.score.TotalScore += entry.Score
		row.score.SlideScores = append(row.score.SlideScores, entry)
	}
	row.score.ParticipantName = ev.ParticipantName
	row.score.LastUpdated = ev.SubmittedAt

	return cloneScore(row.score), nil
}

func (l *ScoreLedger) ParticipantScore(_ context.Context, presentationID, participantID string) (domain.ParticipantScore, bool, error) {
	l.mu.RLock()
	row, ok := l.rows[ledgerKey{presentationID, participantID}]
	l.mu.RUnlock()
	if !ok {
		return domain.ParticipantScore{}, false, nil
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	return cloneScore(row.score), true, nil
}

func (l *ScoreLedger) PresentationScores(_ context.Context, presentationID string) ([]domain.ParticipantScore, error) {
	l.mu.RLock()
	rows := make([]*ledgerRow, 0)
	for key, row := range l.rows {
		if key.presentationID == presentationID {
			rows = append(rows, row)
		}
	}
	l.mu.RUnlock()

	scores := make([]domain.ParticipantScore, 0, len(rows))
	for _, row := range rows {
		row.mu.Lock()
		scores = append(scores, cloneScore(row.score))
		row.mu.Unlock()
	}
	return scores, nil
}

func (l *ScoreLedger) ClearPresentationScores(_ context.Context, presentationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.rows {
		if key.presentationID == presentationID {
			delete(l.rows, key)
		}
	}
	return nil
}

func (l *ScoreLedger) row(presentationID, participantID string) *ledgerRow {
	key := ledgerKey{presentationID, participantID}

	l.mu.RLock()
	row, ok := l.rows[key]
	l.mu.RUnlock()
	if ok {
		return row
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if row, ok = l.rows[key]; ok {
		return row
	}
	row = &ledgerRow{
		score: domain.ParticipantScore{
			PresentationID: presentationID,
			ParticipantID:  participantID,
		},
	}
	l.rows[key] = row
	return row
}

func cloneScore(score domain.ParticipantScore) domain.ParticipantScore {
	out := score
	out.SlideScores = make([]domain.SlideScore, len(score.SlideScores))
	copy(out.SlideScores, score.SlideScores)
	return out
}
