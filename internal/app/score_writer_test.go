package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"audience-quiz-service/internal/app"
	"audience-quiz-service/internal/domain"
	"audience-quiz-service/internal/infra/memory"
)

type failingLedger struct {
	*memory.ScoreLedger
	mu       sync.Mutex
	failures int
	calls    int
}

func (l *failingLedger) RecordSlideScore(ctx context.Context, ev domain.AnswerEvent) (domain.ParticipantScore, error) {
	l.mu.Lock()
	l.calls++
	fail := l.failures > 0
	if fail {
		l.failures--
	}
	l.mu.Unlock()
	if fail {
		return domain.ParticipantScore{}, fmt.Errorf("store unavailable")
	}
	return l.ScoreLedger.RecordSlideScore(ctx, ev)
}

func sampleEvent() domain.AnswerEvent {
	return domain.AnswerEvent{
		PresentationID: "pres-1", SlideID: "slide-1",
		ParticipantID: "p1", ParticipantName: "Alice",
		Answer: "opt-b", LatencyMs: 5000, Correct: true, Score: 875,
		SubmittedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestScoreWriterWritesSynchronouslyWhenHealthy(t *testing.T) {
	ledger := memory.NewScoreLedger()
	answerLog := memory.NewAnswerLog()
	writer := app.NewScoreWriter(ledger, answerLog)
	defer writer.Close()

	if err := writer.Record(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("record: %v", err)
	}
	row, ok, _ := ledger.ParticipantScore(context.Background(), "pres-1", "p1")
	if !ok || row.TotalScore != 875 {
		t.Fatalf("expected ledger row with 875, got ok=%v row=%+v", ok, row)
	}
	if len(answerLog.Events()) != 1 {
		t.Fatalf("expected one audit event")
	}
}

func TestScoreWriterRetriesFailedWrites(t *testing.T) {
	ledger := &failingLedger{ScoreLedger: memory.NewScoreLedger(), failures: 2}
	answerLog := memory.NewAnswerLog()
	writer := app.NewScoreWriter(ledger, answerLog)
	defer writer.Close()

	if err := writer.Record(context.Background(), sampleEvent()); err == nil {
		t.Fatalf("expected first write to report the outage")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if row, ok, _ := ledger.ScoreLedger.ParticipantScore(context.Background(), "pres-1", "p1"); ok && row.TotalScore == 875 {
			if len(answerLog.Events()) != 1 {
				t.Fatalf("expected exactly one audit event after retries, got %d", len(answerLog.Events()))
			}
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("write was never retried to completion")
}
