package memory

import (
	"context"
	"sync"

	"audience-quiz-service/internal/domain"
)

// AnswerLog keeps accepted submissions in memory, append-only. Useful for
// tests and single-process runs without a durable store.
type AnswerLog struct {
	mu     sync.Mutex
	events []domain.AnswerEvent
}

func NewAnswerLog() *AnswerLog {
	return &AnswerLog{}
}

func (l *AnswerLog) Append(_ context.Context, ev domain.AnswerEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

// Events returns a copy of every logged submission, in insertion order.
func (l *AnswerLog) Events() []domain.AnswerEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AnswerEvent, len(l.events))
	copy(out, l.events)
	return out
}
