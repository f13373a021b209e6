package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"audience-quiz-service/internal/app"
	"audience-quiz-service/internal/domain"
	"audience-quiz-service/internal/infra/memory"
)

type recordingBroadcaster struct {
	mu      sync.Mutex
	started []domain.QuizStartedEvent
	updated []domain.ResultsUpdatedEvent
	ended   []domain.QuizEndedEvent
}

func (b *recordingBroadcaster) QuizStarted(_ string, ev domain.QuizStartedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, ev)
}

func (b *recordingBroadcaster) ResultsUpdated(_ string, ev domain.ResultsUpdatedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updated = append(b.updated, ev)
}

func (b *recordingBroadcaster) QuizEnded(_ string, ev domain.QuizEndedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = append(b.ended, ev)
}

func (b *recordingBroadcaster) endedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ended)
}

func (b *recordingBroadcaster) lastEnded() (domain.QuizEndedEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ended) == 0 {
		return domain.QuizEndedEvent{}, false
	}
	return b.ended[len(b.ended)-1], true
}

type testEnv struct {
	service   *app.QuizService
	broadcast *recordingBroadcaster
	ledger    *memory.ScoreLedger
	answerLog *memory.AnswerLog
}

func newTestEnv(t *testing.T, configs map[string]domain.QuizSlideConfig, presentations map[string][]string) *testEnv {
	t.Helper()
	env := &testEnv{
		broadcast: &recordingBroadcaster{},
		ledger:    memory.NewScoreLedger(),
		answerLog: memory.NewAnswerLog(),
	}
	slides := memory.NewSlideProvider(memory.NewStaticSlideLoader(configs, presentations), 5*time.Minute)
	env.service = app.NewQuizService(memory.NewSessionStore(), slides, env.ledger, env.answerLog, env.broadcast, 10)
	t.Cleanup(env.service.Close)
	return env
}

func defaultSlides() (map[string]domain.QuizSlideConfig, map[string][]string) {
	return map[string]domain.QuizSlideConfig{
			"slide-1": {SlideID: "slide-1", TimeLimit: 20, CorrectOptionID: "opt-b"},
			"slide-2": {SlideID: "slide-2", TimeLimit: 20, CorrectOptionID: "opt-a"},
		}, map[string][]string{
			"pres-1": {"slide-1", "slide-2"},
		}
}

func TestStartSubmitEndFlow(t *testing.T) {
	ctx := context.Background()
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	started, err := env.service.StartQuiz(ctx, "pres-1", "slide-1")
	if err != nil {
		t.Fatalf("start quiz: %v", err)
	}
	if started.TimeLimit != 20 || started.StartTime.IsZero() {
		t.Fatalf("unexpected started event: %+v", started)
	}

	ack, err := env.service.SubmitAnswer(ctx, app.SubmitRequest{
		PresentationID: "pres-1", SlideID: "slide-1",
		ParticipantID: "p1", ParticipantName: "Alice",
		Answer: "opt-b", LatencyMs: 5000,
	})
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if !ack.Correct || ack.Score != 875 {
		t.Fatalf("expected correct answer scoring 875, got %+v", ack)
	}

	env.broadcast.mu.Lock()
	updates := len(env.broadcast.updated)
	env.broadcast.mu.Unlock()
	if updates != 1 {
		t.Fatalf("expected one live tally broadcast, got %d", updates)
	}

	endedEv, err := env.service.EndQuiz(ctx, "pres-1", "slide-1")
	if err != nil {
		t.Fatalf("end quiz: %v", err)
	}
	if endedEv.Results.TotalResponses != 1 || endedEv.Results.CorrectCount != 1 {
		t.Fatalf("unexpected final results: %+v", endedEv.Results)
	}
	if len(endedEv.Leaderboard) != 1 || endedEv.Leaderboard[0].Delta != 875 {
		t.Fatalf("expected delta leaderboard with Alice's 875, got %+v", endedEv.Leaderboard)
	}
	if env.broadcast.endedCount() != 1 {
		t.Fatalf("expected one ended broadcast, got %d", env.broadcast.endedCount())
	}

	row, ok, err := env.service.ParticipantScore(ctx, "pres-1", "p1")
	if err != nil || !ok {
		t.Fatalf("participant score: ok=%v err=%v", ok, err)
	}
	if row.TotalScore != 875 || len(row.SlideScores) != 1 {
		t.Fatalf("unexpected ledger row: %+v", row)
	}

	events := env.answerLog.Events()
	if len(events) != 1 || events[0].Score != 875 || !events[0].Correct {
		t.Fatalf("expected one audit event with score 875, got %+v", events)
	}
}

func TestStartQuizUnknownSlide(t *testing.T) {
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	_, err := env.service.StartQuiz(context.Background(), "pres-1", "slide-404")
	if !errors.Is(err, domain.ErrConfigMissing) {
		t.Fatalf("expected config-missing error, got %v", err)
	}
	if len(env.broadcast.started) != 0 {
		t.Fatalf("expected no broadcast on failed start")
	}
}

func TestSubmitAnswerWithoutSession(t *testing.T) {
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	_, err := env.service.SubmitAnswer(context.Background(), app.SubmitRequest{
		PresentationID: "pres-1", SlideID: "slide-1", ParticipantID: "p1", Answer: "opt-b",
	})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session-not-found, got %v", err)
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	ctx := context.Background()
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	if _, err := env.service.StartQuiz(ctx, "pres-1", "slide-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	req := app.SubmitRequest{
		PresentationID: "pres-1", SlideID: "slide-1",
		ParticipantID: "p1", ParticipantName: "Alice",
		Answer: "opt-b", LatencyMs: 3000,
	}
	if _, err := env.service.SubmitAnswer(ctx, req); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := env.service.SubmitAnswer(ctx, req); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if results := env.service.Results("slide-1"); results.TotalResponses != 1 {
		t.Fatalf("expected one stored record, got %d", results.TotalResponses)
	}
	if events := env.answerLog.Events(); len(events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(events))
	}
}

func TestSubmitAfterEndRejected(t *testing.T) {
	ctx := context.Background()
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	env.service.StartQuiz(ctx, "pres-1", "slide-1")
	env.service.EndQuiz(ctx, "pres-1", "slide-1")

	_, err := env.service.SubmitAnswer(ctx, app.SubmitRequest{
		PresentationID: "pres-1", SlideID: "slide-1", ParticipantID: "p1", Answer: "opt-b",
	})
	if !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected not-active error, got %v", err)
	}
}

func TestEndQuizWithoutSession(t *testing.T) {
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	_, err := env.service.EndQuiz(context.Background(), "pres-1", "slide-1")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session-not-found, got %v", err)
	}
}

func TestResultsDegradeGracefully(t *testing.T) {
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	results := env.service.Results("slide-unknown")
	if results.TotalResponses != 0 || results.OptionCounts == nil {
		t.Fatalf("expected zeroed results, got %+v", results)
	}
	state := env.service.QuizState("slide-unknown")
	if state.Active || state.StartTime != nil {
		t.Fatalf("expected inactive zero state, got %+v", state)
	}
}

func TestManualEndBeatsAutoEndTimer(t *testing.T) {
	ctx := context.Background()
	configs := map[string]domain.QuizSlideConfig{
		"slide-fast": {SlideID: "slide-fast", TimeLimit: 1, CorrectOptionID: "opt-b"},
	}
	env := newTestEnv(t, configs, map[string][]string{"pres-1": {"slide-fast"}})

	if _, err := env.service.StartQuiz(ctx, "pres-1", "slide-fast"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.service.EndQuiz(ctx, "pres-1", "slide-fast"); err != nil {
		t.Fatalf("manual end: %v", err)
	}

	// Even if the timer were already in flight, the ended transition runs once.
	time.Sleep(1500 * time.Millisecond)
	if got := env.broadcast.endedCount(); got != 1 {
		t.Fatalf("expected exactly one ended broadcast, got %d", got)
	}
}

func TestAutoEndFiresAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	configs := map[string]domain.QuizSlideConfig{
		"slide-fast": {SlideID: "slide-fast", TimeLimit: 1, CorrectOptionID: "opt-b"},
	}
	env := newTestEnv(t, configs, map[string][]string{"pres-1": {"slide-fast"}})

	if _, err := env.service.StartQuiz(ctx, "pres-1", "slide-fast"); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for env.broadcast.endedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if got := env.broadcast.endedCount(); got != 1 {
		t.Fatalf("expected auto-end broadcast once, got %d", got)
	}
	if state := env.service.QuizState("slide-fast"); state.Active {
		t.Fatalf("expected session ended by timer, got %+v", state)
	}

	// A late manual end after the timer is a no-op, not an error.
	if _, err := env.service.EndQuiz(ctx, "pres-1", "slide-fast"); err != nil {
		t.Fatalf("late manual end: %v", err)
	}
	if got := env.broadcast.endedCount(); got != 1 {
		t.Fatalf("expected no second ended broadcast, got %d", got)
	}
}

func TestResubmissionAfterFreshSessionOverwritesScore(t *testing.T) {
	ctx := context.Background()
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	env.service.StartQuiz(ctx, "pres-1", "slide-1")
	if _, err := env.service.SubmitAnswer(ctx, app.SubmitRequest{
		PresentationID: "pres-1", SlideID: "slide-1",
		ParticipantID: "p1", ParticipantName: "Alice",
		Answer: "opt-b", LatencyMs: 10000, // 750 points
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	env.service.EndQuiz(ctx, "pres-1", "slide-1")

	// Re-run of the same slide: fresh session, client retries the answer.
	env.service.ClearSession("slide-1")
	env.service.StartQuiz(ctx, "pres-1", "slide-1")
	if _, err := env.service.SubmitAnswer(ctx, app.SubmitRequest{
		PresentationID: "pres-1", SlideID: "slide-1",
		ParticipantID: "p1", ParticipantName: "Alice",
		Answer: "opt-b", LatencyMs: 5000, // 875 points
	}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	row, ok, err := env.service.ParticipantScore(ctx, "pres-1", "p1")
	if err != nil || !ok {
		t.Fatalf("participant score: ok=%v err=%v", ok, err)
	}
	if row.TotalScore != 875 {
		t.Fatalf("expected total 875 (second score only), got %d", row.TotalScore)
	}
	if len(row.SlideScores) != 1 {
		t.Fatalf("expected one slide entry after resubmission, got %d", len(row.SlideScores))
	}
}

func TestCumulativeLeaderboardsAcrossSlides(t *testing.T) {
	ctx := context.Background()
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	for _, round := range []struct {
		slideID string
		answers map[string]struct {
			answer  string
			latency int64
		}
	}{
		{"slide-1", map[string]struct {
			answer  string
			latency int64
		}{
			"p1": {"opt-b", 4000}, // 900
			"p2": {"opt-a", 2000}, // 0
		}},
		{"slide-2", map[string]struct {
			answer  string
			latency int64
		}{
			"p1": {"opt-b", 2000}, // 0
			"p2": {"opt-a", 8000}, // 800
		}},
	} {
		if _, err := env.service.StartQuiz(ctx, "pres-1", round.slideID); err != nil {
			t.Fatalf("start %s: %v", round.slideID, err)
		}
		for pid, a := range round.answers {
			if _, err := env.service.SubmitAnswer(ctx, app.SubmitRequest{
				PresentationID: "pres-1", SlideID: round.slideID,
				ParticipantID: pid, ParticipantName: pid,
				Answer: a.answer, LatencyMs: a.latency,
			}); err != nil {
				t.Fatalf("submit %s/%s: %v", round.slideID, pid, err)
			}
		}
		if _, err := env.service.EndQuiz(ctx, "pres-1", round.slideID); err != nil {
			t.Fatalf("end %s: %v", round.slideID, err)
		}
	}

	bySlide, final, err := env.service.CumulativeLeaderboards(ctx, "pres-1", 10)
	if err != nil {
		t.Fatalf("cumulative leaderboards: %v", err)
	}
	if bySlide["slide-1"][0].ParticipantID != "p1" || bySlide["slide-1"][0].TotalScore != 900 {
		t.Fatalf("expected p1 leading after slide-1, got %+v", bySlide["slide-1"])
	}
	if final[0].ParticipantID != "p1" || final[0].TotalScore != 900 {
		t.Fatalf("expected p1 winning overall with 900, got %+v", final)
	}
	if final[1].ParticipantID != "p2" || final[1].TotalScore != 800 {
		t.Fatalf("expected p2 second with 800, got %+v", final)
	}

	allTime, err := env.service.Leaderboard(ctx, "pres-1", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	for i := range final {
		if final[i].ParticipantID != allTime[i].ParticipantID || final[i].TotalScore != allTime[i].TotalScore {
			t.Fatalf("final cumulative snapshot diverged from all-time at rank %d", i+1)
		}
	}
}

func TestResetScoresClearsLedger(t *testing.T) {
	ctx := context.Background()
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	env.service.StartQuiz(ctx, "pres-1", "slide-1")
	env.service.SubmitAnswer(ctx, app.SubmitRequest{
		PresentationID: "pres-1", SlideID: "slide-1",
		ParticipantID: "p1", ParticipantName: "Alice", Answer: "opt-b", LatencyMs: 1000,
	})

	if err := env.service.ResetScores(ctx, "pres-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := env.service.ParticipantScore(ctx, "pres-1", "p1"); ok {
		t.Fatalf("expected row deleted after reset")
	}
}

func TestTeardownPresentationClearsSessions(t *testing.T) {
	ctx := context.Background()
	configs, presentations := defaultSlides()
	env := newTestEnv(t, configs, presentations)

	env.service.StartQuiz(ctx, "pres-1", "slide-1")
	env.service.StartQuiz(ctx, "pres-1", "slide-2")

	if err := env.service.TeardownPresentation(ctx, "pres-1"); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if state := env.service.QuizState("slide-1"); state.Active {
		t.Fatalf("expected slide-1 session cleared")
	}
	if _, err := env.service.SubmitAnswer(ctx, app.SubmitRequest{
		PresentationID: "pres-1", SlideID: "slide-2", ParticipantID: "p1", Answer: "opt-a",
	}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected sessions gone after teardown, got %v", err)
	}
}

type flakyLedger struct {
	*memory.ScoreLedger
	mu       sync.Mutex
	failures int
}

func (l *flakyLedger) RecordSlideScore(ctx context.Context, ev domain.AnswerEvent) (domain.ParticipantScore, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return domain.ParticipantScore{}, fmt.Errorf("ledger unavailable")
	}
	l.mu.Unlock()
	return l.ScoreLedger.RecordSlideScore(ctx, ev)
}

func TestPersistenceFailureDoesNotFailSubmission(t *testing.T) {
	ctx := context.Background()
	configs, presentations := defaultSlides()

	broadcast := &recordingBroadcaster{}
	ledger := &flakyLedger{ScoreLedger: memory.NewScoreLedger(), failures: 1}
	answerLog := memory.NewAnswerLog()
	slides := memory.NewSlideProvider(memory.NewStaticSlideLoader(configs, presentations), 5*time.Minute)
	service := app.NewQuizService(memory.NewSessionStore(), slides, ledger, answerLog, broadcast, 10)
	defer service.Close()

	service.StartQuiz(ctx, "pres-1", "slide-1")
	ack, err := service.SubmitAnswer(ctx, app.SubmitRequest{
		PresentationID: "pres-1", SlideID: "slide-1",
		ParticipantID: "p1", ParticipantName: "Alice",
		Answer: "opt-b", LatencyMs: 5000,
	})
	if err != nil {
		t.Fatalf("submission must survive a ledger outage, got %v", err)
	}
	if ack.Score != 875 {
		t.Fatalf("expected live score 875, got %+v", ack)
	}

	// The retry worker must land the score once the ledger recovers.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if row, ok, _ := ledger.ScoreLedger.ParticipantScore(ctx, "pres-1", "p1"); ok && row.TotalScore == 875 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("score was never persisted after ledger recovery")
}
