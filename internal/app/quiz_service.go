package app

import (
	"context"
	"log"

	"audience-quiz-service/internal/domain"
)

// SessionRepository abstracts how live quiz sessions are stored. The store
// itself does no per-answer locking; each Session serializes its own
// mutations.
type SessionRepository interface {
	// GetOrCreate returns the session for cfg.SlideID, creating it if absent.
	GetOrCreate(cfg domain.QuizSlideConfig) *Session
	// Create replaces any existing session for cfg.SlideID with a fresh one.
	Create(cfg domain.QuizSlideConfig) *Session
	Get(slideID string) (*Session, bool)
	Delete(slideID string)
}

// SlideConfigProvider loads quiz slide configuration from the presentation
// store (behind cache layers in production).
type SlideConfigProvider interface {
	QuizConfig(ctx context.Context, slideID string) (domain.QuizSlideConfig, error)
	// QuizSlideIDs returns the presentation's quiz slides in deck order.
	QuizSlideIDs(ctx context.Context, presentationID string) ([]string, error)
}

// ScoreLedger is the durable per-(presentation, participant) score record.
// RecordSlideScore must be an atomic per-row read-modify-write: replacing an
// existing slide entry recomputes the total from the row's own prior state.
type ScoreLedger interface {
	RecordSlideScore(ctx context.Context, ev domain.AnswerEvent) (domain.ParticipantScore, error)
	ParticipantScore(ctx context.Context, presentationID, participantID string) (domain.ParticipantScore, bool, error)
	PresentationScores(ctx context.Context, presentationID string) ([]domain.ParticipantScore, error)
	ClearPresentationScores(ctx context.Context, presentationID string) error
}

// AnswerLog is the append-only audit record of accepted submissions.
type AnswerLog interface {
	Append(ctx context.Context, ev domain.AnswerEvent) error
}

// Broadcaster publishes live events keyed by presentation. Membership and
// delivery are the transport's concern; answer acks go back to the submitting
// caller directly and never pass through here.
type Broadcaster interface {
	QuizStarted(presentationID string, ev domain.QuizStartedEvent)
	ResultsUpdated(presentationID string, ev domain.ResultsUpdatedEvent)
	QuizEnded(presentationID string, ev domain.QuizEndedEvent)
}

// SubmitRequest carries one participant answer into the service.
type SubmitRequest struct {
	PresentationID  string
	SlideID         string
	ParticipantID   string
	ParticipantName string
	Answer          string
	LatencyMs       int64
}

// QuizService is the session controller: the single writer into each live
// session, owner of the auto-end timers, and the seam between the in-memory
// round and the durable score ledger.
type QuizService struct {
	sessions  SessionRepository
	slides    SlideConfigProvider
	ledger    ScoreLedger
	writer    *ScoreWriter
	broadcast Broadcaster
	lbLimit   int
}

func NewQuizService(sessions SessionRepository, slides SlideConfigProvider, ledger ScoreLedger, answerLog AnswerLog, broadcast Broadcaster, leaderboardLimit int) *QuizService {
	if leaderboardLimit <= 0 {
		leaderboardLimit = DefaultLeaderboardLimit
	}
	return &QuizService{
		sessions:  sessions,
		slides:    slides,
		ledger:    ledger,
		writer:    NewScoreWriter(ledger, answerLog),
		broadcast: broadcast,
		lbLimit:   leaderboardLimit,
	}
}

// Close stops the background score writer.
func (s *QuizService) Close() {
	s.writer.Close()
}

// StartQuiz begins (or restarts) the round for a slide. The session is
// created on first start; restarting cancels any stale auto-end timer before
// arming a new one, and the started event is broadcast to the presentation.
func (s *QuizService) StartQuiz(ctx context.Context, presentationID, slideID string) (domain.QuizStartedEvent, error) {
	cfg, err := s.slides.QuizConfig(ctx, slideID)
	if err != nil {
		return domain.QuizStartedEvent{}, err
	}

	session := s.sessions.GetOrCreate(cfg)
	startTime := session.begin(func(round int) {
		s.autoEnd(presentationID, slideID, round)
	})

	ev := domain.QuizStartedEvent{
		SlideID:   slideID,
		TimeLimit: cfg.TimeLimit,
		StartTime: startTime,
	}
	s.broadcast.QuizStarted(presentationID, ev)
	return ev, nil
}

// SubmitAnswer records one participant's answer, scores it, queues the
// durable writes and broadcasts the updated live tally. Rejections
// (inactive session, duplicate) are participant-local errors; a persistence
// failure does not fail the submission.
func (s *QuizService) SubmitAnswer(ctx context.Context, req SubmitRequest) (domain.AnswerAck, error) {
	session, ok := s.sessions.Get(req.SlideID)
	if !ok {
		return domain.AnswerAck{}, domain.ErrSessionNotFound
	}

	rec, err := session.record(req.ParticipantID, req.Answer, req.LatencyMs)
	if err != nil {
		return domain.AnswerAck{}, err
	}

	score := Score(rec.Correct, rec.LatencyMs, session.TimeLimit())
	ev := domain.AnswerEvent{
		PresentationID:  req.PresentationID,
		SlideID:         req.SlideID,
		ParticipantID:   req.ParticipantID,
		ParticipantName: req.ParticipantName,
		Answer:          rec.Answer,
		LatencyMs:       rec.LatencyMs,
		Correct:         rec.Correct,
		Score:           score,
		SubmittedAt:     rec.SubmittedAt,
	}
	if err := s.writer.Record(ctx, ev); err != nil {
		// The round continues on the in-memory tally; the writer retries.
		log.Printf("score persistence delayed for participant %s slide %s: %v",
			req.ParticipantID, req.SlideID, err)
	}

	s.broadcast.ResultsUpdated(req.PresentationID, domain.ResultsUpdatedEvent{
		SlideID: req.SlideID,
		Results: session.results(),
	})

	return domain.AnswerAck{
		SlideID:   req.SlideID,
		Correct:   rec.Correct,
		Score:     score,
		LatencyMs: rec.LatencyMs,
	}, nil
}

// EndQuiz ends the round and broadcasts the final results with the delta
// leaderboard. Ending an already-ended round is a no-op: the event is
// returned but not broadcast again, so a manual end racing the auto-end
// timer yields exactly one ended broadcast.
func (s *QuizService) EndQuiz(ctx context.Context, presentationID, slideID string) (domain.QuizEndedEvent, error) {
	session, ok := s.sessions.Get(slideID)
	if !ok {
		return domain.QuizEndedEvent{}, domain.ErrSessionNotFound
	}

	_, ended := session.finish()
	return s.endedEvent(ctx, presentationID, slideID, session, ended)
}

func (s *QuizService) endedEvent(ctx context.Context, presentationID, slideID string, session *Session, ended bool) (domain.QuizEndedEvent, error) {
	ev := domain.QuizEndedEvent{
		SlideID: slideID,
		Results: session.results(),
	}
	leaderboard, err := s.SlideDeltaLeaderboard(ctx, presentationID, slideID, s.lbLimit)
	if err != nil {
		log.Printf("leaderboard unavailable for ended quiz %s: %v", slideID, err)
	} else {
		ev.Leaderboard = leaderboard
	}

	if ended {
		s.broadcast.QuizEnded(presentationID, ev)
	}
	return ev, nil
}

// autoEnd is the timer callback. It resolves the session by slide ID at fire
// time so a session cleared or replaced after scheduling is never acted on
// through a stale reference, and it ends only the round it was armed for:
// a callback that outlives a restart is a no-op.
func (s *QuizService) autoEnd(presentationID, slideID string, round int) {
	ctx, cancel := context.WithTimeout(context.Background(), scoreWriteTimeout)
	defer cancel()

	session, ok := s.sessions.Get(slideID)
	if !ok {
		return
	}
	if _, ended := session.finishRound(round); !ended {
		return
	}
	if _, err := s.endedEvent(ctx, presentationID, slideID, session, true); err != nil {
		log.Printf("auto-end failed for slide %s: %v", slideID, err)
	}
}

// Results returns the live tally for a slide, degrading to a zeroed summary
// when no session exists so callers can poll defensively.
func (s *QuizService) Results(slideID string) domain.ResultsSummary {
	session, ok := s.sessions.Get(slideID)
	if !ok {
		return domain.ResultsSummary{OptionCounts: map[string]int{}}
	}
	return session.results()
}

// QuizState returns the session snapshot for reconnecting clients; a missing
// session reports inactive with empty results rather than an error.
func (s *QuizService) QuizState(slideID string) domain.QuizState {
	session, ok := s.sessions.Get(slideID)
	if !ok {
		return domain.QuizState{
			SlideID: slideID,
			Results: domain.ResultsSummary{OptionCounts: map[string]int{}},
		}
	}
	return session.state()
}

// Leaderboard returns the all-time ranking for a presentation.
func (s *QuizService) Leaderboard(ctx context.Context, presentationID string, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.ledger.PresentationScores(ctx, presentationID)
	if err != nil {
		return nil, err
	}
	return AllTimeLeaderboard(rows, limit), nil
}

// SlideLeaderboard ranks one slide's round in isolation.
func (s *QuizService) SlideLeaderboard(ctx context.Context, presentationID, slideID string, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.ledger.PresentationScores(ctx, presentationID)
	if err != nil {
		return nil, err
	}
	return SingleSlideLeaderboard(rows, slideID, limit), nil
}

// SlideDeltaLeaderboard is the all-time ranking annotated with the points
// gained on slideID; shown when a round ends.
func (s *QuizService) SlideDeltaLeaderboard(ctx context.Context, presentationID, slideID string, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.ledger.PresentationScores(ctx, presentationID)
	if err != nil {
		return nil, err
	}
	return DeltaLeaderboard(rows, slideID, limit), nil
}

// CumulativeLeaderboards builds the slide-by-slide reveal: one snapshot per
// quiz slide in deck order, the last one being the final leaderboard.
func (s *QuizService) CumulativeLeaderboards(ctx context.Context, presentationID string, limit int) (map[string][]domain.LeaderboardEntry, []domain.LeaderboardEntry, error) {
	slideIDs, err := s.slides.QuizSlideIDs(ctx, presentationID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.ledger.PresentationScores(ctx, presentationID)
	if err != nil {
		return nil, nil, err
	}
	bySlide, final := CumulativeLeaderboards(rows, slideIDs, limit)
	return bySlide, final, nil
}

// ParticipantScore is a point lookup of one participant's ledger row.
func (s *QuizService) ParticipantScore(ctx context.Context, presentationID, participantID string) (domain.ParticipantScore, bool, error) {
	return s.ledger.ParticipantScore(ctx, presentationID, participantID)
}

// ResetScores deletes every ledger row for a presentation, for re-runs.
func (s *QuizService) ResetScores(ctx context.Context, presentationID string) error {
	return s.ledger.ClearPresentationScores(ctx, presentationID)
}

// ClearSession drops one slide's session, cancelling its pending timer.
func (s *QuizService) ClearSession(slideID string) {
	s.sessions.Delete(slideID)
}

// TeardownPresentation clears every quiz session for a presentation.
func (s *QuizService) TeardownPresentation(ctx context.Context, presentationID string) error {
	slideIDs, err := s.slides.QuizSlideIDs(ctx, presentationID)
	if err != nil {
		return err
	}
	for _, slideID := range slideIDs {
		s.sessions.Delete(slideID)
	}
	return nil
}
