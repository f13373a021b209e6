package app

import (
	"math"
	"sync"
	"time"

	"audience-quiz-service/internal/domain"
)

// Session is the in-memory state of one live quiz round, keyed by slide.
// All mutation goes through its methods under a single mutex, so sessions for
// different slides never contend with each other.
type Session struct {
	slideID         string
	timeLimit       int
	correctOptionID string
	now             func() time.Time

	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time
	active    bool
	round     int
	answers   map[string]domain.AnswerRecord
	autoEnd   *time.Timer
}

// NewSession is exported for infrastructure layers that construct sessions.
func NewSession(cfg domain.QuizSlideConfig) *Session {
	return NewSessionWithClock(cfg, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(cfg domain.QuizSlideConfig, now func() time.Time) *Session {
	return &Session{
		slideID:         cfg.SlideID,
		timeLimit:       cfg.TimeLimit,
		correctOptionID: cfg.CorrectOptionID,
		now:             now,
		answers:         make(map[string]domain.AnswerRecord),
	}
}

// SlideID returns the session key.
func (s *Session) SlideID() string {
	return s.slideID
}

// TimeLimit returns the time limit in seconds copied from the slide config.
func (s *Session) TimeLimit() int {
	return s.timeLimit
}

// Close cancels any pending auto-end timer. Called when the session is
// removed from its store so a stale timer cannot fire against a cleared key.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAutoEndLocked()
}

// begin transitions the round to active: clears the end timestamp, records
// the start time and, for timed slides, arms the auto-end timer. A pending
// timer from an earlier round is always cancelled first, and the round
// counter is bumped so an earlier round's callback that is already in
// flight past Stop cannot end the new round (it must finish through
// finishRound with the counter value it was armed for). Recorded answers
// from a previous round are kept; callers wanting a clean slate replace the
// session instead.
func (s *Session) begin(fire func(round int)) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelAutoEndLocked()
	s.round++
	round := s.round
	now := s.now()
	s.startTime = now
	s.endTime = time.Time{}
	s.active = true
	if s.timeLimit > 0 && fire != nil {
		s.autoEnd = time.AfterFunc(time.Duration(s.timeLimit)*time.Second, func() {
			fire(round)
		})
	}
	return now
}

// finish transitions the round to ended and cancels the auto-end timer.
// Ending an already-ended round reports false so a manual end racing the
// timer produces exactly one ended transition.
func (s *Session) finish() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked()
}

// finishRound ends the round only if it is still the one the timer was
// armed for; a restart bumps the counter, turning the stale callback into
// a no-op instead of killing the new round.
func (s *Session) finishRound(round int) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if round != s.round {
		return s.endTime, false
	}
	return s.finishLocked()
}

func (s *Session) finishLocked() (time.Time, bool) {
	s.cancelAutoEndLocked()
	if !s.active && !s.endTime.IsZero() {
		return s.endTime, false
	}
	now := s.now()
	s.endTime = now
	s.active = false
	return now, true
}

// record stores a participant's answer. The first submission wins; the
// correctness flag is frozen here and never recomputed.
func (s *Session) record(participantID, answer string, latencyMs int64) (domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return domain.AnswerRecord{}, domain.ErrSessionNotActive
	}
	if _, ok := s.answers[participantID]; ok {
		return domain.AnswerRecord{}, domain.ErrDuplicateSubmission
	}

	rec := domain.AnswerRecord{
		Answer:      answer,
		LatencyMs:   latencyMs,
		SubmittedAt: s.now(),
		Correct:     answer == s.correctOptionID,
	}
	s.answers[participantID] = rec
	return rec, nil
}

// results tallies the current round's answers.
func (s *Session) results() domain.ResultsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultsLocked()
}

func (s *Session) resultsLocked() domain.ResultsSummary {
	summary := domain.ResultsSummary{
		OptionCounts: make(map[string]int),
	}
	var totalLatency int64
	for _, rec := range s.answers {
		summary.OptionCounts[rec.Answer]++
		if rec.Correct {
			summary.CorrectCount++
		} else {
			summary.IncorrectCount++
		}
		totalLatency += rec.LatencyMs
	}
	summary.TotalResponses = len(s.answers)
	if summary.TotalResponses > 0 {
		summary.AvgLatencyMs = int64(math.Round(float64(totalLatency) / float64(summary.TotalResponses)))
	}
	return summary
}

// state snapshots the session for reconnecting clients.
func (s *Session) state() domain.QuizState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.QuizState{
		SlideID:   s.slideID,
		Active:    s.active,
		TimeLimit: s.timeLimit,
		Results:   s.resultsLocked(),
	}
	if !s.startTime.IsZero() {
		t := s.startTime
		st.StartTime = &t
	}
	return st
}

func (s *Session) cancelAutoEndLocked() {
	if s.autoEnd != nil {
		s.autoEnd.Stop()
		s.autoEnd = nil
	}
}
