package domain

import "time"

// QuizSlideConfig describes a quiz slide as authored in the presentation.
// Read-only to this service; TimeLimit is in seconds, zero means untimed.
type QuizSlideConfig struct {
	SlideID         string `json:"slideId"`
	TimeLimit       int    `json:"timeLimit"`
	CorrectOptionID string `json:"correctOptionId"`
}

// AnswerRecord is one participant's answer within a live round. Correctness
// is frozen at submission time and never recomputed.
type AnswerRecord struct {
	Answer      string    `json:"answer"`
	LatencyMs   int64     `json:"responseTime"`
	SubmittedAt time.Time `json:"submittedAt"`
	Correct     bool      `json:"isCorrect"`
}

// ResultsSummary is the live tally for the current round of one slide.
type ResultsSummary struct {
	TotalResponses int            `json:"totalResponses"`
	OptionCounts   map[string]int `json:"optionCounts"`
	CorrectCount   int            `json:"correctCount"`
	IncorrectCount int            `json:"incorrectCount"`
	AvgLatencyMs   int64          `json:"averageResponseTime"`
}

// QuizState is the session snapshot returned to reconnecting clients.
type QuizState struct {
	SlideID   string         `json:"slideId"`
	Active    bool           `json:"isActive"`
	TimeLimit int            `json:"timeLimit,omitempty"`
	StartTime *time.Time     `json:"startTime"`
	Results   ResultsSummary `json:"results"`
}

// SlideScore is one scored slide inside a participant's ledger row.
type SlideScore struct {
	SlideID    string    `json:"slideId"`
	Score      int       `json:"score"`
	LatencyMs  int64     `json:"responseTime"`
	Correct    bool      `json:"isCorrect"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// ParticipantScore is the durable per-(presentation, participant) row.
// TotalScore always equals the sum of the SlideScores entries; at most one
// entry exists per slide (resubmission replaces).
type ParticipantScore struct {
	PresentationID  string       `json:"presentationId"`
	ParticipantID   string       `json:"participantId"`
	ParticipantName string       `json:"participantName"`
	TotalScore      int          `json:"totalScore"`
	SlideScores     []SlideScore `json:"quizScores"`
	LastUpdated     time.Time    `json:"lastUpdated"`
}

// SlideScoreFor returns the entry for slideID, if any.
func (p ParticipantScore) SlideScoreFor(slideID string) (SlideScore, bool) {
	for _, s := range p.SlideScores {
		if s.SlideID == slideID {
			return s, true
		}
	}
	return SlideScore{}, false
}

// AnswerEvent is the append-only audit record of one accepted submission.
type AnswerEvent struct {
	PresentationID  string    `json:"presentationId"`
	SlideID         string    `json:"slideId"`
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName"`
	Answer          string    `json:"answer"`
	LatencyMs       int64     `json:"responseTime"`
	Correct         bool      `json:"isCorrect"`
	Score           int       `json:"score"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// LeaderboardEntry is one ranked row in any leaderboard view. Score carries
// the per-slide score in single-slide views; Delta carries the points gained
// on the most recent slide in the delta view.
type LeaderboardEntry struct {
	Rank            int    `json:"rank"`
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
	Score           int    `json:"score,omitempty"`
	TotalScore      int    `json:"totalScore"`
	Delta           int    `json:"delta"`
	QuizCount       int    `json:"quizCount"`
	LatencyMs       int64  `json:"responseTime,omitempty"`
}
