package domain

import "time"

// QuizStartedEvent is broadcast to a presentation when a round begins.
type QuizStartedEvent struct {
	SlideID   string    `json:"slideId"`
	TimeLimit int       `json:"timeLimit"`
	StartTime time.Time `json:"startTime"`
}

// ResultsUpdatedEvent is broadcast to the presenter after each accepted answer.
type ResultsUpdatedEvent struct {
	SlideID string         `json:"slideId"`
	Results ResultsSummary `json:"results"`
}

// QuizEndedEvent is broadcast when a round ends, manually or by timer.
type QuizEndedEvent struct {
	SlideID     string             `json:"slideId"`
	Results     ResultsSummary     `json:"results"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// AnswerAck is returned to the submitting participant only.
type AnswerAck struct {
	SlideID   string `json:"slideId"`
	Correct   bool   `json:"isCorrect"`
	Score     int    `json:"score"`
	LatencyMs int64  `json:"responseTime"`
}
