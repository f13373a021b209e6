package app

import "math"

// Scoring bounds for a single quiz question.
const (
	MinQuestionScore = 500
	MaxQuestionScore = 1000
)

// Score computes the points for one answer from correctness, response latency
// and the slide's time limit. Incorrect answers always score zero. Correct
// answers interpolate linearly from MaxQuestionScore (instant) down to
// MinQuestionScore (at the wire); answers past the limit get the minimum.
// A non-positive time limit means the slide is untimed and a correct answer
// scores the maximum regardless of latency.
func Score(correct bool, latencyMs int64, timeLimitSeconds int) int {
	if !correct {
		return 0
	}
	if timeLimitSeconds <= 0 {
		return MaxQuestionScore
	}

	maxTimeMs := int64(timeLimitSeconds) * 1000
	if latencyMs > maxTimeMs {
		return MinQuestionScore
	}

	ratio := float64(latencyMs) / float64(maxTimeMs)
	score := int(math.Round(MinQuestionScore + (MaxQuestionScore-MinQuestionScore)*(1-ratio)))

	// Clamp guards against negative client latencies and float overshoot.
	if score < MinQuestionScore {
		return MinQuestionScore
	}
	if score > MaxQuestionScore {
		return MaxQuestionScore
	}
	return score
}
