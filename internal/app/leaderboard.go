package app

import (
	"sort"
	"time"

	"audience-quiz-service/internal/domain"
)

// DefaultLeaderboardLimit is used when callers pass a non-positive limit.
const DefaultLeaderboardLimit = 10

// Leaderboard views are always derived from ledger rows on each call; the
// ledger is the single source of truth and views must never diverge from it.

// SingleSlideLeaderboard ranks participants on one slide's score. Ties break
// by latency (faster wins), then answered-at (earlier wins), then name.
func SingleSlideLeaderboard(rows []domain.ParticipantScore, slideID string, limit int) []domain.LeaderboardEntry {
	type slideRow struct {
		row   domain.ParticipantScore
		entry domain.SlideScore
	}
	scored := make([]slideRow, 0, len(rows))
	for _, row := range rows {
		if entry, ok := row.SlideScoreFor(slideID); ok {
			scored = append(scored, slideRow{row: row, entry: entry})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.entry.Score != b.entry.Score {
			return a.entry.Score > b.entry.Score
		}
		if a.entry.LatencyMs != b.entry.LatencyMs {
			return a.entry.LatencyMs < b.entry.LatencyMs
		}
		if !a.entry.AnsweredAt.Equal(b.entry.AnsweredAt) {
			return a.entry.AnsweredAt.Before(b.entry.AnsweredAt)
		}
		return a.row.ParticipantName < b.row.ParticipantName
	})

	entries := make([]domain.LeaderboardEntry, 0, clampLimit(limit))
	for i, s := range scored {
		if i >= clampLimit(limit) {
			break
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:            i + 1,
			ParticipantID:   s.row.ParticipantID,
			ParticipantName: s.row.ParticipantName,
			Score:           s.entry.Score,
			TotalScore:      s.row.TotalScore,
			QuizCount:       len(s.row.SlideScores),
			LatencyMs:       s.entry.LatencyMs,
		})
	}
	return entries
}

// AllTimeLeaderboard ranks participants by total score. Beyond the total the
// ordering falls back to last-updated (earlier wins) and name so equal totals
// still rank deterministically.
func AllTimeLeaderboard(rows []domain.ParticipantScore, limit int) []domain.LeaderboardEntry {
	sorted := sortedByTotal(rows)

	entries := make([]domain.LeaderboardEntry, 0, clampLimit(limit))
	for i, row := range sorted {
		if i >= clampLimit(limit) {
			break
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:            i + 1,
			ParticipantID:   row.ParticipantID,
			ParticipantName: row.ParticipantName,
			TotalScore:      row.TotalScore,
			QuizCount:       len(row.SlideScores),
		})
	}
	return entries
}

// DeltaLeaderboard is the all-time ordering annotated with the points each
// participant gained on slideID; zero when they did not answer it.
func DeltaLeaderboard(rows []domain.ParticipantScore, slideID string, limit int) []domain.LeaderboardEntry {
	sorted := sortedByTotal(rows)

	entries := make([]domain.LeaderboardEntry, 0, clampLimit(limit))
	for i, row := range sorted {
		if i >= clampLimit(limit) {
			break
		}
		delta := 0
		if entry, ok := row.SlideScoreFor(slideID); ok {
			delta = entry.Score
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:            i + 1,
			ParticipantID:   row.ParticipantID,
			ParticipantName: row.ParticipantName,
			TotalScore:      row.TotalScore,
			Delta:           delta,
			QuizCount:       len(row.SlideScores),
		})
	}
	return entries
}

// CumulativeLeaderboards walks the ordered quiz slides once, accumulating a
// running total per participant, and snapshots the ranking after each slide.
// The snapshot after the last slide is the authoritative final leaderboard.
func CumulativeLeaderboards(rows []domain.ParticipantScore, orderedSlideIDs []string, limit int) (map[string][]domain.LeaderboardEntry, []domain.LeaderboardEntry) {
	type running struct {
		participantID  string
		name           string
		totalScore     int
		quizCount      int
		lastAnsweredAt time.Time
	}

	acc := make(map[string]*running)
	bySlide := make(map[string][]domain.LeaderboardEntry, len(orderedSlideIDs))
	var final []domain.LeaderboardEntry

	for _, slideID := range orderedSlideIDs {
		for _, row := range rows {
			entry, ok := row.SlideScoreFor(slideID)
			if !ok {
				continue
			}
			r, seen := acc[row.ParticipantID]
			if !seen {
				r = &running{participantID: row.ParticipantID}
				acc[row.ParticipantID] = r
			}
			r.name = row.ParticipantName
			r.totalScore += entry.Score
			r.quizCount++
			// The walked slide's timestamp wins even when a resubmission
			// carries an earlier one than a prior slide's.
			r.lastAnsweredAt = entry.AnsweredAt
		}

		standings := make([]*running, 0, len(acc))
		for _, r := range acc {
			standings = append(standings, r)
		}
		sort.Slice(standings, func(i, j int) bool {
			a, b := standings[i], standings[j]
			if a.totalScore != b.totalScore {
				return a.totalScore > b.totalScore
			}
			if a.quizCount != b.quizCount {
				return a.quizCount > b.quizCount
			}
			if !a.lastAnsweredAt.Equal(b.lastAnsweredAt) {
				return a.lastAnsweredAt.Before(b.lastAnsweredAt)
			}
			return a.name < b.name
		})

		snapshot := make([]domain.LeaderboardEntry, 0, clampLimit(limit))
		for i, r := range standings {
			if i >= clampLimit(limit) {
				break
			}
			snapshot = append(snapshot, domain.LeaderboardEntry{
				Rank:            i + 1,
				ParticipantID:   r.participantID,
				ParticipantName: r.name,
				TotalScore:      r.totalScore,
				QuizCount:       r.quizCount,
			})
		}
		bySlide[slideID] = snapshot
		final = snapshot
	}

	return bySlide, final
}

func sortedByTotal(rows []domain.ParticipantScore) []domain.ParticipantScore {
	sorted := make([]domain.ParticipantScore, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if !a.LastUpdated.Equal(b.LastUpdated) {
			return a.LastUpdated.Before(b.LastUpdated)
		}
		return a.ParticipantName < b.ParticipantName
	})
	return sorted
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	return limit
}
