package report

import (
	"sort"

	"github.com/google/uuid"

	"github.com/openquiz/quizmaster-api/internal/domain"
)

// Rank computes the normalized ranking over a set of quiz attempts. Each
// attempt contributes score/questions as a percentage; a user's entry is the
// mean of their attempt percentages. Attempts against quizzes with zero
// registered questions carry no information and are excluded rather than
// counted as 0%. Users whose every attempt is excluded do not appear.
//
// Ordering is descending by mean percentage, ties broken by user ID
// ascending so the result is deterministic regardless of input order.
// A topN of zero or less returns the full ranking.
func Rank(attempts []domain.QuizAttempt, topN int) []domain.RankedPerformanceEntry {
	type agg struct {
		displayName string
		sum         float64
		count       int
	}

	byUser := make(map[uuid.UUID]*agg)
	var order []uuid.UUID

	for _, a := range attempts {
		if a.QuestionCount <= 0 {
			// Zero-question quiz: excluded, never a 0/0 term.
			continue
		}

		entry, ok := byUser[a.UserID]
		if !ok {
			entry = &agg{displayName: a.DisplayName}
			byUser[a.UserID] = entry
			order = append(order, a.UserID)
		}
		entry.sum += float64(a.Score) / float64(a.QuestionCount) * 100
		entry.count++
	}

	entries := make([]domain.RankedPerformanceEntry, 0, len(order))
	for _, id := range order {
		entry := byUser[id]
		entries = append(entries, domain.RankedPerformanceEntry{
			UserID:         id,
			DisplayName:    entry.displayName,
			MeanPercentage: entry.sum / float64(entry.count),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MeanPercentage != entries[j].MeanPercentage {
			return entries[i].MeanPercentage > entries[j].MeanPercentage
		}
		return entries[i].UserID.String() < entries[j].UserID.String()
	})

	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}
