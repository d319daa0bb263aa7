package domain

import "github.com/google/uuid"

// UserPerformance is one row of the bulk performance report: how many
// quizzes a user attempted and their mean raw score.
type UserPerformance struct {
	UserID       uuid.UUID
	FullName     string
	Email        string
	QuizzesTaken int
	AverageScore float64
}

// QuizAttempt pairs a score with the question count of the quiz it was
// recorded against. It is the input row of the ranking computation.
type QuizAttempt struct {
	UserID        uuid.UUID
	DisplayName   string
	Score         int
	QuestionCount int
}

// RankedPerformanceEntry is one row of the normalized ranking. It is
// computed per reporting run and never persisted; ordering is a property
// of the computation.
type RankedPerformanceEntry struct {
	UserID         uuid.UUID `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	MeanPercentage float64   `json:"mean_percentage"`
}
