package domain

import (
	"time"

	"github.com/google/uuid"
)

// Quiz is the minimal projection of a quiz needed by reminders and
// ranking: its identity, display labels and question count.
type Quiz struct {
	ID            uuid.UUID
	SubjectName   string
	ChapterName   string
	QuestionCount int
	CreatedAt     time.Time
}

// Score is one quiz attempt by one user.
type Score struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	QuizID      uuid.UUID
	TotalScored int
	Timestamp   time.Time
}
