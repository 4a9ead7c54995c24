package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Quiz statuses. A quiz moves forward once: active -> completed.
const (
	QuizActive    = "active"
	QuizCompleted = "completed"
)

// Quiz is a multiple-choice self-test generated from the material a session
// covered. Score and submission fields stay null until the quiz is submitted.
type Quiz struct {
	ID               string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SessionID        string     `gorm:"type:uuid;not null;index" json:"session_id"`
	UserID           string     `gorm:"type:uuid;not null;index" json:"user_id"`
	Status           string     `gorm:"not null;default:'active';check:status IN ('active', 'completed')" json:"status"`
	QuestionCount    int        `gorm:"not null" json:"question_count"`
	Score            *int       `json:"score,omitempty"`
	Percentage       *float64   `json:"percentage,omitempty"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Session   Session        `gorm:"foreignKey:SessionID" json:"-"`
	User      User           `gorm:"foreignKey:UserID" json:"-"`
	Questions []QuizQuestion `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

// QuizQuestion is one multiple-choice item. Options always has exactly four
// entries and CorrectIndex points into it. SelectedIndex and IsCorrect are
// null until the quiz is submitted. CorrectIndex and Explanation never leave
// through the default JSON shape; results expose them only after submission.
type QuizQuestion struct {
	ID            string   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	QuizID        string   `gorm:"type:uuid;not null;uniqueIndex:idx_quiz_position" json:"quiz_id"`
	Position      int      `gorm:"not null;uniqueIndex:idx_quiz_position" json:"position"`
	Prompt        string   `gorm:"type:text;not null" json:"prompt"`
	Options       []string `gorm:"serializer:json;type:text;not null" json:"options"`
	CorrectIndex  int      `gorm:"not null" json:"-"`
	Explanation   string   `gorm:"type:text" json:"-"`
	SelectedIndex *int     `json:"selected_index,omitempty"`
	IsCorrect     *bool    `json:"is_correct,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relationships
	Quiz Quiz `gorm:"foreignKey:QuizID" json:"-"`
}

// BeforeCreate assigns question IDs client-side so the batch insert with the
// quiz works without a second round trip.
func (qq *QuizQuestion) BeforeCreate(tx *gorm.DB) error {
	if qq.ID == "" {
		qq.ID = uuid.NewString()
	}
	return nil
}
