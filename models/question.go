package models

import (
	"time"

	"gorm.io/gorm"
)

// Question is a question-bank entry. Created by the admin workflow or the
// AI generation endpoint; read-only to the session orchestrator.
type Question struct {
	ID         string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Prompt     string `gorm:"type:text;not null" json:"prompt"`
	Answer     string `gorm:"type:text" json:"answer,omitempty"` // Model answer, optional
	Category   string `gorm:"size:100;not null;index" json:"category"`
	Difficulty string `gorm:"size:20;not null;index;check:difficulty IN ('easy', 'medium', 'hard')" json:"difficulty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// QuestionFilter narrows question sampling by category and/or difficulty.
// Zero values match everything.
type QuestionFilter struct {
	Category   string
	Difficulty string
}
