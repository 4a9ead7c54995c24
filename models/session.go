package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session statuses. Transitions only move forward:
// created -> in_progress -> completed.
const (
	SessionCreated    = "created"
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
)

// Session records one interview attempt, linking a user to an ordered set of
// question slots. Sessions are soft-deleted only.
type Session struct {
	ID            string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID        string     `gorm:"type:uuid;not null;index" json:"user_id"`
	Status        string     `gorm:"not null;default:'created';check:status IN ('created', 'in_progress', 'completed')" json:"status"`
	Role          string     `gorm:"size:100" json:"role,omitempty"`          // Target role, e.g. "Backend Engineer"
	Experience    int        `json:"experience"`                              // Years of experience, used in prompts
	TopicsToFocus string     `gorm:"size:255" json:"topics_to_focus,omitempty"`
	QuestionCount int        `gorm:"not null" json:"question_count"`
	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User      User              `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Questions []SessionQuestion `gorm:"foreignKey:SessionID" json:"questions,omitempty"`
}

// SessionQuestion is one slot in a session: the question at a position plus
// the candidate's answer and the AI feedback for that same position. Answer
// and feedback columns are nullable, so a session can never hold more
// answers than questions, nor feedback without an answer slot.
type SessionQuestion struct {
	ID         string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SessionID  string     `gorm:"type:uuid;not null;uniqueIndex:idx_session_position" json:"session_id"`
	Position   int        `gorm:"not null;uniqueIndex:idx_session_position" json:"position"`
	QuestionID string     `gorm:"type:uuid;not null" json:"question_id"`
	Answer     *string    `gorm:"type:text" json:"answer,omitempty"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	Feedback   *string    `gorm:"type:text" json:"feedback,omitempty"`
	FeedbackAt *time.Time `json:"feedback_at,omitempty"`
	IsPinned   bool       `gorm:"not null;default:false" json:"is_pinned"`
	Note       string     `gorm:"type:text" json:"note,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Session  Session  `gorm:"foreignKey:SessionID" json:"-"`
	Question Question `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
}

// BeforeCreate assigns slot IDs client-side. Slots are batch-inserted with
// the session, so their IDs are known before the round trip.
func (sq *SessionQuestion) BeforeCreate(tx *gorm.DB) error {
	if sq.ID == "" {
		sq.ID = uuid.NewString()
	}
	return nil
}
