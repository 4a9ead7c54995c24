package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/prepdeck/backend/models"
	"gorm.io/gorm"
)

// Session operations. Answer, feedback, and status writes are single
// conditional UPDATEs so that concurrent requests against the same session
// serialize in the database, not in the process.

func (r *GORMRepository) CreateSessionWithSlots(ctx context.Context, session *models.Session, questionIDs []string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		slots := make([]models.SessionQuestion, 0, len(questionIDs))
		for i, qid := range questionIDs {
			slots = append(slots, models.SessionQuestion{
				SessionID:  session.ID,
				Position:   i,
				QuestionID: qid,
			})
		}
		if len(slots) > 0 {
			if err := tx.Create(&slots).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to create session", "error", err, "user_id", session.UserID)
		return err
	}
	slog.Info("Session created", "session_id", session.ID, "user_id", session.UserID, "question_count", len(questionIDs))
	return nil
}

func (r *GORMRepository) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get session", "error", err, "session_id", sessionID)
		return nil, err
	}
	return &session, nil
}

// GetSessionWithSlots loads a session owned by the user together with its
// slots and the underlying question records. Pinned slots sort first, then
// positional order.
func (r *GORMRepository) GetSessionWithSlots(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_pinned DESC, position")
		}).
		Preload("Questions.Question").
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get session with slots", "error", err, "session_id", sessionID, "user_id", userID)
		return nil, err
	}
	return &session, nil
}

func (r *GORMRepository) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		slog.Error("Failed to list sessions", "error", err, "user_id", userID)
		return nil, err
	}
	return sessions, nil
}

func (r *GORMRepository) DeleteSession(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.SessionQuestion{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", sessionID).Delete(&models.Session{}).Error
	})
	if err != nil {
		slog.Error("Failed to delete session", "error", err, "session_id", sessionID)
		return err
	}
	slog.Info("Session deleted", "session_id", sessionID)
	return nil
}

func (r *GORMRepository) GetSlot(ctx context.Context, sessionID string, position int) (*models.SessionQuestion, error) {
	var slot models.SessionQuestion
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND position = ?", sessionID, position).
		Preload("Question").
		First(&slot).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get session slot", "error", err, "session_id", sessionID, "position", position)
		return nil, err
	}
	return &slot, nil
}

// StoreAnswer writes the answer at a position as one atomic UPDATE. The
// session's status is checked inside the same statement, so an answer can
// never land in a session that completed after the caller last read it.
// Returns false when no slot exists at that position or the session is
// completed.
func (r *GORMRepository) StoreAnswer(ctx context.Context, sessionID string, position int, answer string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SessionQuestion{}).
		Where("session_id = ? AND position = ?", sessionID, position).
		Where("EXISTS (SELECT 1 FROM sessions WHERE sessions.id = ? AND sessions.status <> ? AND sessions.deleted_at IS NULL)",
			sessionID, models.SessionCompleted).
		Updates(map[string]interface{}{
			"answer":      answer,
			"answered_at": now,
		})
	if result.Error != nil {
		slog.Error("Failed to store answer", "error", result.Error, "session_id", sessionID, "position", position)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// StoreFeedback writes feedback at a position, conditional on an answer
// being present, so feedback can never outrun answers even under races.
func (r *GORMRepository) StoreFeedback(ctx context.Context, sessionID string, position int, feedback string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SessionQuestion{}).
		Where("session_id = ? AND position = ? AND answer IS NOT NULL", sessionID, position).
		Updates(map[string]interface{}{
			"feedback":    feedback,
			"feedback_at": now,
		})
	if result.Error != nil {
		slog.Error("Failed to store feedback", "error", result.Error, "session_id", sessionID, "position", position)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkInProgress advances created -> in_progress. A no-op when the session
// already moved on; status never goes backward.
func (r *GORMRepository) MarkInProgress(ctx context.Context, sessionID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND status = ?", sessionID, models.SessionCreated).
		Update("status", models.SessionInProgress)
	if result.Error != nil {
		slog.Error("Failed to mark session in progress", "error", result.Error, "session_id", sessionID)
		return result.Error
	}
	return nil
}

// MarkCompleted advances the session to completed. Idempotent: a session
// that is already completed is left untouched.
func (r *GORMRepository) MarkCompleted(ctx context.Context, sessionID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND status <> ?", sessionID, models.SessionCompleted).
		Updates(map[string]interface{}{
			"status":       models.SessionCompleted,
			"completed_at": at,
		})
	if result.Error != nil {
		slog.Error("Failed to mark session completed", "error", result.Error, "session_id", sessionID)
		return result.Error
	}
	return nil
}

func (r *GORMRepository) CountUnanswered(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionQuestion{}).
		Where("session_id = ? AND answer IS NULL", sessionID).
		Count(&count).Error
	if err != nil {
		slog.Error("Failed to count unanswered slots", "error", err, "session_id", sessionID)
		return 0, err
	}
	return count, nil
}

// TogglePin flips the pinned flag on a slot. Returns false when no slot
// exists at that position, and the new pin state otherwise.
func (r *GORMRepository) TogglePin(ctx context.Context, sessionID string, position int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SessionQuestion{}).
		Where("session_id = ? AND position = ?", sessionID, position).
		Update("is_pinned", gorm.Expr("NOT is_pinned"))
	if result.Error != nil {
		slog.Error("Failed to toggle pin", "error", result.Error, "session_id", sessionID, "position", position)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetSlotNote stores the user's note on a slot. An empty note clears it.
// Returns false when no slot exists at that position.
func (r *GORMRepository) SetSlotNote(ctx context.Context, sessionID string, position int, note string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SessionQuestion{}).
		Where("session_id = ? AND position = ?", sessionID, position).
		Update("note", note)
	if result.Error != nil {
		slog.Error("Failed to set slot note", "error", result.Error, "session_id", sessionID, "position", position)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
