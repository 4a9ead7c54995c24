package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/prepdeck/backend/models"
	"gorm.io/gorm"
)

// Quiz operations. Submission is a single transaction whose quiz-row UPDATE
// is conditional on the quiz still being active, so a double submit cannot
// overwrite a recorded score.

func (r *GORMRepository) CreateQuizWithQuestions(ctx context.Context, quiz *models.Quiz, questions []models.QuizQuestion) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(quiz).Error; err != nil {
			return err
		}
		for i := range questions {
			questions[i].QuizID = quiz.ID
			questions[i].Position = i
		}
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to create quiz", "error", err, "session_id", quiz.SessionID, "user_id", quiz.UserID)
		return err
	}
	quiz.Questions = questions
	slog.Info("Quiz created", "quiz_id", quiz.ID, "session_id", quiz.SessionID, "question_count", len(questions))
	return nil
}

func (r *GORMRepository) GetQuiz(ctx context.Context, quizID string) (*models.Quiz, error) {
	var quiz models.Quiz
	if err := r.db.WithContext(ctx).Where("id = ?", quizID).First(&quiz).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get quiz", "error", err, "quiz_id", quizID)
		return nil, err
	}
	return &quiz, nil
}

// GetQuizWithQuestions loads a quiz owned by the user with its questions in
// positional order.
func (r *GORMRepository) GetQuizWithQuestions(ctx context.Context, quizID, userID string) (*models.Quiz, error) {
	var quiz models.Quiz
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", quizID, userID).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		}).
		First(&quiz).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get quiz with questions", "error", err, "quiz_id", quizID, "user_id", userID)
		return nil, err
	}
	return &quiz, nil
}

// ListQuizzes returns the user's quizzes, optionally narrowed to one
// session. An empty sessionID matches all sessions.
func (r *GORMRepository) ListQuizzes(ctx context.Context, sessionID, userID string) ([]models.Quiz, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	var quizzes []models.Quiz
	err := query.Order("created_at DESC").Find(&quizzes).Error
	if err != nil {
		slog.Error("Failed to list quizzes", "error", err, "session_id", sessionID, "user_id", userID)
		return nil, err
	}
	return quizzes, nil
}

// ListCompletedQuizzes returns the user's submitted quizzes since a cutoff,
// newest first. A zero cutoff means all time.
func (r *GORMRepository) ListCompletedQuizzes(ctx context.Context, userID string, since time.Time) ([]models.Quiz, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.QuizCompleted)
	if !since.IsZero() {
		query = query.Where("submitted_at >= ?", since)
	}
	var quizzes []models.Quiz
	if err := query.Order("submitted_at DESC").Find(&quizzes).Error; err != nil {
		slog.Error("Failed to list completed quizzes", "error", err, "user_id", userID)
		return nil, err
	}
	return quizzes, nil
}

func (r *GORMRepository) CountQuizzes(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		slog.Error("Failed to count quizzes", "error", err, "user_id", userID)
		return 0, err
	}
	return count, nil
}

func (r *GORMRepository) DeleteQuiz(ctx context.Context, quizID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("quiz_id = ?", quizID).Delete(&models.QuizQuestion{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", quizID).Delete(&models.Quiz{}).Error
	})
	if err != nil {
		slog.Error("Failed to delete quiz", "error", err, "quiz_id", quizID)
		return err
	}
	slog.Info("Quiz deleted", "quiz_id", quizID)
	return nil
}

// QuizResult carries one graded answer from the service into the store.
type QuizResult struct {
	Position      int
	SelectedIndex int
	IsCorrect     bool
}

// SubmitQuiz records the score and graded answers in one transaction. The
// quiz UPDATE is conditional on status = 'active'; returns false without
// writing anything when the quiz was already submitted.
func (r *GORMRepository) SubmitQuiz(ctx context.Context, quizID string, score int, percentage float64, timeSpent int, results []QuizResult) (bool, error) {
	submitted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.Quiz{}).
			Where("id = ? AND status = ?", quizID, models.QuizActive).
			Updates(map[string]interface{}{
				"status":             models.QuizCompleted,
				"score":              score,
				"percentage":         percentage,
				"time_spent_seconds": timeSpent,
				"submitted_at":       now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		for _, res := range results {
			if err := tx.Model(&models.QuizQuestion{}).
				Where("quiz_id = ? AND position = ?", quizID, res.Position).
				Updates(map[string]interface{}{
					"selected_index": res.SelectedIndex,
					"is_correct":     res.IsCorrect,
				}).Error; err != nil {
				return err
			}
		}
		submitted = true
		return nil
	})
	if err != nil {
		slog.Error("Failed to submit quiz", "error", err, "quiz_id", quizID)
		return false, err
	}
	if submitted {
		slog.Info("Quiz submitted", "quiz_id", quizID, "score", score)
	}
	return submitted, nil
}
