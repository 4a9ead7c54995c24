package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/prepdeck/backend/models"
	"gorm.io/gorm"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Question{},
		&models.Session{},
		&models.SessionQuestion{},
		&models.Quiz{},
		&models.QuizQuestion{},
	)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("Failed to create user", "error", err)
		return err
	}
	slog.Info("User created", "user_id", user.ID, "email", user.Email)
	return nil
}

func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by email", "error", err, "email", email)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

// SetUserGeminiKey stores the encrypted Gemini key for a user. An empty
// value clears the key.
func (r *GORMRepository) SetUserGeminiKey(ctx context.Context, userID, encryptedKey string) error {
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("gemini_key", encryptedKey).Error
	if err != nil {
		slog.Error("Failed to update user Gemini key", "error", err, "user_id", userID)
		return err
	}
	return nil
}

// Token operations
func (r *GORMRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, time.Now()).First(&refreshToken).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get refresh token", "error", err)
		return nil, err
	}
	return &refreshToken, nil
}

func (r *GORMRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) DeleteAllUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	return nil
}

// Question bank operations
func (r *GORMRepository) CreateQuestion(ctx context.Context, question *models.Question) error {
	if err := r.db.WithContext(ctx).Create(question).Error; err != nil {
		slog.Error("Failed to create question", "error", err)
		return err
	}
	slog.Info("Question created", "question_id", question.ID, "category", question.Category)
	return nil
}

func (r *GORMRepository) CreateQuestions(ctx context.Context, questions []models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&questions).Error; err != nil {
		slog.Error("Failed to create questions", "error", err, "count", len(questions))
		return err
	}
	slog.Info("Questions created", "count", len(questions))
	return nil
}

func (r *GORMRepository) GetQuestionByID(ctx context.Context, id string) (*models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&question).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get question by ID", "error", err, "question_id", id)
		return nil, err
	}
	return &question, nil
}

func (r *GORMRepository) ListQuestions(ctx context.Context, filter models.QuestionFilter) ([]models.Question, error) {
	var questions []models.Question
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Difficulty != "" {
		query = query.Where("difficulty = ?", filter.Difficulty)
	}
	if err := query.Find(&questions).Error; err != nil {
		slog.Error("Failed to list questions", "error", err)
		return nil, err
	}
	return questions, nil
}

func (r *GORMRepository) DeleteQuestion(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Question{}).Error; err != nil {
		slog.Error("Failed to delete question", "error", err, "question_id", id)
		return err
	}
	slog.Info("Question deleted", "question_id", id)
	return nil
}

// SampleQuestions returns up to count questions matching the filter, in
// random order. The selection is fixed by the session slots afterwards, so
// randomness here only decides which questions a session gets.
func (r *GORMRepository) SampleQuestions(ctx context.Context, filter models.QuestionFilter, count int) ([]models.Question, error) {
	if count <= 0 {
		return nil, nil
	}

	var questions []models.Question
	query := r.db.WithContext(ctx).Order("random()").Limit(count)
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Difficulty != "" {
		query = query.Where("difficulty = ?", filter.Difficulty)
	}
	if err := query.Find(&questions).Error; err != nil {
		slog.Error("Failed to sample questions", "error", err, "count", count)
		return nil, err
	}
	return questions, nil
}
