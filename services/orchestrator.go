package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/prepdeck/backend/models"
)

// QuestionBank is the read side of the question repository used when a
// session is created.
type QuestionBank interface {
	SampleQuestions(ctx context.Context, filter models.QuestionFilter, count int) ([]models.Question, error)
}

// SessionStore persists sessions and their slots. Answer, feedback, and
// status writes must be atomic conditional updates; see the repository.
type SessionStore interface {
	CreateSessionWithSlots(ctx context.Context, session *models.Session, questionIDs []string) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	GetSlot(ctx context.Context, sessionID string, position int) (*models.SessionQuestion, error)
	StoreAnswer(ctx context.Context, sessionID string, position int, answer string) (bool, error)
	StoreFeedback(ctx context.Context, sessionID string, position int, feedback string) (bool, error)
	MarkInProgress(ctx context.Context, sessionID string) error
	MarkCompleted(ctx context.Context, sessionID string, at time.Time) error
	CountUnanswered(ctx context.Context, sessionID string) (int64, error)
}

// FeedbackGenerator produces critique text for a prompt on behalf of a user.
type FeedbackGenerator interface {
	Generate(ctx context.Context, userID, prompt string) (string, error)
}

// SessionNotifier receives lifecycle events for live clients. Optional.
type SessionNotifier interface {
	NotifyAnswerStored(userID, sessionID string, position int)
	NotifyFeedbackReady(userID, sessionID string, position int)
	NotifySessionCompleted(userID, sessionID string)
}

// Orchestrator sequences the interview session lifecycle: creation, answer
// submission, AI feedback, completion. It holds no state of its own; all
// coordination happens through conditional updates in the session store.
type Orchestrator struct {
	questions QuestionBank
	sessions  SessionStore
	gateway   FeedbackGenerator
	notifier  SessionNotifier
}

func NewOrchestrator(questions QuestionBank, sessions SessionStore, gateway FeedbackGenerator) *Orchestrator {
	return &Orchestrator{
		questions: questions,
		sessions:  sessions,
		gateway:   gateway,
	}
}

// SetNotifier attaches a live-event sink. Safe to leave unset.
func (o *Orchestrator) SetNotifier(notifier SessionNotifier) {
	o.notifier = notifier
}

// CreateSessionParams carries the request side of CreateSession.
type CreateSessionParams struct {
	QuestionCount int
	Filter        models.QuestionFilter
	Role          string
	Experience    int
	TopicsToFocus string
}

// CreateSession samples questions from the bank and opens a session in
// status created. min(requested, available) questions are selected; zero
// matches fail with INSUFFICIENT_QUESTIONS.
func (o *Orchestrator) CreateSession(ctx context.Context, userID string, params CreateSessionParams) (*models.Session, error) {
	if params.QuestionCount <= 0 {
		return nil, insufficientQuestions(params.QuestionCount, 0)
	}

	questions, err := o.questions.SampleQuestions(ctx, params.Filter, params.QuestionCount)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, insufficientQuestions(params.QuestionCount, 0)
	}

	questionIDs := make([]string, 0, len(questions))
	for _, q := range questions {
		questionIDs = append(questionIDs, q.ID)
	}

	session := &models.Session{
		UserID:        userID,
		Status:        models.SessionCreated,
		Role:          params.Role,
		Experience:    params.Experience,
		TopicsToFocus: params.TopicsToFocus,
		QuestionCount: len(questionIDs),
		StartedAt:     time.Now(),
	}

	if err := o.sessions.CreateSessionWithSlots(ctx, session, questionIDs); err != nil {
		return nil, err
	}

	slog.Info("Interview session opened", "session_id", session.ID, "user_id", userID, "question_count", len(questionIDs))
	return session, nil
}

// SubmitAnswer stores or overwrites the answer at a question index. The
// first submission moves the session from created to in_progress.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, sessionID string, index int, answer string) error {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return sessionNotFound(sessionID)
	}
	if session.Status == models.SessionCompleted {
		return sessionClosed(sessionID)
	}
	if index < 0 || index >= session.QuestionCount {
		return invalidIndex(index, session.QuestionCount)
	}

	stored, err := o.sessions.StoreAnswer(ctx, sessionID, index, answer)
	if err != nil {
		return err
	}
	if !stored {
		// The write is conditional on both the slot and the session still
		// being open; distinguish which condition failed.
		current, err := o.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if current == nil || current.Status == models.SessionCompleted {
			return sessionClosed(sessionID)
		}
		return invalidIndex(index, session.QuestionCount)
	}

	if session.Status == models.SessionCreated {
		if err := o.sessions.MarkInProgress(ctx, sessionID); err != nil {
			return err
		}
	}

	if o.notifier != nil {
		o.notifier.NotifyAnswerStored(session.UserID, sessionID, index)
	}

	slog.Info("Answer submitted", "session_id", sessionID, "position", index)
	return nil
}

// RequestFeedback builds a prompt from the question and the stored answer,
// calls the AI gateway, and persists the returned critique at the same
// index. The gateway call happens with no store state held; the write-back
// is a separate atomic step, so a timeout leaves the slot empty and the
// operation retryable.
func (o *Orchestrator) RequestFeedback(ctx context.Context, sessionID string, index int) (string, error) {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", sessionNotFound(sessionID)
	}
	if index < 0 || index >= session.QuestionCount {
		return "", invalidIndex(index, session.QuestionCount)
	}

	slot, err := o.sessions.GetSlot(ctx, sessionID, index)
	if err != nil {
		return "", err
	}
	if slot == nil {
		return "", invalidIndex(index, session.QuestionCount)
	}
	if slot.Answer == nil {
		return "", answerMissing(index)
	}

	prompt := buildFeedbackPrompt(session, slot.Question.Prompt, *slot.Answer)

	// Generative responses are not idempotent-safe to retry blindly; one
	// bounded retry, each attempt under the gateway's own timeout.
	feedback, err := o.gateway.Generate(ctx, session.UserID, prompt)
	if err != nil {
		slog.Warn("Feedback generation failed, retrying once", "error", err, "session_id", sessionID, "position", index)
		feedback, err = o.gateway.Generate(ctx, session.UserID, prompt)
	}
	if err != nil {
		return "", err
	}

	stored, err := o.sessions.StoreFeedback(ctx, sessionID, index, feedback)
	if err != nil {
		return "", err
	}
	if !stored {
		// The answer disappeared between the read and the write-back. The
		// feedback no longer corresponds to anything, so drop it.
		return "", answerMissing(index)
	}

	if o.notifier != nil {
		o.notifier.NotifyFeedbackReady(session.UserID, sessionID, index)
	}

	slog.Info("Feedback stored", "session_id", sessionID, "position", index, "feedback_length", len(feedback))
	return feedback, nil
}

// CompleteSession moves the session to completed. Idempotent once
// completed. Without force, every question must have an answer.
func (o *Orchestrator) CompleteSession(ctx context.Context, sessionID string, force bool) (*models.Session, error) {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, sessionNotFound(sessionID)
	}
	if session.Status == models.SessionCompleted {
		return session, nil
	}

	if !force {
		unanswered, err := o.sessions.CountUnanswered(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if unanswered > 0 {
			return nil, incompleteAnswers(unanswered)
		}
	}

	now := time.Now()
	if err := o.sessions.MarkCompleted(ctx, sessionID, now); err != nil {
		return nil, err
	}

	session.Status = models.SessionCompleted
	session.CompletedAt = &now

	if o.notifier != nil {
		o.notifier.NotifySessionCompleted(session.UserID, sessionID)
	}

	slog.Info("Session completed", "session_id", sessionID, "forced", force)
	return session, nil
}
