package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prepdeck/backend/models"
)

// fakeBank serves a fixed set of questions.
type fakeBank struct {
	questions []models.Question
}

func (b *fakeBank) SampleQuestions(ctx context.Context, filter models.QuestionFilter, count int) ([]models.Question, error) {
	if count >= len(b.questions) {
		return b.questions, nil
	}
	return b.questions[:count], nil
}

// fakeStore is an in-memory session store with the same conditional-update
// semantics as the real repository.
type fakeStore struct {
	sessions map[string]*models.Session
	slots    map[string][]*models.SessionQuestion
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*models.Session),
		slots:    make(map[string][]*models.SessionQuestion),
	}
}

func (s *fakeStore) CreateSessionWithSlots(ctx context.Context, session *models.Session, questionIDs []string) error {
	s.nextID++
	session.ID = fmt.Sprintf("session-%d", s.nextID)
	s.sessions[session.ID] = session

	slots := make([]*models.SessionQuestion, 0, len(questionIDs))
	for i, qid := range questionIDs {
		slots = append(slots, &models.SessionQuestion{
			SessionID:  session.ID,
			Position:   i,
			QuestionID: qid,
			Question:   models.Question{ID: qid, Prompt: "prompt for " + qid},
		})
	}
	s.slots[session.ID] = slots
	return nil
}

func (s *fakeStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *fakeStore) GetSlot(ctx context.Context, sessionID string, position int) (*models.SessionQuestion, error) {
	slots, ok := s.slots[sessionID]
	if !ok || position < 0 || position >= len(slots) {
		return nil, nil
	}
	copied := *slots[position]
	return &copied, nil
}

func (s *fakeStore) StoreAnswer(ctx context.Context, sessionID string, position int, answer string) (bool, error) {
	slots, ok := s.slots[sessionID]
	if !ok || position < 0 || position >= len(slots) {
		return false, nil
	}
	// Mirrors the repository: the write is conditional on the session not
	// being completed at write time.
	if s.sessions[sessionID].Status == models.SessionCompleted {
		return false, nil
	}
	now := time.Now()
	slots[position].Answer = &answer
	slots[position].AnsweredAt = &now
	return true, nil
}

func (s *fakeStore) StoreFeedback(ctx context.Context, sessionID string, position int, feedback string) (bool, error) {
	slots, ok := s.slots[sessionID]
	if !ok || position < 0 || position >= len(slots) {
		return false, nil
	}
	if slots[position].Answer == nil {
		return false, nil
	}
	now := time.Now()
	slots[position].Feedback = &feedback
	slots[position].FeedbackAt = &now
	return true, nil
}

func (s *fakeStore) MarkInProgress(ctx context.Context, sessionID string) error {
	if session, ok := s.sessions[sessionID]; ok && session.Status == models.SessionCreated {
		session.Status = models.SessionInProgress
	}
	return nil
}

func (s *fakeStore) MarkCompleted(ctx context.Context, sessionID string, at time.Time) error {
	if session, ok := s.sessions[sessionID]; ok && session.Status != models.SessionCompleted {
		session.Status = models.SessionCompleted
		session.CompletedAt = &at
	}
	return nil
}

func (s *fakeStore) CountUnanswered(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	for _, slot := range s.slots[sessionID] {
		if slot.Answer == nil {
			count++
		}
	}
	return count, nil
}

// completingStore completes the session immediately after the first status
// read, simulating a CompleteSession racing a SubmitAnswer.
type completingStore struct {
	*fakeStore
	sessionID string
	completed bool
}

func (s *completingStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.fakeStore.GetSession(ctx, sessionID)
	if !s.completed && sessionID == s.sessionID {
		s.completed = true
		s.fakeStore.MarkCompleted(ctx, sessionID, time.Now())
	}
	return session, err
}

// fakeGateway fails a configured number of times before succeeding.
type fakeGateway struct {
	failures int
	response string
	calls    int
}

func (g *fakeGateway) Generate(ctx context.Context, userID, prompt string) (string, error) {
	g.calls++
	if g.calls <= g.failures {
		return "", upstreamUnavailable(errors.New("deadline exceeded"))
	}
	return g.response, nil
}

// eventRecorder captures notifier calls.
type eventRecorder struct {
	events []string
}

func (r *eventRecorder) NotifyAnswerStored(userID, sessionID string, position int) {
	r.events = append(r.events, fmt.Sprintf("answer:%d", position))
}

func (r *eventRecorder) NotifyFeedbackReady(userID, sessionID string, position int) {
	r.events = append(r.events, fmt.Sprintf("feedback:%d", position))
}

func (r *eventRecorder) NotifySessionCompleted(userID, sessionID string) {
	r.events = append(r.events, "completed")
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected a domain error, got %v", err)
	}
	return domainErr.Code
}

func bankWith(n int) *fakeBank {
	questions := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, models.Question{ID: fmt.Sprintf("q-%d", i), Prompt: fmt.Sprintf("question %d", i)})
	}
	return &fakeBank{questions: questions}
}

func newTestOrchestrator(bankSize int, gateway *fakeGateway) (*Orchestrator, *fakeStore) {
	store := newFakeStore()
	if gateway == nil {
		gateway = &fakeGateway{response: "solid answer"}
	}
	return NewOrchestrator(bankWith(bankSize), store, gateway), store
}

func mustCreateSession(t *testing.T, o *Orchestrator, count int) *models.Session {
	t.Helper()
	session, err := o.CreateSession(context.Background(), "user-1", CreateSessionParams{
		QuestionCount: count,
		Role:          "Backend Engineer",
		Experience:    3,
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("opens in created status with sampled questions", func(t *testing.T) {
		o, store := newTestOrchestrator(5, nil)
		session := mustCreateSession(t, o, 3)

		if session.Status != models.SessionCreated {
			t.Errorf("expected status %q, got %q", models.SessionCreated, session.Status)
		}
		if session.QuestionCount != 3 {
			t.Errorf("expected 3 questions, got %d", session.QuestionCount)
		}
		slots := store.slots[session.ID]
		if len(slots) != 3 {
			t.Fatalf("expected 3 slots, got %d", len(slots))
		}
		for i, slot := range slots {
			if slot.Position != i {
				t.Errorf("slot %d has position %d", i, slot.Position)
			}
			if slot.Answer != nil || slot.Feedback != nil {
				t.Errorf("slot %d should start empty", i)
			}
		}
	})

	t.Run("caps at available questions", func(t *testing.T) {
		o, _ := newTestOrchestrator(2, nil)
		session := mustCreateSession(t, o, 10)
		if session.QuestionCount != 2 {
			t.Errorf("expected 2 questions, got %d", session.QuestionCount)
		}
	})

	t.Run("rejects non-positive count", func(t *testing.T) {
		o, _ := newTestOrchestrator(5, nil)
		_, err := o.CreateSession(ctx, "user-1", CreateSessionParams{QuestionCount: 0})
		if codeOf(t, err) != CodeInsufficientQuestions {
			t.Errorf("expected %s, got %v", CodeInsufficientQuestions, err)
		}
	})

	t.Run("rejects empty bank", func(t *testing.T) {
		o, _ := newTestOrchestrator(0, nil)
		_, err := o.CreateSession(ctx, "user-1", CreateSessionParams{QuestionCount: 5})
		if codeOf(t, err) != CodeInsufficientQuestions {
			t.Errorf("expected %s, got %v", CodeInsufficientQuestions, err)
		}
	})
}

func TestSubmitAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("stores answer and starts the session", func(t *testing.T) {
		o, store := newTestOrchestrator(3, nil)
		session := mustCreateSession(t, o, 3)

		if err := o.SubmitAnswer(ctx, session.ID, 1, "my answer"); err != nil {
			t.Fatalf("SubmitAnswer failed: %v", err)
		}

		slot := store.slots[session.ID][1]
		if slot.Answer == nil || *slot.Answer != "my answer" {
			t.Errorf("answer not stored: %v", slot.Answer)
		}
		if store.sessions[session.ID].Status != models.SessionInProgress {
			t.Errorf("expected status %q, got %q", models.SessionInProgress, store.sessions[session.ID].Status)
		}
	})

	t.Run("overwrites an existing answer", func(t *testing.T) {
		o, store := newTestOrchestrator(3, nil)
		session := mustCreateSession(t, o, 3)

		if err := o.SubmitAnswer(ctx, session.ID, 0, "first try"); err != nil {
			t.Fatalf("SubmitAnswer failed: %v", err)
		}
		if err := o.SubmitAnswer(ctx, session.ID, 0, "second try"); err != nil {
			t.Fatalf("SubmitAnswer failed: %v", err)
		}

		slot := store.slots[session.ID][0]
		if *slot.Answer != "second try" {
			t.Errorf("expected overwrite, got %q", *slot.Answer)
		}
		if store.sessions[session.ID].Status != models.SessionInProgress {
			t.Errorf("status should stay in_progress, got %q", store.sessions[session.ID].Status)
		}
	})

	t.Run("rejects out-of-range indexes", func(t *testing.T) {
		o, _ := newTestOrchestrator(3, nil)
		session := mustCreateSession(t, o, 3)

		for _, index := range []int{-1, 3, 100} {
			err := o.SubmitAnswer(ctx, session.ID, index, "answer")
			if codeOf(t, err) != CodeInvalidIndex {
				t.Errorf("index %d: expected %s, got %v", index, CodeInvalidIndex, err)
			}
		}
	})

	t.Run("rejects unknown session", func(t *testing.T) {
		o, _ := newTestOrchestrator(3, nil)
		err := o.SubmitAnswer(ctx, "no-such-session", 0, "answer")
		if codeOf(t, err) != CodeSessionNotFound {
			t.Errorf("expected %s, got %v", CodeSessionNotFound, err)
		}
	})

	t.Run("rejects a session that completes between read and write", func(t *testing.T) {
		o, store := newTestOrchestrator(1, nil)
		session := mustCreateSession(t, o, 1)

		// Completion lands after the orchestrator's status read but before
		// the answer write; the conditional write must still reject it.
		racing := &completingStore{fakeStore: store, sessionID: session.ID}
		o.sessions = racing

		err := o.SubmitAnswer(ctx, session.ID, 0, "late answer")
		if codeOf(t, err) != CodeSessionClosed {
			t.Errorf("expected %s, got %v", CodeSessionClosed, err)
		}
		if store.slots[session.ID][0].Answer != nil {
			t.Error("answer must not be stored in a completed session")
		}
	})

	t.Run("rejects completed session", func(t *testing.T) {
		o, _ := newTestOrchestrator(1, nil)
		session := mustCreateSession(t, o, 1)

		if err := o.SubmitAnswer(ctx, session.ID, 0, "answer"); err != nil {
			t.Fatalf("SubmitAnswer failed: %v", err)
		}
		if _, err := o.CompleteSession(ctx, session.ID, false); err != nil {
			t.Fatalf("CompleteSession failed: %v", err)
		}

		err := o.SubmitAnswer(ctx, session.ID, 0, "too late")
		if codeOf(t, err) != CodeSessionClosed {
			t.Errorf("expected %s, got %v", CodeSessionClosed, err)
		}
	})
}

func TestRequestFeedback(t *testing.T) {
	ctx := context.Background()

	t.Run("persists feedback for an answered question", func(t *testing.T) {
		gateway := &fakeGateway{response: "good structure, add detail"}
		o, store := newTestOrchestrator(3, gateway)
		session := mustCreateSession(t, o, 3)

		if err := o.SubmitAnswer(ctx, session.ID, 2, "my answer"); err != nil {
			t.Fatalf("SubmitAnswer failed: %v", err)
		}

		feedback, err := o.RequestFeedback(ctx, session.ID, 2)
		if err != nil {
			t.Fatalf("RequestFeedback failed: %v", err)
		}
		if feedback != "good structure, add detail" {
			t.Errorf("unexpected feedback %q", feedback)
		}

		slot := store.slots[session.ID][2]
		if slot.Feedback == nil || *slot.Feedback != feedback {
			t.Errorf("feedback not persisted: %v", slot.Feedback)
		}
		if gateway.calls != 1 {
			t.Errorf("expected 1 gateway call, got %d", gateway.calls)
		}
	})

	t.Run("rejects unanswered question", func(t *testing.T) {
		o, _ := newTestOrchestrator(3, nil)
		session := mustCreateSession(t, o, 3)

		_, err := o.RequestFeedback(ctx, session.ID, 0)
		if codeOf(t, err) != CodeAnswerMissing {
			t.Errorf("expected %s, got %v", CodeAnswerMissing, err)
		}
	})

	t.Run("rejects out-of-range index", func(t *testing.T) {
		o, _ := newTestOrchestrator(3, nil)
		session := mustCreateSession(t, o, 3)

		_, err := o.RequestFeedback(ctx, session.ID, 7)
		if codeOf(t, err) != CodeInvalidIndex {
			t.Errorf("expected %s, got %v", CodeInvalidIndex, err)
		}
	})

	t.Run("retries the gateway once", func(t *testing.T) {
		gateway := &fakeGateway{failures: 1, response: "recovered"}
		o, store := newTestOrchestrator(3, gateway)
		session := mustCreateSession(t, o, 3)

		if err := o.SubmitAnswer(ctx, session.ID, 0, "my answer"); err != nil {
			t.Fatalf("SubmitAnswer failed: %v", err)
		}

		feedback, err := o.RequestFeedback(ctx, session.ID, 0)
		if err != nil {
			t.Fatalf("RequestFeedback failed after retry: %v", err)
		}
		if feedback != "recovered" {
			t.Errorf("unexpected feedback %q", feedback)
		}
		if gateway.calls != 2 {
			t.Errorf("expected 2 gateway calls, got %d", gateway.calls)
		}
		if store.slots[session.ID][0].Feedback == nil {
			t.Error("feedback not persisted after retry")
		}
	})

	t.Run("gives up after the second failure", func(t *testing.T) {
		gateway := &fakeGateway{failures: 2}
		o, store := newTestOrchestrator(3, gateway)
		session := mustCreateSession(t, o, 3)

		if err := o.SubmitAnswer(ctx, session.ID, 0, "my answer"); err != nil {
			t.Fatalf("SubmitAnswer failed: %v", err)
		}

		_, err := o.RequestFeedback(ctx, session.ID, 0)
		if codeOf(t, err) != CodeUpstreamUnavailable {
			t.Errorf("expected %s, got %v", CodeUpstreamUnavailable, err)
		}
		if gateway.calls != 2 {
			t.Errorf("expected exactly 2 gateway calls, got %d", gateway.calls)
		}
		if store.slots[session.ID][0].Feedback != nil {
			t.Error("failed generation must not persist feedback")
		}
	})
}

func TestCompleteSession(t *testing.T) {
	ctx := context.Background()

	answerAll := func(t *testing.T, o *Orchestrator, session *models.Session) {
		t.Helper()
		for i := 0; i < session.QuestionCount; i++ {
			if err := o.SubmitAnswer(ctx, session.ID, i, "answer"); err != nil {
				t.Fatalf("SubmitAnswer(%d) failed: %v", i, err)
			}
		}
	}

	t.Run("completes when every question is answered", func(t *testing.T) {
		o, _ := newTestOrchestrator(2, nil)
		session := mustCreateSession(t, o, 2)
		answerAll(t, o, session)

		completed, err := o.CompleteSession(ctx, session.ID, false)
		if err != nil {
			t.Fatalf("CompleteSession failed: %v", err)
		}
		if completed.Status != models.SessionCompleted {
			t.Errorf("expected status %q, got %q", models.SessionCompleted, completed.Status)
		}
		if completed.CompletedAt == nil {
			t.Error("CompletedAt not set")
		}
	})

	t.Run("rejects unanswered questions without force", func(t *testing.T) {
		o, store := newTestOrchestrator(3, nil)
		session := mustCreateSession(t, o, 3)

		if err := o.SubmitAnswer(ctx, session.ID, 0, "answer"); err != nil {
			t.Fatalf("SubmitAnswer failed: %v", err)
		}

		_, err := o.CompleteSession(ctx, session.ID, false)
		if codeOf(t, err) != CodeIncompleteAnswers {
			t.Errorf("expected %s, got %v", CodeIncompleteAnswers, err)
		}
		if store.sessions[session.ID].Status == models.SessionCompleted {
			t.Error("session must not complete with unanswered questions")
		}
	})

	t.Run("force skips the answer check", func(t *testing.T) {
		o, _ := newTestOrchestrator(3, nil)
		session := mustCreateSession(t, o, 3)

		completed, err := o.CompleteSession(ctx, session.ID, true)
		if err != nil {
			t.Fatalf("forced CompleteSession failed: %v", err)
		}
		if completed.Status != models.SessionCompleted {
			t.Errorf("expected status %q, got %q", models.SessionCompleted, completed.Status)
		}
	})

	t.Run("completing twice is idempotent", func(t *testing.T) {
		o, store := newTestOrchestrator(1, nil)
		session := mustCreateSession(t, o, 1)
		answerAll(t, o, session)

		first, err := o.CompleteSession(ctx, session.ID, false)
		if err != nil {
			t.Fatalf("CompleteSession failed: %v", err)
		}
		firstAt := store.sessions[session.ID].CompletedAt

		second, err := o.CompleteSession(ctx, session.ID, false)
		if err != nil {
			t.Fatalf("second CompleteSession failed: %v", err)
		}
		if second.Status != models.SessionCompleted || first.Status != models.SessionCompleted {
			t.Error("both calls must report completed")
		}
		if store.sessions[session.ID].CompletedAt != firstAt {
			t.Error("completion timestamp must not change on repeat calls")
		}
	})

	t.Run("rejects unknown session", func(t *testing.T) {
		o, _ := newTestOrchestrator(1, nil)
		_, err := o.CompleteSession(ctx, "no-such-session", false)
		if codeOf(t, err) != CodeSessionNotFound {
			t.Errorf("expected %s, got %v", CodeSessionNotFound, err)
		}
	})
}

func TestSessionEvents(t *testing.T) {
	ctx := context.Background()

	recorder := &eventRecorder{}
	o, _ := newTestOrchestrator(2, nil)
	o.SetNotifier(recorder)
	session := mustCreateSession(t, o, 2)

	if err := o.SubmitAnswer(ctx, session.ID, 0, "a"); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if _, err := o.RequestFeedback(ctx, session.ID, 0); err != nil {
		t.Fatalf("RequestFeedback failed: %v", err)
	}
	if err := o.SubmitAnswer(ctx, session.ID, 1, "b"); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if _, err := o.CompleteSession(ctx, session.ID, false); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}

	want := []string{"answer:0", "feedback:0", "answer:1", "completed"}
	if len(recorder.events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), recorder.events)
	}
	for i, event := range want {
		if recorder.events[i] != event {
			t.Errorf("event %d: expected %q, got %q", i, event, recorder.events[i])
		}
	}
}
