package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prepdeck/backend/models"
	"github.com/prepdeck/backend/repository"
)

type SessionEndpoints struct {
	repo         *repository.GORMRepository
	orchestrator *Orchestrator
}

func NewSessionEndpoints(repo *repository.GORMRepository, orchestrator *Orchestrator) *SessionEndpoints {
	return &SessionEndpoints{
		repo:         repo,
		orchestrator: orchestrator,
	}
}

type CreateSessionRequest struct {
	QuestionCount int    `json:"question_count"`
	Category      string `json:"category,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	Role          string `json:"role,omitempty"`
	Experience    int    `json:"experience,omitempty"`
	TopicsToFocus string `json:"topics_to_focus,omitempty"`
}

type SubmitAnswerRequest struct {
	QuestionIndex int    `json:"question_index"`
	Answer        string `json:"answer"`
}

type RequestFeedbackRequest struct {
	QuestionIndex int `json:"question_index"`
}

type CompleteSessionRequest struct {
	Force bool `json:"force"`
}

func (e *SessionEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", e.CreateSessionHandler)
		r.Get("/", e.GetSessionsHandler)
		r.Get("/{id}", e.GetSessionHandler)
		r.Delete("/{id}", e.DeleteSessionHandler)
		r.Post("/{id}/answers", e.SubmitAnswerHandler)
		r.Post("/{id}/feedback", e.RequestFeedbackHandler)
		r.Post("/{id}/complete", e.CompleteSessionHandler)
		r.Post("/{id}/questions/{position}/pin", e.TogglePinHandler)
		r.Put("/{id}/questions/{position}/note", e.SetNoteHandler)
	})
}

func (e *SessionEndpoints) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := e.orchestrator.CreateSession(r.Context(), user.ID, CreateSessionParams{
		QuestionCount: req.QuestionCount,
		Filter: models.QuestionFilter{
			Category:   req.Category,
			Difficulty: req.Difficulty,
		},
		Role:          req.Role,
		Experience:    req.Experience,
		TopicsToFocus: req.TopicsToFocus,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": session,
		"message": "Session created successfully",
	})

	slog.Info("Session created via API", "session_id", session.ID, "user_id", user.ID)
}

func (e *SessionEndpoints) GetSessionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessions, err := e.repo.ListSessions(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (e *SessionEndpoints) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	session, err := e.repo.GetSessionWithSlots(r.Context(), sessionID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if session == nil {
		writeError(w, sessionNotFound(sessionID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": session,
	})
}

func (e *SessionEndpoints) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")

	// Verify ownership before deleting
	session, err := e.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if session == nil || session.UserID != user.ID {
		writeError(w, sessionNotFound(sessionID))
		return
	}

	if err := e.repo.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	slog.Info("Session deleted via API", "session_id", sessionID, "user_id", user.ID)
}

func (e *SessionEndpoints) SubmitAnswerHandler(w http.ResponseWriter, r *http.Request) {
	user, session, ok := e.authorizeSession(w, r)
	if !ok {
		return
	}
	sessionID := session.ID

	var req SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := e.orchestrator.SubmitAnswer(r.Context(), sessionID, req.QuestionIndex, req.Answer); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":        "Answer submitted",
		"question_index": req.QuestionIndex,
	})

	slog.Info("Answer submitted via API", "session_id", sessionID, "user_id", user.ID, "question_index", req.QuestionIndex)
}

func (e *SessionEndpoints) RequestFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	user, session, ok := e.authorizeSession(w, r)
	if !ok {
		return
	}
	sessionID := session.ID

	var req RequestFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	feedback, err := e.orchestrator.RequestFeedback(r.Context(), sessionID, req.QuestionIndex)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"feedback":       feedback,
		"question_index": req.QuestionIndex,
	})

	slog.Info("Feedback served via API", "session_id", sessionID, "user_id", user.ID, "question_index", req.QuestionIndex)
}

func (e *SessionEndpoints) CompleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, current, ok := e.authorizeSession(w, r)
	if !ok {
		return
	}
	sessionID := current.ID

	var req CompleteSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	session, err := e.orchestrator.CompleteSession(r.Context(), sessionID, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": session,
		"message": "Session completed",
	})

	slog.Info("Session completed via API", "session_id", sessionID, "user_id", user.ID, "forced", req.Force)
}

// TogglePinHandler flips the pinned flag on one question slot. Pinned
// slots sort first when the session is fetched.
func (e *SessionEndpoints) TogglePinHandler(w http.ResponseWriter, r *http.Request) {
	user, session, ok := e.authorizeSession(w, r)
	if !ok {
		return
	}

	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		http.Error(w, "Invalid position", http.StatusBadRequest)
		return
	}

	toggled, err := e.repo.TogglePin(r.Context(), session.ID, position)
	if err != nil {
		writeError(w, err)
		return
	}
	if !toggled {
		writeError(w, invalidIndex(position, session.QuestionCount))
		return
	}

	slot, err := e.repo.GetSlot(r.Context(), session.ID, position)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"position":  position,
		"is_pinned": slot != nil && slot.IsPinned,
	})

	slog.Info("Slot pin toggled via API", "session_id", session.ID, "user_id", user.ID, "position", position)
}

type SetNoteRequest struct {
	Note string `json:"note"`
}

// SetNoteHandler stores the user's note on one question slot. An empty
// note clears it.
func (e *SessionEndpoints) SetNoteHandler(w http.ResponseWriter, r *http.Request) {
	user, session, ok := e.authorizeSession(w, r)
	if !ok {
		return
	}

	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		http.Error(w, "Invalid position", http.StatusBadRequest)
		return
	}

	var req SetNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := e.repo.SetSlotNote(r.Context(), session.ID, position, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	if !updated {
		writeError(w, invalidIndex(position, session.QuestionCount))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"position": position,
		"note":     req.Note,
	})

	slog.Info("Slot note updated via API", "session_id", session.ID, "user_id", user.ID, "position", position)
}

// authorizeSession resolves the user from context and checks that the
// session in the URL belongs to them.
func (e *SessionEndpoints) authorizeSession(w http.ResponseWriter, r *http.Request) (*models.User, *models.Session, bool) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return nil, nil, false
	}

	sessionID := chi.URLParam(r, "id")
	session, err := e.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}
	if session == nil || session.UserID != user.ID {
		writeError(w, sessionNotFound(sessionID))
		return nil, nil, false
	}

	return user, session, true
}
