package services

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prepdeck/backend/models"
	"github.com/prepdeck/backend/repository"
)

// QuestionEndpoints serves the question bank. Creation and deletion are
// admin-only; the bank is read-only to everyone else.
type QuestionEndpoints struct {
	repo          *repository.GORMRepository
	geminiService *GeminiService
	authService   *AuthService
}

type CreateQuestionRequest struct {
	Prompt     string `json:"prompt"`
	Answer     string `json:"answer,omitempty"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
}

type GenerateQuestionsRequest struct {
	Role          string `json:"role"`
	Experience    int    `json:"experience"`
	TopicsToFocus string `json:"topics_to_focus"`
	Count         int    `json:"count"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
}

func NewQuestionEndpoints(repo *repository.GORMRepository, geminiService *GeminiService, authService *AuthService) *QuestionEndpoints {
	return &QuestionEndpoints{
		repo:          repo,
		geminiService: geminiService,
		authService:   authService,
	}
}

func (e *QuestionEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/questions", func(r chi.Router) {
		r.Get("/", e.ListQuestionsHandler)
		r.Get("/{id}", e.GetQuestionHandler)
		r.Post("/{id}/explain", e.ExplainQuestionHandler)

		// Admin-only bank management
		r.Group(func(r chi.Router) {
			r.Use(e.authService.RequireAdmin)
			r.Post("/", e.CreateQuestionHandler)
			r.Post("/generate", e.GenerateQuestionsHandler)
			r.Delete("/{id}", e.DeleteQuestionHandler)
		})
	})
}

func (e *QuestionEndpoints) ListQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	filter := models.QuestionFilter{
		Category:   r.URL.Query().Get("category"),
		Difficulty: r.URL.Query().Get("difficulty"),
	}

	questions, err := e.repo.ListQuestions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"questions": questions,
		"count":     len(questions),
	})
}

func (e *QuestionEndpoints) GetQuestionHandler(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "id")
	question, err := e.repo.GetQuestionByID(r.Context(), questionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if question == nil {
		http.Error(w, "Question not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"question": question,
	})
}

func (e *QuestionEndpoints) CreateQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Prompt == "" || req.Category == "" || !validDifficulty(req.Difficulty) {
		http.Error(w, "prompt, category, and a valid difficulty are required", http.StatusBadRequest)
		return
	}

	question := &models.Question{
		Prompt:     req.Prompt,
		Answer:     req.Answer,
		Category:   req.Category,
		Difficulty: req.Difficulty,
	}

	if err := e.repo.CreateQuestion(r.Context(), question); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"question": question,
		"message":  "Question created successfully",
	})
}

// GenerateQuestionsHandler asks Gemini for a batch of questions and stores
// them in the bank under the given category/difficulty.
func (e *QuestionEndpoints) GenerateQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req GenerateQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Count <= 0 || req.Role == "" || req.Category == "" || !validDifficulty(req.Difficulty) {
		http.Error(w, "role, count, category, and a valid difficulty are required", http.StatusBadRequest)
		return
	}

	prompt := buildQuestionGenerationPrompt(req.Role, req.Experience, req.TopicsToFocus, req.Count)
	text, err := e.geminiService.Generate(r.Context(), user.ID, prompt)
	if err != nil {
		writeError(w, err)
		return
	}

	var generated []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(cleanAIJSON(text)), &generated); err != nil {
		slog.Error("Failed to parse generated questions", "error", err, "response_length", len(text))
		writeError(w, upstreamUnavailable(err))
		return
	}

	questions := make([]models.Question, 0, len(generated))
	for _, g := range generated {
		if g.Question == "" {
			continue
		}
		questions = append(questions, models.Question{
			Prompt:     g.Question,
			Answer:     g.Answer,
			Category:   req.Category,
			Difficulty: req.Difficulty,
		})
	}

	if err := e.repo.CreateQuestions(r.Context(), questions); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"questions": questions,
		"count":     len(questions),
		"message":   "Questions generated successfully",
	})

	slog.Info("Questions generated", "user_id", user.ID, "count", len(questions), "category", req.Category)
}

// ExplainQuestionHandler returns an AI explanation of a bank question,
// generated on demand with the caller's key when they have one.
func (e *QuestionEndpoints) ExplainQuestionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	questionID := chi.URLParam(r, "id")
	question, err := e.repo.GetQuestionByID(r.Context(), questionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if question == nil {
		http.Error(w, "Question not found", http.StatusNotFound)
		return
	}

	prompt := buildExplanationPrompt(question.Prompt)
	text, err := e.geminiService.Generate(r.Context(), user.ID, prompt)
	if err != nil {
		writeError(w, err)
		return
	}

	var explanation struct {
		Title       string `json:"title"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(cleanAIJSON(text)), &explanation); err != nil {
		slog.Error("Failed to parse explanation", "error", err, "question_id", questionID)
		writeError(w, upstreamUnavailable(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"title":       explanation.Title,
		"explanation": explanation.Explanation,
	})
}

func (e *QuestionEndpoints) DeleteQuestionHandler(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "id")

	question, err := e.repo.GetQuestionByID(r.Context(), questionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if question == nil {
		http.Error(w, "Question not found", http.StatusNotFound)
		return
	}

	if err := e.repo.DeleteQuestion(r.Context(), questionID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func validDifficulty(difficulty string) bool {
	switch difficulty {
	case "easy", "medium", "hard":
		return true
	}
	return false
}
