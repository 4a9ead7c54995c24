package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prepdeck/backend/models"
	"github.com/prepdeck/backend/repository"
)

const (
	defaultQuizQuestions = 5
	maxQuizQuestions     = 20
	quizOptionCount      = 4
)

type QuizEndpoints struct {
	repo          *repository.GORMRepository
	geminiService *GeminiService
}

func NewQuizEndpoints(repo *repository.GORMRepository, geminiService *GeminiService) *QuizEndpoints {
	return &QuizEndpoints{
		repo:          repo,
		geminiService: geminiService,
	}
}

type CreateQuizRequest struct {
	SessionID     string `json:"session_id"`
	QuestionCount int    `json:"question_count"`
}

type SubmitQuizRequest struct {
	Answers          []int `json:"answers"`
	TimeSpentSeconds int   `json:"time_spent_seconds"`
}

// QuizQuestionResult is the per-question view returned once a quiz is
// submitted. It is the only shape that exposes the correct option.
type QuizQuestionResult struct {
	Position      int      `json:"position"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectIndex  int      `json:"correct_index"`
	SelectedIndex int      `json:"selected_index"`
	IsCorrect     bool     `json:"is_correct"`
	Explanation   string   `json:"explanation,omitempty"`
}

// QuizAnalytics summarizes the user's submitted quizzes over a time range.
type QuizAnalytics struct {
	TotalQuizzes      int64            `json:"total_quizzes"`
	CompletedQuizzes  int              `json:"completed_quizzes"`
	AverageScore      float64          `json:"average_score"`
	BestScore         float64          `json:"best_score"`
	CompletionRate    float64          `json:"completion_rate"`
	Improvement       float64          `json:"improvement"`
	ScoreDistribution map[string]int   `json:"score_distribution"`
	RecentQuizzes     []models.Quiz    `json:"recent_quizzes"`
}

func (e *QuizEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/quizzes", func(r chi.Router) {
		r.Post("/", e.CreateQuizHandler)
		r.Get("/", e.ListQuizzesHandler)
		r.Get("/analytics", e.QuizAnalyticsHandler)
		r.Get("/{id}", e.GetQuizHandler)
		r.Post("/{id}/submit", e.SubmitQuizHandler)
		r.Delete("/{id}", e.DeleteQuizHandler)
	})
}

func (e *QuizEndpoints) CreateQuizHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req CreateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	count := req.QuestionCount
	if count <= 0 {
		count = defaultQuizQuestions
	}
	if count > maxQuizQuestions {
		count = maxQuizQuestions
	}

	sessionID := req.SessionID
	session, err := e.repo.GetSessionWithSlots(r.Context(), sessionID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if session == nil {
		writeError(w, sessionNotFound(sessionID))
		return
	}

	covered := coveredPrompts(session)
	if len(covered) == 0 {
		writeError(w, invalidAnswers("session has no questions to quiz on"))
		return
	}

	raw, err := e.geminiService.Generate(r.Context(), user.ID, buildQuizPrompt(session, covered, count))
	if err != nil {
		writeError(w, upstreamUnavailable(err))
		return
	}

	questions, err := parseGeneratedQuiz(raw)
	if err != nil {
		slog.Error("AI returned an unusable quiz", "error", err, "session_id", sessionID)
		writeError(w, upstreamUnavailable(err))
		return
	}

	quiz := &models.Quiz{
		SessionID:     sessionID,
		UserID:        user.ID,
		Status:        models.QuizActive,
		QuestionCount: len(questions),
	}
	if err := e.repo.CreateQuizWithQuestions(r.Context(), quiz, questions); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"quiz":    quiz,
		"message": "Quiz created successfully",
	})

	slog.Info("Quiz created via API", "quiz_id", quiz.ID, "session_id", sessionID, "user_id", user.ID)
}

func (e *QuizEndpoints) ListQuizzesHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	quizzes, err := e.repo.ListQuizzes(r.Context(), sessionID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"quizzes": quizzes,
		"count":   len(quizzes),
	})
}

func (e *QuizEndpoints) GetQuizHandler(w http.ResponseWriter, r *http.Request) {
	_, quiz, ok := e.loadQuiz(w, r)
	if !ok {
		return
	}

	response := map[string]interface{}{"quiz": quiz}
	if quiz.Status == models.QuizCompleted {
		response["results"] = quizResults(quiz.Questions)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (e *QuizEndpoints) SubmitQuizHandler(w http.ResponseWriter, r *http.Request) {
	user, quiz, ok := e.loadQuiz(w, r)
	if !ok {
		return
	}

	if quiz.Status != models.QuizActive {
		writeError(w, quizClosed(quiz.ID))
		return
	}

	var req SubmitQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateQuizAnswers(req.Answers, len(quiz.Questions)); err != nil {
		writeError(w, err)
		return
	}

	score, percentage, results := scoreQuiz(quiz.Questions, req.Answers)

	submitted, err := e.repo.SubmitQuiz(r.Context(), quiz.ID, score, percentage, req.TimeSpentSeconds, results)
	if err != nil {
		writeError(w, err)
		return
	}
	if !submitted {
		writeError(w, quizClosed(quiz.ID))
		return
	}

	for i := range quiz.Questions {
		selected := req.Answers[i]
		correct := selected == quiz.Questions[i].CorrectIndex
		quiz.Questions[i].SelectedIndex = &selected
		quiz.Questions[i].IsCorrect = &correct
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"score":      score,
		"total":      len(quiz.Questions),
		"percentage": percentage,
		"results":    quizResults(quiz.Questions),
	})

	slog.Info("Quiz submitted via API", "quiz_id", quiz.ID, "user_id", user.ID, "score", score)
}

func (e *QuizEndpoints) DeleteQuizHandler(w http.ResponseWriter, r *http.Request) {
	user, quiz, ok := e.loadQuiz(w, r)
	if !ok {
		return
	}

	if err := e.repo.DeleteQuiz(r.Context(), quiz.ID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	slog.Info("Quiz deleted via API", "quiz_id", quiz.ID, "user_id", user.ID)
}

func (e *QuizEndpoints) QuizAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	since, err := analyticsCutoff(r.URL.Query().Get("range"), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	completed, err := e.repo.ListCompletedQuizzes(r.Context(), user.ID, since)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := e.repo.CountQuizzes(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"analytics": summarizeQuizzes(total, completed),
	})
}

// loadQuiz resolves the user and the quiz in the URL, enforcing ownership.
func (e *QuizEndpoints) loadQuiz(w http.ResponseWriter, r *http.Request) (*models.User, *models.Quiz, bool) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return nil, nil, false
	}

	quizID := chi.URLParam(r, "id")
	quiz, err := e.repo.GetQuizWithQuestions(r.Context(), quizID, user.ID)
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}
	if quiz == nil {
		writeError(w, quizNotFound(quizID))
		return nil, nil, false
	}

	return user, quiz, true
}

// coveredPrompts collects the question text of the session's answered slots,
// falling back to every slot when nothing was answered yet.
func coveredPrompts(session *models.Session) []string {
	answered := make([]string, 0, len(session.Questions))
	all := make([]string, 0, len(session.Questions))
	for _, slot := range session.Questions {
		if slot.Question.Prompt == "" {
			continue
		}
		all = append(all, slot.Question.Prompt)
		if slot.Answer != nil {
			answered = append(answered, slot.Question.Prompt)
		}
	}
	if len(answered) > 0 {
		return answered
	}
	return all
}

type generatedQuizItem struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// parseGeneratedQuiz validates the AI's quiz JSON into question rows. Every
// item needs a prompt, exactly four options, and an in-range answer index.
func parseGeneratedQuiz(raw string) ([]models.QuizQuestion, error) {
	var items []generatedQuizItem
	if err := json.Unmarshal([]byte(cleanAIJSON(raw)), &items); err != nil {
		return nil, fmt.Errorf("failed to parse quiz JSON: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("quiz JSON contained no questions")
	}

	questions := make([]models.QuizQuestion, 0, len(items))
	for i, item := range items {
		if item.Question == "" {
			return nil, fmt.Errorf("question %d is empty", i)
		}
		if len(item.Options) != quizOptionCount {
			return nil, fmt.Errorf("question %d has %d options, want %d", i, len(item.Options), quizOptionCount)
		}
		if item.CorrectAnswer < 0 || item.CorrectAnswer >= quizOptionCount {
			return nil, fmt.Errorf("question %d has answer index %d out of range", i, item.CorrectAnswer)
		}
		questions = append(questions, models.QuizQuestion{
			Position:     i,
			Prompt:       item.Question,
			Options:      item.Options,
			CorrectIndex: item.CorrectAnswer,
			Explanation:  item.Explanation,
		})
	}
	return questions, nil
}

// validateQuizAnswers checks one selection per question, each in range.
func validateQuizAnswers(answers []int, total int) error {
	if len(answers) != total {
		return invalidAnswers(fmt.Sprintf("expected %d answers, got %d", total, len(answers)))
	}
	for i, a := range answers {
		if a < 0 || a >= quizOptionCount {
			return invalidAnswers(fmt.Sprintf("answer %d selects option %d out of range", i, a))
		}
	}
	return nil
}

// scoreQuiz grades selections against the stored answer key. Questions must
// be in positional order.
func scoreQuiz(questions []models.QuizQuestion, answers []int) (int, float64, []repository.QuizResult) {
	score := 0
	results := make([]repository.QuizResult, 0, len(questions))
	for i, q := range questions {
		correct := answers[i] == q.CorrectIndex
		if correct {
			score++
		}
		results = append(results, repository.QuizResult{
			Position:      q.Position,
			SelectedIndex: answers[i],
			IsCorrect:     correct,
		})
	}
	percentage := 0.0
	if len(questions) > 0 {
		percentage = float64(score) / float64(len(questions)) * 100
	}
	return score, percentage, results
}

// quizResults builds the post-submission view of graded questions.
func quizResults(questions []models.QuizQuestion) []QuizQuestionResult {
	results := make([]QuizQuestionResult, 0, len(questions))
	for _, q := range questions {
		result := QuizQuestionResult{
			Position:     q.Position,
			Prompt:       q.Prompt,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Explanation,
		}
		if q.SelectedIndex != nil {
			result.SelectedIndex = *q.SelectedIndex
		}
		if q.IsCorrect != nil {
			result.IsCorrect = *q.IsCorrect
		}
		results = append(results, result)
	}
	return results
}

// analyticsCutoff maps a range keyword to an absolute cutoff. Zero time
// means no cutoff.
func analyticsCutoff(rangeKey string, now time.Time) (time.Time, error) {
	switch rangeKey {
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	case "", "all":
		return time.Time{}, nil
	default:
		return time.Time{}, invalidAnswers(fmt.Sprintf("unknown range %q", rangeKey))
	}
}

// summarizeQuizzes aggregates submitted quizzes: averages, best score, the
// distribution buckets, and improvement as latest minus earliest percentage.
// The quizzes slice is expected newest first.
func summarizeQuizzes(total int64, completed []models.Quiz) QuizAnalytics {
	analytics := QuizAnalytics{
		TotalQuizzes:     total,
		CompletedQuizzes: len(completed),
		ScoreDistribution: map[string]int{
			"<60":    0,
			"60-69":  0,
			"70-79":  0,
			"80-89":  0,
			"90-100": 0,
		},
		RecentQuizzes: []models.Quiz{},
	}
	if total > 0 {
		analytics.CompletionRate = float64(len(completed)) / float64(total) * 100
	}
	if len(completed) == 0 {
		return analytics
	}

	sum := 0.0
	for _, quiz := range completed {
		if quiz.Percentage == nil {
			continue
		}
		p := *quiz.Percentage
		sum += p
		if p > analytics.BestScore {
			analytics.BestScore = p
		}
		analytics.ScoreDistribution[scoreBucket(p)]++
	}
	analytics.AverageScore = sum / float64(len(completed))

	newest, oldest := completed[0], completed[len(completed)-1]
	if newest.Percentage != nil && oldest.Percentage != nil {
		analytics.Improvement = *newest.Percentage - *oldest.Percentage
	}

	recent := completed
	if len(recent) > 5 {
		recent = recent[:5]
	}
	analytics.RecentQuizzes = append(analytics.RecentQuizzes, recent...)

	return analytics
}

func scoreBucket(percentage float64) string {
	switch {
	case percentage < 60:
		return "<60"
	case percentage < 70:
		return "60-69"
	case percentage < 80:
		return "70-79"
	case percentage < 90:
		return "80-89"
	default:
		return "90-100"
	}
}
