package services

import (
	"testing"
	"time"

	"github.com/prepdeck/backend/models"
)

func TestParseGeneratedQuiz(t *testing.T) {
	valid := `[
		{"question": "What does a goroutine run on?", "options": ["A thread pool", "One OS thread each", "A process", "The GPU"], "correctAnswer": 0, "explanation": "The runtime multiplexes goroutines onto threads."},
		{"question": "Which keyword starts a goroutine?", "options": ["go", "async", "spawn", "run"], "correctAnswer": 0, "explanation": "The go statement."}
	]`

	t.Run("parses a valid quiz", func(t *testing.T) {
		questions, err := parseGeneratedQuiz(valid)
		if err != nil {
			t.Fatalf("parseGeneratedQuiz returned error: %v", err)
		}
		if len(questions) != 2 {
			t.Fatalf("expected 2 questions, got %d", len(questions))
		}
		if questions[1].Position != 1 {
			t.Errorf("expected position 1, got %d", questions[1].Position)
		}
		if questions[0].CorrectIndex != 0 || len(questions[0].Options) != 4 {
			t.Errorf("unexpected question shape: %+v", questions[0])
		}
	})

	t.Run("strips markdown fences", func(t *testing.T) {
		fenced := "```json\n" + valid + "\n```"
		if _, err := parseGeneratedQuiz(fenced); err != nil {
			t.Errorf("parseGeneratedQuiz returned error: %v", err)
		}
	})

	invalid := []struct {
		name string
		raw  string
	}{
		{"not json", "the model apologizes instead"},
		{"empty array", "[]"},
		{"empty question", `[{"question": "", "options": ["a", "b", "c", "d"], "correctAnswer": 0}]`},
		{"three options", `[{"question": "Q?", "options": ["a", "b", "c"], "correctAnswer": 0}]`},
		{"five options", `[{"question": "Q?", "options": ["a", "b", "c", "d", "e"], "correctAnswer": 0}]`},
		{"answer index out of range", `[{"question": "Q?", "options": ["a", "b", "c", "d"], "correctAnswer": 4}]`},
		{"negative answer index", `[{"question": "Q?", "options": ["a", "b", "c", "d"], "correctAnswer": -1}]`},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			if _, err := parseGeneratedQuiz(tt.raw); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestValidateQuizAnswers(t *testing.T) {
	tests := []struct {
		name    string
		answers []int
		total   int
		wantErr bool
	}{
		{"complete and in range", []int{0, 3, 2}, 3, false},
		{"too few answers", []int{0, 1}, 3, true},
		{"too many answers", []int{0, 1, 2, 3}, 3, true},
		{"option out of range", []int{0, 4, 2}, 3, true},
		{"negative option", []int{-1, 1, 2}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateQuizAnswers(tt.answers, tt.total)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateQuizAnswers() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if code := codeOf(t, err); code != CodeInvalidAnswers {
					t.Errorf("expected code %s, got %s", CodeInvalidAnswers, code)
				}
			}
		})
	}
}

func TestScoreQuiz(t *testing.T) {
	questions := []models.QuizQuestion{
		{Position: 0, CorrectIndex: 1},
		{Position: 1, CorrectIndex: 3},
		{Position: 2, CorrectIndex: 0},
		{Position: 3, CorrectIndex: 2},
	}

	score, percentage, results := scoreQuiz(questions, []int{1, 3, 2, 2})
	if score != 3 {
		t.Errorf("expected score 3, got %d", score)
	}
	if percentage != 75.0 {
		t.Errorf("expected 75.0, got %f", percentage)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[2].IsCorrect || results[2].SelectedIndex != 2 {
		t.Errorf("expected position 2 graded wrong with selection 2, got %+v", results[2])
	}
	if !results[3].IsCorrect {
		t.Errorf("expected position 3 graded correct, got %+v", results[3])
	}
}

func TestAnalyticsCutoff(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rangeKey string
		want    time.Time
		wantErr bool
	}{
		{"week", "week", now.AddDate(0, 0, -7), false},
		{"month", "month", now.AddDate(0, -1, 0), false},
		{"all", "all", time.Time{}, false},
		{"default", "", time.Time{}, false},
		{"unknown", "fortnight", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := analyticsCutoff(tt.rangeKey, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("analyticsCutoff() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected cutoff %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSummarizeQuizzes(t *testing.T) {
	pct := func(p float64) *float64 { return &p }

	t.Run("empty history", func(t *testing.T) {
		analytics := summarizeQuizzes(0, nil)
		if analytics.TotalQuizzes != 0 || analytics.CompletionRate != 0 {
			t.Errorf("expected zeroed analytics, got %+v", analytics)
		}
		if len(analytics.ScoreDistribution) != 5 {
			t.Errorf("expected all buckets present, got %v", analytics.ScoreDistribution)
		}
	})

	t.Run("aggregates completed quizzes", func(t *testing.T) {
		// Newest first, matching the repository ordering.
		completed := []models.Quiz{
			{Percentage: pct(90)},
			{Percentage: pct(75)},
			{Percentage: pct(55)},
		}
		analytics := summarizeQuizzes(4, completed)

		if analytics.CompletedQuizzes != 3 {
			t.Errorf("expected 3 completed, got %d", analytics.CompletedQuizzes)
		}
		if analytics.CompletionRate != 75.0 {
			t.Errorf("expected completion rate 75.0, got %f", analytics.CompletionRate)
		}
		if want := (90.0 + 75.0 + 55.0) / 3; analytics.AverageScore != want {
			t.Errorf("expected average %f, got %f", want, analytics.AverageScore)
		}
		if analytics.BestScore != 90.0 {
			t.Errorf("expected best 90.0, got %f", analytics.BestScore)
		}
		if analytics.Improvement != 35.0 {
			t.Errorf("expected improvement 35.0, got %f", analytics.Improvement)
		}
		if analytics.ScoreDistribution["<60"] != 1 || analytics.ScoreDistribution["70-79"] != 1 || analytics.ScoreDistribution["90-100"] != 1 {
			t.Errorf("unexpected distribution: %v", analytics.ScoreDistribution)
		}
		if len(analytics.RecentQuizzes) != 3 {
			t.Errorf("expected 3 recent quizzes, got %d", len(analytics.RecentQuizzes))
		}
	})

	t.Run("caps recent quizzes at five", func(t *testing.T) {
		completed := make([]models.Quiz, 8)
		for i := range completed {
			completed[i].Percentage = pct(80)
		}
		analytics := summarizeQuizzes(8, completed)
		if len(analytics.RecentQuizzes) != 5 {
			t.Errorf("expected 5 recent quizzes, got %d", len(analytics.RecentQuizzes))
		}
	})
}
