package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Stable error codes surfaced to API clients. Everything outside this
// taxonomy is an infrastructure failure and becomes a plain 500.
const (
	CodeInsufficientQuestions = "INSUFFICIENT_QUESTIONS"
	CodeInvalidIndex          = "INVALID_INDEX"
	CodeSessionClosed         = "SESSION_CLOSED"
	CodeAnswerMissing         = "ANSWER_MISSING"
	CodeUpstreamUnavailable   = "UPSTREAM_UNAVAILABLE"
	CodeIncompleteAnswers     = "INCOMPLETE_ANSWERS"
	CodeSessionNotFound       = "SESSION_NOT_FOUND"
	CodeQuizNotFound          = "QUIZ_NOT_FOUND"
	CodeQuizClosed            = "QUIZ_CLOSED"
	CodeInvalidAnswers        = "INVALID_ANSWERS"
)

// DomainError is a recoverable, request-scoped error with a stable code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func insufficientQuestions(requested, available int) *DomainError {
	return &DomainError{
		Code:    CodeInsufficientQuestions,
		Message: fmt.Sprintf("requested %d questions, %d available", requested, available),
	}
}

func invalidIndex(index, count int) *DomainError {
	return &DomainError{
		Code:    CodeInvalidIndex,
		Message: fmt.Sprintf("question index %d out of range [0, %d)", index, count),
	}
}

func sessionClosed(sessionID string) *DomainError {
	return &DomainError{
		Code:    CodeSessionClosed,
		Message: fmt.Sprintf("session %s is completed and accepts no further answers", sessionID),
	}
}

func answerMissing(index int) *DomainError {
	return &DomainError{
		Code:    CodeAnswerMissing,
		Message: fmt.Sprintf("no answer submitted yet for question index %d", index),
	}
}

func upstreamUnavailable(err error) *DomainError {
	return &DomainError{
		Code:    CodeUpstreamUnavailable,
		Message: "AI service is unavailable",
		Err:     err,
	}
}

func incompleteAnswers(unanswered int64) *DomainError {
	return &DomainError{
		Code:    CodeIncompleteAnswers,
		Message: fmt.Sprintf("%d questions are still unanswered", unanswered),
	}
}

func sessionNotFound(sessionID string) *DomainError {
	return &DomainError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session %s not found", sessionID),
	}
}

func quizNotFound(quizID string) *DomainError {
	return &DomainError{
		Code:    CodeQuizNotFound,
		Message: fmt.Sprintf("quiz %s not found", quizID),
	}
}

func quizClosed(quizID string) *DomainError {
	return &DomainError{
		Code:    CodeQuizClosed,
		Message: fmt.Sprintf("quiz %s was already submitted", quizID),
	}
}

func invalidAnswers(message string) *DomainError {
	return &DomainError{
		Code:    CodeInvalidAnswers,
		Message: message,
	}
}

// httpStatus maps error codes to HTTP statuses at the request boundary.
func httpStatus(code string) int {
	switch code {
	case CodeInsufficientQuestions:
		return http.StatusUnprocessableEntity
	case CodeInvalidIndex, CodeInvalidAnswers:
		return http.StatusBadRequest
	case CodeSessionClosed, CodeIncompleteAnswers, CodeAnswerMissing, CodeQuizClosed:
		return http.StatusConflict
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case CodeSessionNotFound, CodeQuizNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a domain error as a structured JSON body, and anything
// else as a generic 500 without leaking internal detail.
func writeError(w http.ResponseWriter, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus(domainErr.Code))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"code":    domainErr.Code,
				"message": domainErr.Message,
			},
		})
		return
	}

	slog.Error("Unhandled error", "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
