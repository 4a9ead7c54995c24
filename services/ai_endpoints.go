package services

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prepdeck/backend/models"
	"github.com/prepdeck/backend/repository"
)

// AIEndpoints manages per-user Gemini API keys. Keys are validated against
// the Gemini API before being encrypted and stored; responses only ever
// carry the masked form.
type AIEndpoints struct {
	repo          *repository.GORMRepository
	geminiService *GeminiService
	vault         *KeyVault
}

type SaveGeminiKeyRequest struct {
	APIKey string `json:"api_key"`
}

func NewAIEndpoints(repo *repository.GORMRepository, geminiService *GeminiService, vault *KeyVault) *AIEndpoints {
	return &AIEndpoints{
		repo:          repo,
		geminiService: geminiService,
		vault:         vault,
	}
}

func (e *AIEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/ai", func(r chi.Router) {
		r.Get("/key", e.GetKeyHandler)
		r.Post("/key", e.SaveKeyHandler)
		r.Delete("/key", e.DeleteKeyHandler)
	})
}

// GetKeyHandler returns the masked form of the caller's stored key.
func (e *AIEndpoints) GetKeyHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if user.GeminiKey == "" {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"has_key": false,
		})
		return
	}

	plaintext, err := e.vault.Decrypt(user.GeminiKey)
	if err != nil {
		slog.Error("Failed to decrypt stored Gemini key", "user_id", user.ID, "error", err)
		http.Error(w, "Failed to read stored key", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"has_key":    true,
		"masked_key": MaskKey(plaintext),
	})
}

// SaveKeyHandler validates the submitted key against the Gemini API and
// stores it encrypted.
func (e *AIEndpoints) SaveKeyHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req SaveGeminiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.APIKey == "" {
		http.Error(w, "api_key is required", http.StatusBadRequest)
		return
	}

	if err := e.geminiService.ValidateKey(r.Context(), req.APIKey); err != nil {
		writeError(w, err)
		return
	}

	encrypted, err := e.vault.Encrypt(req.APIKey)
	if err != nil {
		slog.Error("Failed to encrypt Gemini key", "user_id", user.ID, "error", err)
		http.Error(w, "Failed to store key", http.StatusInternalServerError)
		return
	}

	if err := e.repo.SetUserGeminiKey(r.Context(), user.ID, encrypted); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("Gemini key saved", "user_id", user.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"masked_key": MaskKey(req.APIKey),
		"message":    "API key saved successfully",
	})
}

func (e *AIEndpoints) DeleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	if err := e.repo.SetUserGeminiKey(r.Context(), user.ID, ""); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("Gemini key removed", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}
