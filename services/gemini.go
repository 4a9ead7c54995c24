package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prepdeck/backend/models"

	"google.golang.org/genai"
)

const ModelName = "gemini-2.5-flash"

// userKeySource resolves users so their stored Gemini keys can be used.
type userKeySource interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// GeminiService is the gateway to the generative model. A server-wide key
// backs the shared client; users with their own stored key get a per-call
// client instead. Every call runs under the configured timeout, and
// provider failures surface as UPSTREAM_UNAVAILABLE.
type GeminiService struct {
	defaultClient *genai.Client
	users         userKeySource
	vault         *KeyVault
	timeout       time.Duration
}

func NewGeminiService(apiKey string, timeout time.Duration, users userKeySource, vault *KeyVault) *GeminiService {
	service := &GeminiService{
		users:   users,
		vault:   vault,
		timeout: timeout,
	}

	if apiKey != "" {
		client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: apiKey,
		})
		if err != nil {
			slog.Error("Failed to create genai client", "error", err)
		} else {
			service.defaultClient = client
		}
	}

	return service
}

// Generate sends a prompt on behalf of a user and returns the generated
// text. userID may be empty to force the server-wide key.
func (g *GeminiService) Generate(ctx context.Context, userID, prompt string) (string, error) {
	client, err := g.clientFor(ctx, userID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := client.Models.GenerateContent(
		ctx,
		ModelName,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		slog.Error("Gemini call failed", "error", err, "user_id", userID)
		return "", upstreamUnavailable(err)
	}

	text := result.Text()
	slog.Info("Generated AI response", "user_id", userID, "response_length", len(text))
	return text, nil
}

// ValidateKey checks a user-supplied API key with a minimal generation call
// before it is stored.
func (g *GeminiService) ValidateKey(ctx context.Context, apiKey string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return upstreamUnavailable(err)
	}

	if _, err := client.Models.GenerateContent(ctx, ModelName, genai.Text("ping"), nil); err != nil {
		return upstreamUnavailable(err)
	}
	return nil
}

func (g *GeminiService) clientFor(ctx context.Context, userID string) (*genai.Client, error) {
	if userID != "" && g.users != nil && g.vault != nil {
		user, err := g.users.GetUserByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user for AI call: %w", err)
		}
		if user != nil && user.GeminiKey != "" {
			apiKey, err := g.vault.Decrypt(user.GeminiKey)
			if err != nil {
				slog.Error("Failed to decrypt user Gemini key, falling back to server key", "error", err, "user_id", userID)
			} else {
				client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
				if err != nil {
					return nil, upstreamUnavailable(err)
				}
				return client, nil
			}
		}
	}

	if g.defaultClient == nil {
		return nil, upstreamUnavailable(fmt.Errorf("no Gemini API key configured"))
	}
	return g.defaultClient, nil
}

// cleanAIJSON strips markdown code fences the model sometimes wraps around
// JSON responses.
func cleanAIJSON(raw string) string {
	cleaned := strings.TrimSpace(raw)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = cleaned[:len(cleaned)-len("```")]
	}

	return strings.TrimSpace(cleaned)
}
