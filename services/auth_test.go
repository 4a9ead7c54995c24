package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prepdeck/backend/models"
	"golang.org/x/crypto/bcrypt"
)

// fakeAuthStore keeps users and refresh tokens in memory, mirroring the
// repository's lookup semantics (nil for missing or expired records).
type fakeAuthStore struct {
	users  map[string]*models.User // keyed by ID
	tokens map[string]*models.RefreshToken
	nextID int
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (s *fakeAuthStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (s *fakeAuthStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.users[id], nil
}

func (s *fakeAuthStore) CreateUser(ctx context.Context, user *models.User) error {
	s.nextID++
	user.ID = fmt.Sprintf("user-%d", s.nextID)
	s.users[user.ID] = user
	return nil
}

func (s *fakeAuthStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *fakeAuthStore) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	record, ok := s.tokens[token]
	if !ok || record.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	return record, nil
}

func (s *fakeAuthStore) DeleteRefreshToken(ctx context.Context, token string) error {
	delete(s.tokens, token)
	return nil
}

func (s *fakeAuthStore) DeleteAllUserTokens(ctx context.Context, userID string) error {
	for key, record := range s.tokens {
		if record.UserID == userID {
			delete(s.tokens, key)
		}
	}
	return nil
}

func seedUser(t *testing.T, store *fakeAuthStore, email, password string) *models.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := &models.User{Email: email, Password: string(hashed), FullName: "Test User", Role: "user"}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	store := newFakeAuthStore()
	seedUser(t, store, "user@example.com", "correct horse")
	auth := NewAuthService(store, "test-secret")

	t.Run("issues tokens for valid credentials", func(t *testing.T) {
		resp, err := auth.Login(ctx, "user@example.com", "correct horse")
		if err != nil {
			t.Fatalf("Login returned error: %v", err)
		}
		if resp.AccessToken == "" || resp.RefreshToken == "" {
			t.Error("expected both tokens to be issued")
		}
		if len(store.tokens) == 0 {
			t.Error("expected refresh token to be persisted")
		}
	})

	t.Run("rejects a wrong password", func(t *testing.T) {
		if _, err := auth.Login(ctx, "user@example.com", "wrong"); err == nil {
			t.Error("expected error for wrong password")
		}
	})

	t.Run("rejects an unknown email", func(t *testing.T) {
		if _, err := auth.Login(ctx, "nobody@example.com", "correct horse"); err == nil {
			t.Error("expected error for unknown email")
		}
	})
}

func TestRefreshTokenRotation(t *testing.T) {
	ctx := context.Background()
	store := newFakeAuthStore()
	user := seedUser(t, store, "user@example.com", "correct horse")
	auth := NewAuthService(store, "test-secret")

	login, err := auth.Login(ctx, "user@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	refreshed, err := auth.RefreshToken(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken returned error: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Error("expected a new access token")
	}
	if refreshed.RefreshToken == "" || refreshed.RefreshToken == login.RefreshToken {
		t.Error("expected a rotated refresh token distinct from the used one")
	}
	if refreshed.User.ID != user.ID {
		t.Errorf("expected user %q, got %q", user.ID, refreshed.User.ID)
	}

	t.Run("used token is rejected on replay", func(t *testing.T) {
		if _, err := auth.RefreshToken(ctx, login.RefreshToken); err == nil {
			t.Error("expected replayed refresh token to be rejected")
		}
	})

	t.Run("rotated token works once", func(t *testing.T) {
		again, err := auth.RefreshToken(ctx, refreshed.RefreshToken)
		if err != nil {
			t.Fatalf("RefreshToken returned error: %v", err)
		}
		if again.RefreshToken == refreshed.RefreshToken {
			t.Error("expected another rotation")
		}
	})

	t.Run("unknown token is rejected", func(t *testing.T) {
		if _, err := auth.RefreshToken(ctx, "not-a-token"); err == nil {
			t.Error("expected error for unknown refresh token")
		}
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	store := newFakeAuthStore()
	user := seedUser(t, store, "user@example.com", "correct horse")
	auth := NewAuthService(store, "test-secret")

	login, err := auth.Login(ctx, "user@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := auth.Logout(ctx, user.ID); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := auth.RefreshToken(ctx, login.RefreshToken); err == nil {
		t.Error("expected refresh token to be invalid after logout")
	}
}
