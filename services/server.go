package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prepdeck/backend/models"
	"github.com/prepdeck/backend/repository"
	ws "github.com/prepdeck/backend/websocket"
	"gorm.io/gorm"
)

// Server holds all server dependencies
type Server struct {
	config            *Config
	gormDB            *repository.GORMRepository
	rawDB             *gorm.DB
	vault             *KeyVault
	geminiService     *GeminiService
	orchestrator      *Orchestrator
	authService       *AuthService
	authEndpoints     *AuthEndpoints
	sessionEndpoints  *SessionEndpoints
	questionEndpoints *QuestionEndpoints
	quizEndpoints     *QuizEndpoints
	aiEndpoints       *AIEndpoints
	wsHub             *ws.Hub
	upgrader          websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabase sets the database connection
func (s *Server) SetDatabase(db *repository.GORMRepository, rawDB *gorm.DB) {
	s.gormDB = db
	s.rawDB = rawDB
}

// InitializeServices initializes all server services
func (s *Server) InitializeServices() error {
	if s.config.Security.EncryptionKey != "" {
		vault, err := NewKeyVault(s.config.Security.EncryptionKey)
		if err != nil {
			return err
		}
		s.vault = vault
		slog.Info("Key vault initialized")
	} else {
		slog.Warn("Encryption key not configured, per-user API keys disabled")
	}

	s.geminiService = NewGeminiService(
		s.config.AI.GeminiAPIKey,
		s.config.AI.FeedbackTimeout,
		s.gormDB,
		s.vault,
	)
	slog.Info("Gemini service initialized")

	s.orchestrator = NewOrchestrator(s.gormDB, s.gormDB, s.geminiService)

	if s.config.JWT.Secret != "" && s.gormDB != nil {
		s.authService = NewAuthService(s.gormDB, s.config.JWT.Secret)
		s.authEndpoints = NewAuthEndpoints(s.authService)
		s.sessionEndpoints = NewSessionEndpoints(s.gormDB, s.orchestrator)
		s.questionEndpoints = NewQuestionEndpoints(s.gormDB, s.geminiService, s.authService)
		s.quizEndpoints = NewQuizEndpoints(s.gormDB, s.geminiService)
		if s.vault != nil {
			s.aiEndpoints = NewAIEndpoints(s.gormDB, s.geminiService, s.vault)
		}
		slog.Info("Authentication service initialized")
	}

	s.wsHub = ws.NewHub()
	go s.wsHub.Run()
	s.orchestrator.SetNotifier(&hubNotifier{hub: s.wsHub})

	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoint
	r.Get("/health", s.healthHandler)

	// API v1 route group
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)

		// WebSocket event stream (protected)
		if s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				r.Get("/ws", s.websocketHandlerFunc)
			})
		}

		// Authentication routes
		if s.authEndpoints != nil {
			r.Route("/auth", func(r chi.Router) {
				// Public auth routes (no middleware)
				r.Post("/login", s.authEndpoints.LoginHandler)
				r.Post("/signup", s.authEndpoints.SignupHandler)
				r.Post("/refresh", s.authEndpoints.RefreshHandler)

				// Protected auth routes (with middleware)
				r.Group(func(r chi.Router) {
					r.Use(s.authService.Middleware)
					r.Post("/logout", s.authEndpoints.LogoutHandler)
					r.Get("/me", s.authEndpoints.MeHandler)
				})
			})
		}

		// Session, question bank, and AI key routes (protected)
		if s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				if s.sessionEndpoints != nil {
					s.sessionEndpoints.RegisterRoutes(r)
				}
				if s.questionEndpoints != nil {
					s.questionEndpoints.RegisterRoutes(r)
				}
				if s.quizEndpoints != nil {
					s.quizEndpoints.RegisterRoutes(r)
				}
				if s.aiEndpoints != nil {
					s.aiEndpoints.RegisterRoutes(r)
				}
			})
		}
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// checkOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func checkOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests for security
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	allowedOrigins := strings.Split(allowedOriginsStr, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	for _, allowed := range allowedOrigins {
		if allowed == origin {
			slog.Info("WebSocket connection accepted", "origin", origin)
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	if s.rawDB != nil {
		if sqlDB, err := s.rawDB.DB(); err == nil {
			if err := sqlDB.Ping(); err != nil {
				dbStatus = "down"
				status = "degraded"
			} else {
				dbStatus = "up"
			}
		} else {
			dbStatus = "down"
			status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","database":"` + dbStatus + `"}`))
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"API v1","version":"1.0.0"}`))
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	// Get user from context (set by auth middleware)
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		slog.Error("WebSocket connection failed - user not found in context")
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("WebSocket connection established", "user_id", user.ID, "email", user.Email)

	client := s.wsHub.RegisterClient(conn, user.ID)
	go client.WritePump()
	client.ReadPump()
}

// hubNotifier forwards session events to the WebSocket hub.
type hubNotifier struct {
	hub *ws.Hub
}

func (n *hubNotifier) NotifyAnswerStored(userID, sessionID string, position int) {
	n.hub.PublishToUser(userID, ws.SessionEvent{Type: "answer_stored", SessionID: sessionID, Position: position})
}

func (n *hubNotifier) NotifyFeedbackReady(userID, sessionID string, position int) {
	n.hub.PublishToUser(userID, ws.SessionEvent{Type: "feedback_ready", SessionID: sessionID, Position: position})
}

func (n *hubNotifier) NotifySessionCompleted(userID, sessionID string) {
	n.hub.PublishToUser(userID, ws.SessionEvent{Type: "session_completed", SessionID: sessionID})
}
