package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prepdeck/backend/models"
	"github.com/prepdeck/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo *repository.GORMRepository
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo}
}

// SeedDatabase seeds the database with initial data (idempotent)
func (s *DatabaseSeeder) SeedDatabase() error {
	ctx := context.Background()

	if s.isSeedingComplete(ctx) {
		slog.Info("Database seeding already completed, skipping")
		return nil
	}

	// Hash default password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := []models.User{
		{
			Email:    "test@example.com",
			Password: string(hashedPassword),
			FullName: "Test User",
			Role:     "user",
		},
		{
			Email:    "demo@example.com",
			Password: string(hashedPassword),
			FullName: "Demo User",
			Role:     "user",
		},
		{
			Email:    "admin@example.com",
			Password: string(hashedPassword),
			FullName: "Admin User",
			Role:     "admin",
		},
	}

	// Seed users (idempotent)
	for _, user := range users {
		if err := s.seedUser(ctx, user); err != nil {
			slog.Error("Failed to seed user", "email", user.Email, "error", err)
		}
	}

	// Seed the default question bank
	if err := s.seedQuestions(ctx, defaultQuestions()); err != nil {
		slog.Error("Failed to seed question bank", "error", err)
	}

	slog.Info("Database seeding completed successfully")
	return nil
}

// isSeedingComplete checks if seeding has already been completed
func (s *DatabaseSeeder) isSeedingComplete(ctx context.Context) bool {
	questions, err := s.repo.ListQuestions(ctx, models.QuestionFilter{})
	if err != nil {
		return false
	}
	return len(questions) >= len(defaultQuestions())
}

// seedUser seeds a single user (idempotent)
func (s *DatabaseSeeder) seedUser(ctx context.Context, user models.User) error {
	existingUser, err := s.repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("error checking user %s: %w", user.Email, err)
	}

	if existingUser != nil {
		slog.Info("User already exists, skipping", "email", user.Email)
		return nil
	}

	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}

	slog.Info("Created user", "email", user.Email)
	return nil
}

// seedQuestions seeds the default question bank, skipping prompts that
// already exist.
func (s *DatabaseSeeder) seedQuestions(ctx context.Context, questions []models.Question) error {
	existing, err := s.repo.ListQuestions(ctx, models.QuestionFilter{})
	if err != nil {
		return fmt.Errorf("error checking questions: %w", err)
	}

	known := make(map[string]bool, len(existing))
	for _, q := range existing {
		known[q.Prompt] = true
	}

	missing := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		if !known[q.Prompt] {
			missing = append(missing, q)
		}
	}

	if len(missing) == 0 {
		slog.Info("Question bank already seeded, skipping")
		return nil
	}

	if err := s.repo.CreateQuestions(ctx, missing); err != nil {
		return fmt.Errorf("failed to create questions: %w", err)
	}

	slog.Info("Seeded question bank", "count", len(missing))
	return nil
}

func defaultQuestions() []models.Question {
	return []models.Question{
		{
			Prompt:     "Explain the difference between a process and a thread.",
			Answer:     "A process is an independent program with its own address space; a thread is a unit of execution within a process that shares the process's memory. Threads are cheaper to create and switch between, but shared memory requires synchronization.",
			Category:   "Operating Systems",
			Difficulty: "easy",
		},
		{
			Prompt:     "What is a race condition and how can you prevent one?",
			Answer:     "A race condition occurs when the outcome of a program depends on the unsynchronized interleaving of concurrent operations on shared state. Prevention techniques include mutual exclusion, atomic operations, and message passing that confines state to a single owner.",
			Category:   "Concurrency",
			Difficulty: "medium",
		},
		{
			Prompt:     "Describe how an index speeds up a database query and when it can hurt performance.",
			Answer:     "An index is an auxiliary structure, typically a B-tree, that lets the database locate rows without scanning the full table. Indexes slow down writes because each insert or update must also maintain the index, and unused indexes waste space and planner time.",
			Category:   "Databases",
			Difficulty: "medium",
		},
		{
			Prompt:     "What happens when you type a URL into a browser and press enter?",
			Answer:     "The browser resolves the hostname via DNS, opens a TCP connection (with a TLS handshake for HTTPS), sends an HTTP request, receives the response, and parses HTML, CSS, and JavaScript to render the page. Caching can short-circuit several of these steps.",
			Category:   "Networking",
			Difficulty: "easy",
		},
		{
			Prompt:     "Explain the CAP theorem and its practical implications for distributed systems.",
			Answer:     "The CAP theorem states that in the presence of a network partition, a distributed system must choose between consistency and availability. In practice systems pick a point on the spectrum per operation, such as quorum reads for consistency or eventual consistency for availability.",
			Category:   "Distributed Systems",
			Difficulty: "hard",
		},
		{
			Prompt:     "How does garbage collection work in a modern managed runtime?",
			Answer:     "Most runtimes use tracing collectors that start from root references and mark reachable objects, reclaiming the rest. Generational and concurrent designs reduce pause times by collecting short-lived objects more frequently and running marking alongside the program.",
			Category:   "Programming Languages",
			Difficulty: "medium",
		},
		{
			Prompt:     "Design a rate limiter for a public HTTP API. What algorithm would you use and why?",
			Answer:     "A token bucket is the common choice: it permits short bursts while enforcing a steady average rate, and it is cheap to implement with a counter and a timestamp per client. Sliding window counters trade a little more memory for smoother enforcement at window boundaries.",
			Category:   "System Design",
			Difficulty: "hard",
		},
		{
			Prompt:     "What is the difference between authentication and authorization?",
			Answer:     "Authentication establishes who a caller is, for example by verifying credentials or a signed token. Authorization decides what an authenticated caller is allowed to do, typically via roles or permissions checked per resource.",
			Category:   "Security",
			Difficulty: "easy",
		},
		{
			Prompt:     "Explain how HTTPS protects traffic and what a certificate authority does.",
			Answer:     "HTTPS runs HTTP over TLS, which negotiates symmetric keys via an asymmetric handshake and encrypts and authenticates all subsequent traffic. A certificate authority signs server certificates so clients can verify they are talking to the legitimate host rather than an interceptor.",
			Category:   "Security",
			Difficulty: "medium",
		},
		{
			Prompt:     "When would you choose a message queue over a direct HTTP call between services?",
			Answer:     "A queue decouples producer and consumer availability, absorbs load spikes, and allows retries without blocking the caller. Direct calls are simpler and lower latency, so they fit request/response flows where the caller needs the result immediately.",
			Category:   "System Design",
			Difficulty: "medium",
		},
		{
			Prompt:     "What is Big-O notation and why does it matter in practice?",
			Answer:     "Big-O describes how an algorithm's cost grows with input size, ignoring constant factors. It matters for predicting behavior at scale, though constants and memory locality often dominate for small inputs.",
			Category:   "Algorithms",
			Difficulty: "easy",
		},
		{
			Prompt:     "Explain database transactions and the guarantees ACID provides.",
			Answer:     "A transaction groups operations so they commit or roll back as a unit. ACID guarantees atomicity (all or nothing), consistency (invariants hold), isolation (concurrent transactions do not observe partial state), and durability (committed work survives crashes).",
			Category:   "Databases",
			Difficulty: "medium",
		},
	}
}
