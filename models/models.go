package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// Database schema overview:
// 1. users - Accounts with bcrypt credentials and optional encrypted Gemini keys
// 2. refresh_tokens - Hashed long-lived tokens backing cookie re-authentication
// 3. questions - The question bank, sampled by category/difficulty at session start
// 4. sessions - One interview attempt per row, with a forward-only status
// 5. session_questions - Ordered question slots holding answers and AI feedback
