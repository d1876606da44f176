package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowsyai/backend/internal/models"
)

// DemoUserID owns the fixture data loaded into the memory backend.
const DemoUserID = "demo-user"

func float64Ptr(v float64) *float64 { return &v }

// DemoAgents returns the agents a fresh development environment starts with.
func DemoAgents(userID string, now time.Time) []models.AIAgent {
	lastUsed := now.Add(-2 * time.Hour)
	return []models.AIAgent{
		{
			ID:          "agent-1",
			UserID:      userID,
			Name:        "Content Generator",
			Type:        models.AgentTextGenerator,
			Description: "Generates high-quality content for marketing and blogs",
			Configuration: models.AgentConfiguration{
				Model:        "gpt-4",
				Temperature:  float64Ptr(0.8),
				MaxTokens:    2000,
				SystemPrompt: "You are a professional content writer.",
			},
			IsActive:   true,
			UsageCount: 25,
			LastUsed:   &now,
			CreatedAt:  now.Add(-7 * 24 * time.Hour),
			UpdatedAt:  now,
		},
		{
			ID:          "agent-2",
			UserID:      userID,
			Name:        "Data Insights",
			Type:        models.AgentDataAnalyzer,
			Description: "Analyzes data and provides actionable insights",
			Configuration: models.AgentConfiguration{
				Model:       "gpt-4",
				Temperature: float64Ptr(0.3),
				DataSources: []string{"csv", "json", "api"},
			},
			IsActive:   true,
			UsageCount: 12,
			LastUsed:   &lastUsed,
			CreatedAt:  now.Add(-14 * 24 * time.Hour),
			UpdatedAt:  now,
		},
	}
}

// SeedDemo loads the demo agents and opens the demo user's balance with a
// welcome bonus. Seeding twice is a no-op for data that already exists.
func SeedDemo(ctx context.Context, s Store, welcomeBonus int64, now time.Time) error {
	for _, agent := range DemoAgents(DemoUserID, now) {
		if err := s.CreateAgent(ctx, &agent); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return err
		}
	}

	_, err := s.CreateBalance(ctx, &models.TokenTransaction{
		ID:          "demo-welcome-bonus",
		UserID:      DemoUserID,
		Amount:      welcomeBonus,
		Type:        models.TransactionBonus,
		Description: "Welcome bonus",
		CreatedAt:   now,
	})
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		return err
	}
	return nil
}
