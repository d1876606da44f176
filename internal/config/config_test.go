package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg := FromViper(viper.New())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "flowsy", cfg.Database.Name)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.OpenAI.Timeout)
	assert.Empty(t, cfg.OpenAI.APIKey)
	assert.Equal(t, int64(1000), cfg.Tokens.DefaultBalance)
	assert.Equal(t, int64(10), cfg.Tokens.CostPerAIInteraction)
	assert.Equal(t, 60, cfg.Agents.MaxExecutionsPerWindow)
	assert.Equal(t, time.Minute, cfg.Agents.RateLimitWindow)
	assert.Equal(t, 24*time.Hour, cfg.Vouchers.TTL)
}

func TestFromViper_Environment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_TIMEOUT", "5s")
	t.Setenv("TOKEN_COST_PER_AI_INTERACTION", "25")
	t.Setenv("AGENT_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("VOUCHER_HASH_SECRET", "pepper")

	v := viper.New()
	bindEnv(v)
	cfg := FromViper(v)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 5*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, int64(25), cfg.Tokens.CostPerAIInteraction)
	assert.Equal(t, 30*time.Second, cfg.Agents.RateLimitWindow)
	assert.Equal(t, "pepper", cfg.Vouchers.HashSecret)
}
