package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OpenAI   OpenAIConfig
	Tokens   TokensConfig
	Agents   AgentsConfig
	Vouchers VouchersConfig
}

type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects the persistence backend: "postgres" or "memory".
// The memory backend is seeded with demo fixtures.
type StoreConfig struct {
	Driver string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey string
}

type OpenAIConfig struct {
	APIKey         string
	OrganizationID string
	BaseURL        string
	Timeout        time.Duration
}

type TokensConfig struct {
	DefaultBalance       int64
	CostPerAIInteraction int64
}

type AgentsConfig struct {
	MaxExecutionsPerWindow int
	RateLimitWindow        time.Duration
	APIConnectorTimeout    time.Duration
}

type VouchersConfig struct {
	TTL        time.Duration
	HashSecret string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", StoreDriverPostgres)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "flowsy")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Minute*5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout", 30*time.Second)

	v.SetDefault("tokens.default_balance", 1000)
	v.SetDefault("tokens.cost_per_ai_interaction", 10)

	v.SetDefault("agents.max_executions_per_window", 60)
	v.SetDefault("agents.rate_limit_window", time.Minute)
	v.SetDefault("agents.api_connector_timeout", 10*time.Second)

	v.SetDefault("vouchers.ttl", 24*time.Hour)
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.request_timeout", "REQUEST_TIMEOUT")

	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")

	v.BindEnv("store.driver", "STORE_DRIVER")

	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.name", "DATABASE_NAME")
	v.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")
	v.BindEnv("database.auto_migrate", "DATABASE_AUTO_MIGRATE")

	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("openai.organization_id", "OPENAI_ORG_ID")
	v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("openai.timeout", "OPENAI_TIMEOUT")

	v.BindEnv("tokens.default_balance", "DEFAULT_TOKEN_BALANCE")
	v.BindEnv("tokens.cost_per_ai_interaction", "TOKEN_COST_PER_AI_INTERACTION")

	v.BindEnv("agents.max_executions_per_window", "AGENT_MAX_EXECUTIONS_PER_WINDOW")
	v.BindEnv("agents.rate_limit_window", "AGENT_RATE_LIMIT_WINDOW")
	v.BindEnv("agents.api_connector_timeout", "AGENT_API_CONNECTOR_TIMEOUT")

	v.BindEnv("vouchers.ttl", "VOUCHER_TTL")
	v.BindEnv("vouchers.hash_secret", "VOUCHER_HASH_SECRET")
}

// Load reads .env (if present) and the process environment. Environment
// variables override values from the file.
func Load() *Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using environment and defaults: %v", err)
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	setDefaults(v)

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Store: StoreConfig{
			Driver: v.GetString("store.driver"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt.secret_key"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         v.GetString("openai.api_key"),
			OrganizationID: v.GetString("openai.organization_id"),
			BaseURL:        v.GetString("openai.base_url"),
			Timeout:        v.GetDuration("openai.timeout"),
		},
		Tokens: TokensConfig{
			DefaultBalance:       v.GetInt64("tokens.default_balance"),
			CostPerAIInteraction: v.GetInt64("tokens.cost_per_ai_interaction"),
		},
		Agents: AgentsConfig{
			MaxExecutionsPerWindow: v.GetInt("agents.max_executions_per_window"),
			RateLimitWindow:        v.GetDuration("agents.rate_limit_window"),
			APIConnectorTimeout:    v.GetDuration("agents.api_connector_timeout"),
		},
		Vouchers: VouchersConfig{
			TTL:        v.GetDuration("vouchers.ttl"),
			HashSecret: v.GetString("vouchers.hash_secret"),
		},
	}
}
