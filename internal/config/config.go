package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	AdminKey        string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`

	EncryptionKey  string        `mapstructure:"CONFIG_ENCRYPTION_KEY"`
	OpenAIBaseURL  string        `mapstructure:"OPENAI_BASE_URL"`
	OpenAIMock     bool          `mapstructure:"OPENAI_MOCK"`
	LLMMaxTokens   int           `mapstructure:"LLM_MAX_TOKENS"`
	LLMTimeout     time.Duration `mapstructure:"LLM_TIMEOUT"`
	LLMMaxAttempts int           `mapstructure:"LLM_MAX_ATTEMPTS"`
	ScoringWorkers int           `mapstructure:"SCORING_WORKERS"`

	StorageEndpoint  string `mapstructure:"STORAGE_ENDPOINT"`
	StorageAccessKey string `mapstructure:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `mapstructure:"STORAGE_SECRET_KEY"`
	StorageUseSSL    bool   `mapstructure:"STORAGE_USE_SSL"`
	StorageRegion    string `mapstructure:"STORAGE_REGION"`
	StorageBucket    string `mapstructure:"STORAGE_BUCKET"`

	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int           `mapstructure:"REDIS_DB"`
	InsightsCacheTTL time.Duration `mapstructure:"INSIGHTS_CACHE_TTL"`
}

var ErrNoDatabaseURL = errors.New("DATABASE_URL is required")

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	// Every key needs a default so AutomaticEnv values reach Unmarshal.
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 20)

	v.SetDefault("CONFIG_ENCRYPTION_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("OPENAI_MOCK", false)
	v.SetDefault("LLM_MAX_TOKENS", 900)
	v.SetDefault("LLM_TIMEOUT", "60s")
	v.SetDefault("LLM_MAX_ATTEMPTS", 3)
	v.SetDefault("SCORING_WORKERS", 1)

	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("STORAGE_REGION", "")
	v.SetDefault("STORAGE_BUCKET", "uploads")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("INSIGHTS_CACHE_TTL", "5m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseURL == "" {
		return Config{}, ErrNoDatabaseURL
	}
	if cfg.ScoringWorkers < 1 {
		cfg.ScoringWorkers = 1
	}
	return cfg, nil
}
