package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME" envDefault:"sessions"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/sessions.db"`

	JWTSecret   string   `env:"JWT_SECRET" envDefault:"super-secret-key-change-me"`
	ServerPort  string   `env:"SERVER_PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	LLMAPIKey      string        `env:"LLM_API_KEY"`
	LLMAPIURL      string        `env:"LLM_API_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel       string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
	LLMTemperature float64       `env:"LLM_TEMPERATURE" envDefault:"0.3"`

	AnalysisConcurrency int           `env:"ANALYSIS_CONCURRENCY" envDefault:"1"`
	AutoAnalyze         bool          `env:"AUTO_ANALYZE" envDefault:"false"`
	TimerInterval       time.Duration `env:"TIMER_INTERVAL" envDefault:"1s"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBDriver != DriverPostgres && cfg.DBDriver != DriverSQLite {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.AnalysisConcurrency < 1 {
		cfg.AnalysisConcurrency = 1
	}
	if cfg.TimerInterval <= 0 {
		cfg.TimerInterval = time.Second
	}
	return &cfg, nil
}
