package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr            string        `env:"DRAFT_ADDR" envDefault:":8080"`
	DatabaseURL     string        `env:"DRAFT_DATABASE_URL"`
	LogLevel        string        `env:"DRAFT_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"DRAFT_LOG_FORMAT" envDefault:"json"`
	CatalogPath     string        `env:"DRAFT_CATALOG_PATH"`
	PersistTimeout  time.Duration `env:"DRAFT_PERSIST_TIMEOUT" envDefault:"3s"`
	ShutdownTimeout time.Duration `env:"DRAFT_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// websocket
	SubscriberBuffer int      `env:"DRAFT_SUBSCRIBER_BUFFER" envDefault:"16"`
	ActionRate       float64  `env:"DRAFT_ACTION_RATE" envDefault:"10"`
	ActionBurst      int      `env:"DRAFT_ACTION_BURST" envDefault:"20"`
	AllowedOrigins   []string `env:"DRAFT_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads optional dotenv files, then the environment. Variables already
// set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.SubscriberBuffer < 1:
		return fmt.Errorf("config: DRAFT_SUBSCRIBER_BUFFER must be at least 1")
	case c.ActionRate <= 0 || c.ActionBurst < 1:
		return fmt.Errorf("config: action rate and burst must be positive")
	case c.PersistTimeout <= 0:
		return fmt.Errorf("config: DRAFT_PERSIST_TIMEOUT must be positive")
	}
	return nil
}
