package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DB     DB
	HTTP   HTTP
	Poll   Poll
	Notify Notify
	Log    Log
}

type DB struct {
	Driver string `env:"NUDGER_DB_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"NUDGER_DB_DSN" envDefault:"file:nudger.db?_pragma=journal_mode(WAL)"`
}

type HTTP struct {
	Addr string `env:"NUDGER_HTTP_ADDR" envDefault:":8080"`
	// Comma separated actors allowed to create tasks for other users.
	Operators []string `env:"NUDGER_OPERATORS" envSeparator:","`
}

type Poll struct {
	Schedule  string `env:"NUDGER_POLL_SCHEDULE" envDefault:"@every 2m"`
	BatchSize int    `env:"NUDGER_BATCH_SIZE" envDefault:"1000"`
	Workers   int    `env:"NUDGER_WORKERS" envDefault:"0"`
}

type Notify struct {
	Transport   string `env:"NUDGER_NOTIFY_TRANSPORT" envDefault:"log"`
	NATSURL     string `env:"NUDGER_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NATSSubject string `env:"NUDGER_NATS_SUBJECT" envDefault:"nudger.push"`
	RedisAddr   string `env:"NUDGER_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisStream string `env:"NUDGER_REDIS_STREAM" envDefault:"nudger:push"`
	WebhookURL  string `env:"NUDGER_WEBHOOK_URL"`
	WebhookAuth string `env:"NUDGER_WEBHOOK_AUTH"`
	RatePerSec  int    `env:"NUDGER_NOTIFY_RATE" envDefault:"50"`
	CatalogPath string `env:"NUDGER_CATALOG_PATH"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads the optional env files, then the environment. Variables already
// set in the environment win over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &c, nil
}
