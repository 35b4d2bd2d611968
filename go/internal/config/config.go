// Package config loads process settings from the environment (optionally a
// .env file) and domain settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/ratelimit"
)

// Env holds the GAMBIT_* process settings.
type Env struct {
	Addr       string `env:"GAMBIT_ADDR" envDefault:":8080"`
	ConfigFile string `env:"GAMBIT_CONFIG_FILE" envDefault:"gambit.yaml"`
	LogLevel   string `env:"GAMBIT_LOG_LEVEL" envDefault:"info"`
	LogPretty  bool   `env:"GAMBIT_LOG_PRETTY" envDefault:"false"`

	JWTSecret string `env:"GAMBIT_JWT_SECRET,required"`
	JWTIssuer string `env:"GAMBIT_JWT_ISSUER"`
	OpsToken  string `env:"GAMBIT_OPS_TOKEN"`
	// CIDRs or addresses whose X-Forwarded-For is believed.
	TrustedProxies []string `env:"GAMBIT_TRUSTED_PROXIES" envSeparator:","`

	// False runs without Postgres; results are not archived.
	DatabaseEnabled bool `env:"GAMBIT_DATABASE_ENABLED" envDefault:"true"`
	// Empty uses an in-process rate limit store.
	RedisAddr     string `env:"GAMBIT_REDIS_ADDR"`
	RedisPassword string `env:"GAMBIT_REDIS_PASSWORD"`
	RedisDB       int    `env:"GAMBIT_REDIS_DB" envDefault:"0"`
	// Empty disables event publishing.
	NATSURL string `env:"GAMBIT_NATS_URL"`

	FirstMoveTimeout time.Duration `env:"GAMBIT_FIRST_MOVE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout  time.Duration `env:"GAMBIT_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	HandoffWorkers   int           `env:"GAMBIT_HANDOFF_WORKERS" envDefault:"4"`
	HandoffQueueSize int           `env:"GAMBIT_HANDOFF_QUEUE_SIZE" envDefault:"1024"`
	HandoffMaxTries  uint          `env:"GAMBIT_HANDOFF_MAX_TRIES" envDefault:"5"`
	HandoffMaxWait   time.Duration `env:"GAMBIT_HANDOFF_MAX_WAIT" envDefault:"30s"`
}

// File is the YAML domain configuration.
type File struct {
	Matchmaking struct {
		TimeControls  []string      `yaml:"time_controls"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		EntryTimeout  time.Duration `yaml:"entry_timeout"`
	} `yaml:"matchmaking"`

	RateLimits map[string]ratelimit.Rule `yaml:"rate_limits"`

	Tournaments struct {
		SweepInterval time.Duration               `yaml:"sweep_interval"`
		Schedule      []models.TournamentSettings `yaml:"schedule"`
	} `yaml:"tournaments"`
}

// Config is everything the server needs to start.
type Config struct {
	Env  Env
	File File
}

// Load reads .env (when present), the environment and the YAML file named
// by GAMBIT_CONFIG_FILE. A missing YAML file yields defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg Config
	if err := env.Parse(&cfg.Env); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	file, err := LoadFile(cfg.Env.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.File = *file
	return &cfg, nil
}

// LoadFile parses a YAML domain configuration and fills defaults.
func LoadFile(path string) (*File, error) {
	var file File
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	file.applyDefaults()
	if err := file.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &file, nil
}

// DefaultTimeControls are the pools offered when the file lists none.
var DefaultTimeControls = []string{"1+0", "3+0", "3+2", "5+0", "10+0", "15+10"}

func (f *File) applyDefaults() {
	if len(f.Matchmaking.TimeControls) == 0 {
		f.Matchmaking.TimeControls = append([]string(nil), DefaultTimeControls...)
	}
	if f.RateLimits == nil {
		f.RateLimits = map[string]ratelimit.Rule{}
	}
	// Moves are frequent in bullet; queue churn is not.
	if _, ok := f.RateLimits["move"]; !ok {
		f.RateLimits["move"] = ratelimit.Rule{
			Burst:     ratelimit.Window{Limit: 10, Period: time.Second},
			Sustained: ratelimit.Window{Limit: 600, Period: time.Minute},
		}
	}
	if _, ok := f.RateLimits["queue.join"]; !ok {
		f.RateLimits["queue.join"] = ratelimit.Rule{
			Burst:     ratelimit.Window{Limit: 3, Period: time.Second},
			Sustained: ratelimit.Window{Limit: 30, Period: time.Minute},
		}
	}
}

func (f *File) validate() error {
	for _, tc := range f.Matchmaking.TimeControls {
		if _, err := models.ParseTimeControl(tc); err != nil {
			return err
		}
	}
	for action, rule := range f.RateLimits {
		for _, w := range []ratelimit.Window{rule.Burst, rule.Sustained} {
			if w.Limit < 0 || w.Period < 0 {
				return fmt.Errorf("rate limit %s: negative window", action)
			}
		}
	}
	for i, t := range f.Tournaments.Schedule {
		if t.Name == "" || t.Duration <= 0 {
			return fmt.Errorf("schedule entry %d: name and duration are required", i)
		}
	}
	return nil
}
