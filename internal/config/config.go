package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	envPrefix   = "LINGO_"
	fileEnvName = "LINGO_CONFIG_FILE"
)

type Config struct {
	Addr     string `koanf:"addr" validate:"required"`
	DBPath   string `koanf:"db_path" validate:"required"`
	LogLevel string `koanf:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`

	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIModel   string `koanf:"openai_model" validate:"required"`
	OpenAIBaseURL string `koanf:"openai_base_url" validate:"omitempty,url"`

	CompletionTimeout     time.Duration `koanf:"completion_timeout" validate:"gt=0"`
	CompletionMaxAttempts int           `koanf:"completion_max_attempts" validate:"min=1,max=10"`
	CompletionBaseBackoff time.Duration `koanf:"completion_base_backoff" validate:"gt=0"`

	MaxTurns          int     `koanf:"max_turns" validate:"min=1"`
	MaxContextTurns   int     `koanf:"max_context_turns" validate:"min=0"`
	LanguageThreshold float64 `koanf:"language_threshold" validate:"gt=0,lte=1"`

	RateLimit          int           `koanf:"rate_limit" validate:"min=1"`
	RateWindow         time.Duration `koanf:"rate_window" validate:"gt=0"`
	CacheTTL           time.Duration `koanf:"cache_ttl" validate:"gt=0"`
	CacheSweepInterval time.Duration `koanf:"cache_sweep_interval" validate:"gt=0"`

	MaxIntervalDays int `koanf:"max_interval_days" validate:"min=1"`

	WorkerCount int `koanf:"worker_count" validate:"min=1"`
	QueueSize   int `koanf:"queue_size" validate:"min=1"`
}

// RegisterFlags defines one flag per key. Flag defaults are the configuration defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("db-path", "file:lingoflash.db", "SQLite database path")
	fs.String("log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")

	fs.String("openai-api-key", "", "API key for the completion service")
	fs.String("openai-model", "gpt-4o-mini", "completion model")
	fs.String("openai-base-url", "", "override the completion service endpoint")

	fs.Duration("completion-timeout", 30*time.Second, "hard timeout per completion attempt")
	fs.Int("completion-max-attempts", 3, "completion attempts before giving up")
	fs.Duration("completion-base-backoff", 500*time.Millisecond, "backoff before the second attempt, doubled after")

	fs.Int("max-turns", 10, "exchanges per dialog session")
	fs.Int("max-context-turns", 20, "prior turns sent with each completion (0 sends all)")
	fs.Float64("language-threshold", 0.5, "largest share of foreign tokens a reply may contain")

	fs.Int("rate-limit", 10, "completion-backed operations per actor per window")
	fs.Duration("rate-window", time.Minute, "rate limit window")
	fs.Duration("cache-ttl", 24*time.Hour, "how long cached overviews live")
	fs.Duration("cache-sweep-interval", 10*time.Minute, "how often expired cache and limiter entries are dropped")

	fs.Int("max-interval-days", 180, "longest review interval")

	fs.Int("worker-count", 2, "background workers")
	fs.Int("queue-size", 64, "background job queue size")
}

// Load layers configuration: flag defaults, then the YAML file named by
// LINGO_CONFIG_FILE, then LINGO_* environment variables, then flags set on
// the command line. A .env file in the working directory is read first.
func Load(fs *pflag.FlagSet) (Config, error) {
	// Ignore error so the app still starts when .env is absent in production.
	_ = godotenv.Load()

	if fs == nil {
		fs = pflag.NewFlagSet("config", pflag.ContinueOnError)
		RegisterFlags(fs)
	}

	k := koanf.New(".")
	if path := os.Getenv(fileEnvName); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	// Unchanged flags only fill keys no other source set.
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		return flagKey(f.Name), posflag.FlagVal(fs, f)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Validate reports every invalid key at once.
func (c Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("koanf")
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
