// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// PersonaSource selects where the persona catalog is read from.
type PersonaSource string

const (
	PersonaSourceEmbedded  PersonaSource = "embedded"
	PersonaSourceFile      PersonaSource = "file"
	PersonaSourceFirestore PersonaSource = "firestore"
)

// Config is the full runtime configuration.
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	CORSOrigins []string

	Firebase FirebaseConfig
	Personas PersonaConfig
	Chat     ChatConfig
	Redis    RedisConfig
	Limit    RateLimitConfig
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

type PersonaConfig struct {
	Source PersonaSource
	File   string
}

type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// RedisConfig is empty when rate limiting should stay in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Load reads the given .env files (missing files are ignored; variables
// already set in the environment win) and then the environment. Every
// invalid value is reported, not just the first.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var errs *multierror.Error
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		Firebase: FirebaseConfig{
			ProjectID:       firstEnv("FIREBASE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		Personas: PersonaConfig{
			Source: PersonaSource(strings.ToLower(getEnv("PERSONA_SOURCE", string(PersonaSourceEmbedded)))),
			File:   os.Getenv("PERSONA_FILE"),
		},
		Chat: ChatConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
	}

	var err error
	if cfg.Chat.Timeout, err = durationEnv("OPENAI_TIMEOUT", 60*time.Second); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.Redis.DB, err = intEnv("REDIS_DB", 0); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.Limit.Limit, err = intEnv("CHAT_RATE_LIMIT", 20); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.Limit.Window, err = durationEnv("CHAT_RATE_WINDOW", time.Minute); err != nil {
		errs = multierror.Append(errs, err)
	}

	errs = multierror.Append(errs, cfg.validate()...)
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("PORT: %q is not a valid port", c.Port))
	}
	switch c.Personas.Source {
	case PersonaSourceEmbedded:
	case PersonaSourceFile:
		if c.Personas.File == "" {
			errs = append(errs, errors.New("PERSONA_FILE: required when PERSONA_SOURCE=file"))
		}
	case PersonaSourceFirestore:
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID: required when PERSONA_SOURCE=firestore"))
		}
	default:
		errs = append(errs, fmt.Errorf("PERSONA_SOURCE: unknown source %q", c.Personas.Source))
	}
	if c.Chat.Model == "" {
		errs = append(errs, errors.New("OPENAI_MODEL: must not be empty"))
	}
	if c.Chat.Timeout <= 0 {
		errs = append(errs, errors.New("OPENAI_TIMEOUT: must be positive"))
	}
	if c.Limit.Limit <= 0 {
		errs = append(errs, errors.New("CHAT_RATE_LIMIT: must be positive"))
	}
	if c.Limit.Window <= 0 {
		errs = append(errs, errors.New("CHAT_RATE_WINDOW: must be positive"))
	}
	return errs
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func intEnv(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
