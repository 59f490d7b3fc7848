// Package config loads service settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds the settings shared by the server and the CLI.
type Config struct {
	Port        string   `yaml:"port"`
	DatabaseURL string   `yaml:"database_url"`
	CORSOrigins []string `yaml:"cors_origins"`

	// APIKeyHash is a bcrypt hash. Write endpoints are open when it is empty.
	APIKeyHash string `yaml:"api_key_hash"`

	QueryTimeout         time.Duration `yaml:"query_timeout"`
	MatchTolerance       float64       `yaml:"match_tolerance"`
	CandidateConcurrency int           `yaml:"candidate_concurrency"`

	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	SQLLogging bool `yaml:"sql_logging"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Port:                 "5050",
		CORSOrigins:          []string{"http://localhost:5173"},
		QueryTimeout:         30 * time.Second,
		MatchTolerance:       1.0,
		CandidateConcurrency: 4,
		RateLimit:            5,
		RateBurst:            10,
		SQLLogging:           true,
	}
}

// Load reads .env.local if present, then CONFIG_FILE, then env overrides.
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.parseYAML(data)
}

func (c *Config) parseYAML(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := getenv("API_KEY_HASH"); v != "" {
		c.APIKeyHash = v
	}

	var errs []error
	if v := getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("QUERY_TIMEOUT: %w", err))
		}
		c.QueryTimeout = d
	}
	if v := getenv("MATCH_TOLERANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MATCH_TOLERANCE: %w", err))
		}
		c.MatchTolerance = f
	}
	if v := getenv("CANDIDATE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CANDIDATE_CONCURRENCY: %w", err))
		}
		c.CandidateConcurrency = n
	}
	if v := getenv("RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT: %w", err))
		}
		c.RateLimit = f
	}
	if v := getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_BURST: %w", err))
		}
		c.RateBurst = n
	}
	if v := getenv("SQL_LOGGING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SQL_LOGGING: %w", err))
		}
		c.SQLLogging = b
	}
	return errors.Join(errs...)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is empty"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("port is empty"))
	}
	if c.QueryTimeout < 0 {
		errs = append(errs, errors.New("query timeout must not be negative"))
	}
	if c.MatchTolerance <= 0 {
		errs = append(errs, errors.New("match tolerance must be positive"))
	}
	if c.CandidateConcurrency < 1 {
		errs = append(errs, errors.New("candidate concurrency must be at least 1"))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limit and burst must not be negative"))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
