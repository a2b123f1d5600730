// Package config loads service settings from the environment, after an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bizmatters/tour-orchestrator/internal/geometry"
)

type Config struct {
	Port        string
	DatabaseURL string
	Solver      SolverConfig
	Scratch     ScratchConfig
	MaxPoints   int
}

type SolverConfig struct {
	Path               string
	Args               []string
	Timeout            time.Duration
	BreakerMaxFailures uint32
}

type ScratchConfig struct {
	Dir  string
	Keep bool
}

const (
	defaultPort          = "8080"
	defaultSolverPath    = "./bin/linkern"
	defaultSolverTimeout = 2 * time.Minute
	defaultMaxFailures   = 5
)

// Load reads .env if present and then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Malformed values are errors rather
// than silently replaced by defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	timeout, err := parseDuration(get("SOLVER_TIMEOUT"), defaultSolverTimeout)
	if err != nil {
		return nil, fmt.Errorf("SOLVER_TIMEOUT: %w", err)
	}
	keep, err := parseBool(get("KEEP_SCRATCH"), false)
	if err != nil {
		return nil, fmt.Errorf("KEEP_SCRATCH: %w", err)
	}
	maxPoints, err := parseInt(get("MAX_POINTS"), geometry.MaxPoints)
	if err != nil {
		return nil, fmt.Errorf("MAX_POINTS: %w", err)
	}
	if maxPoints < 1 || maxPoints > geometry.MaxPoints {
		return nil, fmt.Errorf("MAX_POINTS: %d out of range [1, %d]", maxPoints, geometry.MaxPoints)
	}
	maxFailures, err := parseInt(get("BREAKER_MAX_FAILURES"), defaultMaxFailures)
	if err != nil {
		return nil, fmt.Errorf("BREAKER_MAX_FAILURES: %w", err)
	}
	if maxFailures < 1 {
		return nil, fmt.Errorf("BREAKER_MAX_FAILURES: must be positive, got %d", maxFailures)
	}

	return &Config{
		Port:        strings.TrimPrefix(firstNonEmpty(get("PORT"), defaultPort), ":"),
		DatabaseURL: get("DATABASE_URL"),
		Solver: SolverConfig{
			Path:               firstNonEmpty(get("SOLVER_PATH"), defaultSolverPath),
			Args:               strings.Fields(get("SOLVER_ARGS")),
			Timeout:            timeout,
			BreakerMaxFailures: uint32(maxFailures),
		},
		Scratch: ScratchConfig{
			Dir:  firstNonEmpty(get("SCRATCH_DIR"), os.TempDir()),
			Keep: keep,
		},
		MaxPoints: maxPoints,
	}, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func parseBool(raw string, fallback bool) (bool, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseBool(raw)
}

func parseInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
