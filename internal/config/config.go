package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const (
	defaultListenAddr  = ":8080"
	defaultDBPath      = "savina.db"
	defaultRepetitions = 10
	defaultTimeoutS    = 300

	envListenAddr  = "SAVINA_LISTEN_ADDR"
	envDBPath      = "SAVINA_DB_PATH"
	envLogLevel    = "SAVINA_LOG_LEVEL"
	envCores       = "SAVINA_CORES"
	envRepetitions = "SAVINA_REPS"
	envTimeoutS    = "SAVINA_TIMEOUT_S"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// Defaults for runs that do not set their own.
	Cores       int
	Repetitions int
	TimeoutS    int
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed or non-positive numbers fall back to the default.
func Load() Config {
	cfg := Config{
		ListenAddr:  defaultListenAddr,
		DBPath:      defaultDBPath,
		LogLevel:    slog.LevelInfo,
		Cores:       runtime.NumCPU(),
		Repetitions: defaultRepetitions,
		TimeoutS:    defaultTimeoutS,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	cfg.Cores = positiveEnv(envCores, cfg.Cores)
	cfg.Repetitions = positiveEnv(envRepetitions, cfg.Repetitions)
	cfg.TimeoutS = positiveEnv(envTimeoutS, cfg.TimeoutS)

	return cfg
}

func positiveEnv(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewHandler creates a slog handler in the given format ("json" or "text").
func NewHandler(w io.Writer, level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text", "":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
