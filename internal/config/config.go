package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/JL710/workflowo/internal/logging"
)

// Config holds runtime defaults that are not part of the job document.
type Config struct {
	// SSHPort is appended to remote addresses that carry no port.
	SSHPort string
	// LogLevel controls the structured logger.
	LogLevel logging.Level
	// DefaultThreads overrides the parallel task worker default when
	// the document does not set threads. 0 means host parallelism - 1.
	DefaultThreads int
}

// Load reads an optional .env file from the working directory and
// resolves the WORKFLOWO_* environment variables. A missing .env file
// is not an error.
func Load() *Config {
	godotenv.Load()

	cfg := &Config{
		SSHPort:  "22",
		LogLevel: logging.LevelInfo,
	}
	if port := os.Getenv("WORKFLOWO_SSH_PORT"); port != "" {
		cfg.SSHPort = port
	}
	if lvl := os.Getenv("WORKFLOWO_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = logging.ParseLevel(lvl)
	}
	if threads := os.Getenv("WORKFLOWO_THREADS"); threads != "" {
		if n, err := strconv.Atoi(threads); err == nil && n > 0 {
			cfg.DefaultThreads = n
		}
	}
	return cfg
}

// Threads returns the effective default worker count for parallel
// task groups.
func (c *Config) Threads() int {
	if c.DefaultThreads > 0 {
		return c.DefaultThreads
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}
