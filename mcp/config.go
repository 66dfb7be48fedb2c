package mcp

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	// ProjectRoot is the directory the index covers.
	ProjectRoot string

	// Webserver
	EnableWebserver   bool
	WebserverPortBase int
	// PortProbeRange is how many successive ports past the base are tried
	// before startup fails.
	PortProbeRange int

	// Debug enables request/response logging to stderr.
	Debug bool
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableWebserver:   false,
		WebserverPortBase: 8080,
		PortProbeRange:    20,
		Debug:             false,
	}
}

// ConfigFromEnv layers environment variables over the defaults. Call
// godotenv.Load before this if a .env file should participate.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("ENABLE_WEBSERVER"); v != "" {
		cfg.EnableWebserver = envBool(v)
	}
	if v := os.Getenv("WEBSERVER_PORT_BASE"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			cfg.WebserverPortBase = port
		}
	}
	if v := os.Getenv("DOCSERVE_DEBUG"); v != "" {
		cfg.Debug = envBool(v)
	}

	return cfg
}

func envBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
