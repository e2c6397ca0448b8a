package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the attendance service.
type Config struct {
	HTTPPort          int
	SQLiteDSN         string
	TokenTTL          time.Duration
	SessionTokenBytes int
	RosterInterval    time.Duration
	RosterSession     string
	EventDirectoryURL string
	BootstrapUsername string
	BootstrapPassword string
}

// Load parses configuration values from the current process environment.
//
// The loader applies sensible defaults for optional fields and reports every
// invalid entry in a single error so operators can fix them in one pass.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:          8080,
		SQLiteDSN:         "file:attendance.db?_foreign_keys=on",
		TokenTTL:          12 * time.Hour,
		SessionTokenBytes: 4,
		RosterInterval:    3 * time.Second,
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("ATTENDANCE_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "ATTENDANCE_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("ATTENDANCE_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if ttlValue := strings.TrimSpace(os.Getenv("ATTENDANCE_TOKEN_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "ATTENDANCE_TOKEN_TTL")
		} else {
			cfg.TokenTTL = ttl
		}
	}

	if bytesValue := strings.TrimSpace(os.Getenv("ATTENDANCE_SESSION_TOKEN_BYTES")); bytesValue != "" {
		n, err := strconv.Atoi(bytesValue)
		if err != nil || n <= 0 || n > 32 {
			invalid = append(invalid, "ATTENDANCE_SESSION_TOKEN_BYTES")
		} else {
			cfg.SessionTokenBytes = n
		}
	}

	if intervalValue := strings.TrimSpace(os.Getenv("ATTENDANCE_ROSTER_INTERVAL")); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "ATTENDANCE_ROSTER_INTERVAL")
		} else {
			cfg.RosterInterval = interval
		}
	}

	if token := strings.TrimSpace(os.Getenv("ATTENDANCE_ROSTER_SESSION")); token != "" {
		cfg.RosterSession = token
	}

	if url := strings.TrimSpace(os.Getenv("ATTENDANCE_EVENT_DIRECTORY_URL")); url != "" {
		cfg.EventDirectoryURL = url
	}

	cfg.BootstrapUsername = strings.TrimSpace(os.Getenv("ATTENDANCE_BOOTSTRAP_USERNAME"))
	cfg.BootstrapPassword = os.Getenv("ATTENDANCE_BOOTSTRAP_PASSWORD")
	if (cfg.BootstrapUsername == "") != (cfg.BootstrapPassword == "") {
		invalid = append(invalid, "ATTENDANCE_BOOTSTRAP_USERNAME/ATTENDANCE_BOOTSTRAP_PASSWORD")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
