package config

import (
	"log/slog"
	"os"
	"strings"
)

// Config holds process-level configuration values.
type Config struct {
	// Chat settings file (YAML)
	SettingsFile string

	// View channel
	ListenAddr string
	ServerURL  string

	// Usage ledger (SurrealDB, optional)
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SettingsFile: getEnv("CODECHAT_SETTINGS", defaultSettingsPath()),

		ListenAddr: getEnv("CODECHAT_LISTEN_ADDR", "localhost:8484"),
		ServerURL:  getEnv("CODECHAT_SERVER_URL", "ws://localhost:8484/ws"),

		// Empty URL disables the ledger
		SurrealDBURL:       getEnv("CODECHAT_SURREALDB_URL", ""),
		SurrealDBNamespace: getEnv("CODECHAT_SURREALDB_NAMESPACE", "codechat"),
		SurrealDBDatabase:  getEnv("CODECHAT_SURREALDB_DATABASE", "usage"),
		SurrealDBUser:      getEnv("CODECHAT_SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("CODECHAT_SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("CODECHAT_SURREALDB_AUTH_LEVEL", "root"),

		LogFile:  getEnv("CODECHAT_LOG_FILE", "/tmp/codechat.log"),
		LogLevel: parseLogLevel(getEnv("CODECHAT_LOG_LEVEL", "INFO")),
	}
}

// LedgerEnabled reports whether a usage ledger is configured.
func (c Config) LedgerEnabled() bool {
	return c.SurrealDBURL != ""
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "codechat.yaml"
	}
	return dir + "/codechat/settings.yaml"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
