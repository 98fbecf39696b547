/*
Package configs is responsible for loading and parsing the application's configuration settings.

It configures server parameters by reading operating system environment
variables: the running environment, listen addresses, the advertised
authentication type, persistence paths, and chat limits.
*/
package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Advertised authentication types.
const (
	// AuthTypeClientKey accepts an opaque client-generated key; the identity
	// is provisioned automatically on first login.
	AuthTypeClientKey = "clientkey"

	// AuthTypePassword verifies a username/password pair against the
	// identity store.
	AuthTypePassword = "password"
)

// AppConfig contains all configuration parameters required for the
// application to run. It is constructed once in main and passed by reference
// to every component that needs it. All values are loaded from environment
// variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	ListenAddr  string
	Port        int

	// Optional WebSocket bridge listener; 0 disables it.
	WSPort int

	// Optional admin/observation HTTP API listener; 0 disables it.
	AdminPort int

	// Server identity advertised during the handshake.
	ServerName        string
	ServerDescription string

	// Security Settings
	AuthType             string
	JWTSecret            string
	RejectDuplicateLogin bool
	AllowedOrigins       []string

	// Persistence Settings
	DataDir          string
	UserStorePath    string
	HistoryStorePath string

	// DatabaseDSN selects the Postgres-backed stores when set; empty keeps
	// the file-backed stores.
	DatabaseDSN string

	// Chat Settings
	HistoryCapacity int
	MaxMessageBytes int
}

// LoadConfig reads and parses the application configuration from environment
// variables. It provides default values for each configuration item and
// performs necessary type conversions and validation.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.ListenAddr = os.Getenv("LISTEN_ADDR")
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0"
	}

	port, err := intEnv("PORT", 16180)
	if err != nil {
		return nil, err
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the valid range (1-65535)", port)
	}
	cfg.Port = port

	if cfg.WSPort, err = intEnv("WS_PORT", 0); err != nil {
		return nil, err
	}

	if cfg.AdminPort, err = intEnv("ADMIN_PORT", 0); err != nil {
		return nil, err
	}

	cfg.ServerName = os.Getenv("SERVER_NAME")
	if cfg.ServerName == "" {
		cfg.ServerName = "chatwire"
	}
	cfg.ServerDescription = os.Getenv("SERVER_DESCRIPTION")

	// --- Security Settings ---
	cfg.AuthType = os.Getenv("AUTH_TYPE")
	if cfg.AuthType == "" {
		cfg.AuthType = AuthTypeClientKey
	}
	if cfg.AuthType != AuthTypeClientKey && cfg.AuthType != AuthTypePassword {
		return nil, fmt.Errorf("unsupported AUTH_TYPE %q (expected %q or %q)", cfg.AuthType, AuthTypeClientKey, AuthTypePassword)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if cfg.Environment == "development" {
		if jwtSecret == "" {
			jwtSecret = "your_default_insecure_secret_key_change_me"
		}
	} else {
		if jwtSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
	}
	cfg.JWTSecret = jwtSecret

	cfg.RejectDuplicateLogin = os.Getenv("REJECT_DUPLICATE_LOGIN") == "true"

	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	// --- Persistence Settings ---
	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	cfg.UserStorePath = filepath.Join(cfg.DataDir, "users.json")
	cfg.HistoryStorePath = filepath.Join(cfg.DataDir, "chat_history.json")

	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")

	// --- Chat Settings ---
	if cfg.HistoryCapacity, err = intEnv("HISTORY_CAPACITY", 50); err != nil {
		return nil, err
	}
	if cfg.HistoryCapacity < 1 {
		return nil, fmt.Errorf("HISTORY_CAPACITY must be at least 1, got %d", cfg.HistoryCapacity)
	}

	if cfg.MaxMessageBytes, err = intEnv("MAX_MESSAGE_BYTES", 5000); err != nil {
		return nil, err
	}

	return cfg, nil
}

// intEnv reads an integer environment variable, falling back to the given
// default when unset.
func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}

	return value, nil
}
