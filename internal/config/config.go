package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AuthMode selects how the credential travels on HTTP requests.
//
// Exactly one mode is active per deployment. Mixing a bearer header with an
// ambient cookie produces ambiguous server-side precedence, so the transport
// never attaches a header in cookie mode.
type AuthMode string

const (
	// AuthModeBearer attaches the stored credential as an Authorization
	// header on every request (default).
	AuthModeBearer AuthMode = "bearer"
	// AuthModeCookie relies on a cookie jar; the server sets and reads the
	// credential itself and no header is attached.
	AuthModeCookie AuthMode = "cookie"
)

// defaultServerURL is the official Chatty backend.
const defaultServerURL = "https://backend-chatty-production.up.railway.app"

type Config struct {
	// ServerURL is the base URL of the Chatty server, without a trailing
	// slash. The realtime channel connects to the same host.
	ServerURL string

	// ChattyHome is the directory where the CLI stores local state.
	ChattyHome string
	// CredentialsFile is the path of the stored bearer credential.
	CredentialsFile string

	// AuthMode is the credential transport mode (bearer|cookie).
	AuthMode AuthMode

	// Debug enables verbose logging.
	Debug bool
	// LogLevel is the log level name passed to the logger (trace..error).
	LogLevel string
}

// Load loads configuration from environment and defaults.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	chattyHome := os.Getenv("CHATTY_HOME_DIR")
	if chattyHome == "" {
		chattyHome = filepath.Join(homeDir, ".chatty")
	}
	if err := os.MkdirAll(chattyHome, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create chatty home: %w", err)
	}

	serverURL := os.Getenv("CHATTY_SERVER_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	serverURL = strings.TrimRight(serverURL, "/")

	mode := AuthMode(os.Getenv("CHATTY_AUTH_MODE"))
	if mode == "" {
		mode = AuthModeBearer
	}
	if mode != AuthModeBearer && mode != AuthModeCookie {
		return nil, fmt.Errorf("invalid CHATTY_AUTH_MODE %q (expected bearer or cookie)", mode)
	}

	debug := os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1"
	if !debug {
		debug = os.Getenv("CHATTY_DEBUG") == "true" || os.Getenv("CHATTY_DEBUG") == "1"
	}

	return &Config{
		ServerURL:       serverURL,
		ChattyHome:      chattyHome,
		CredentialsFile: filepath.Join(chattyHome, "credentials"),
		AuthMode:        mode,
		Debug:           debug,
		LogLevel:        os.Getenv("CHATTY_LOG_LEVEL"),
	}, nil
}

// Save persists configuration to disk (currently just creates directories).
func (c *Config) Save() error {
	return os.MkdirAll(c.ChattyHome, 0o700)
}
