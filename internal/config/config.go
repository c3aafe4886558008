// Package config provides daemon configuration with support for command-line flags, environment variables, and .env files.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mapflag/mapflag-client/internal/errors"
)

// Defaults.
const (
	DefaultSubscriptionURL      = "ws://localhost:8333/subscriptions"
	DefaultRefreshInterval      = 15 * time.Minute
	DefaultRefreshRetryInterval = 30 * time.Second
	DefaultLocalAPIAddr         = "127.0.0.1:8334"
	DefaultLanguage             = "zh-Hant"
)

// Auth provider kinds.
const (
	AuthProviderFirebase = "firebase"
	AuthProviderLocal    = "local"
)

// Config holds the daemon configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	GraphQL  GraphQLConfig
	Firebase FirebaseConfig
	Session  SessionConfig
	LocalAPI LocalAPIConfig
	UI       UIConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
	// Format is "json" or "pretty". Empty picks json in production and pretty elsewhere.
	Format string
}

// DataConfig holds local persistence configuration.
type DataConfig struct {
	// BasePath holds the badger directory and the local auth key (default: ~/.mapflag).
	BasePath string
}

// GraphQLConfig holds the API gateway endpoints.
type GraphQLConfig struct {
	HTTPURL         string  // Queries and mutations (required)
	SubscriptionURL string  // Live subscriptions over websocket
	RequestsPerSec  float64 // Outbound limit per operation kind (default: 10)
	Burst           int     // Outbound burst (default: 20)
}

// FirebaseConfig holds identity provider configuration.
type FirebaseConfig struct {
	Provider    string // firebase or local
	APIKey      string
	LocalServer bool   // Talk to the auth emulator instead of Google
	EmulatorURL string // host:port of the auth emulator
	// IdP credentials handed to signInWithIdp.
	GoogleIDToken       string
	FacebookAccessToken string
	// Identity the local provider signs in as.
	LocalUID   string
	LocalName  string
	LocalEmail string
}

// SessionConfig holds token lifecycle configuration.
type SessionConfig struct {
	RefreshInterval      time.Duration
	RefreshRetryInterval time.Duration
}

// LocalAPIConfig holds the localhost state API configuration.
type LocalAPIConfig struct {
	Addr           string
	AllowedOrigins []string
}

// UIConfig holds presentation configuration.
type UIConfig struct {
	Language string
}

// LoadConfig loads configuration from the process arguments and environment.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables (legacy REACT_APP_* names are accepted as fallbacks).
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mapflagd", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for local state")
	graphqlURL := fs.String("graphql-url", "", "GraphQL HTTP endpoint")
	subscriptionURL := fs.String("subscription-url", "", "GraphQL websocket endpoint")
	authProvider := fs.String("auth-provider", "", "Identity provider (firebase, local)")
	refreshInterval := fs.String("refresh-interval", "", "Token refresh interval (default: 15m)")
	localAddr := fs.String("listen", "", "Local state API address (default: 127.0.0.1:8334)")
	language := fs.String("lang", "", "UI language tag (default: zh-Hant)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "parse flags")
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			Format: getConfigValue("", "LOG_FORMAT", ""),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		GraphQL: GraphQLConfig{
			HTTPURL:         getConfigValue(*graphqlURL, "GRAPHQL_API_URL", os.Getenv("REACT_APP_GRAPHQL_API_URL")),
			SubscriptionURL: getConfigValue(*subscriptionURL, "GRAPHQL_WS_URL", DefaultSubscriptionURL),
			RequestsPerSec:  getFloatConfigValue("", "GRAPHQL_RPS", 10),
			Burst:           getIntConfigValue("", "GRAPHQL_BURST", 20),
		},
		Firebase: FirebaseConfig{
			Provider:            getConfigValue(*authProvider, "AUTH_PROVIDER", AuthProviderFirebase),
			APIKey:              getConfigValue("", "FIREBASE_API_KEY", ""),
			LocalServer:         getBoolConfigValue("", "FIREBASE_LOCAL_SERVER", getBoolConfigValue("", "REACT_APP_FIREBASE_LOCAL_SERVER", false)),
			EmulatorURL:         getConfigValue("", "FIREBASE_EMULATOR_URL", os.Getenv("REACT_APP_FIREBASE_EMULATER_URL")),
			GoogleIDToken:       getConfigValue("", "GOOGLE_ID_TOKEN", ""),
			FacebookAccessToken: getConfigValue("", "FACEBOOK_ACCESS_TOKEN", ""),
			LocalUID:            getConfigValue("", "LOCAL_USER_UID", "local-dev"),
			LocalName:           getConfigValue("", "LOCAL_USER_NAME", "Local Developer"),
			LocalEmail:          getConfigValue("", "LOCAL_USER_EMAIL", "dev@localhost"),
		},
		LocalAPI: LocalAPIConfig{
			Addr:           getConfigValue(*localAddr, "LOCAL_API_ADDR", DefaultLocalAPIAddr),
			AllowedOrigins: splitList(getConfigValue("", "LOCAL_API_ORIGINS", "http://localhost:3000")),
		},
		UI: UIConfig{
			Language: getConfigValue(*language, "UI_LANGUAGE", DefaultLanguage),
		},
	}

	var err error
	cfg.Session.RefreshInterval, err = getDurationConfigValue(*refreshInterval, "TOKEN_REFRESH_INTERVAL", DefaultRefreshInterval)
	if err != nil {
		return nil, err
	}
	cfg.Session.RefreshRetryInterval, err = getDurationConfigValue("", "TOKEN_REFRESH_RETRY", DefaultRefreshRetryInterval)
	if err != nil {
		return nil, err
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "invalid data path")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
// Missing endpoints fail here so the daemon never starts half-configured.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return errors.Configf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return errors.Configf("invalid log level: %q (must be debug, info, warn, or error)", c.Logger.Level)
	}
	if f := c.Logger.Format; f != "" && f != "json" && f != "pretty" {
		return errors.Configf("invalid log format: %q (must be json or pretty)", f)
	}

	if c.GraphQL.HTTPURL == "" {
		return errors.Config("GRAPHQL_API_URL is required")
	}
	if err := checkURL(c.GraphQL.HTTPURL, "http", "https"); err != nil {
		return errors.Wrap(err, errors.CodeConfig, "invalid GRAPHQL_API_URL")
	}
	if err := checkURL(c.GraphQL.SubscriptionURL, "ws", "wss"); err != nil {
		return errors.Wrap(err, errors.CodeConfig, "invalid GRAPHQL_WS_URL")
	}
	if c.GraphQL.RequestsPerSec <= 0 {
		return errors.Config("GRAPHQL_RPS must be positive")
	}

	switch c.Firebase.Provider {
	case AuthProviderFirebase:
		if c.Firebase.LocalServer && c.Firebase.EmulatorURL == "" {
			return errors.Config("FIREBASE_EMULATOR_URL is required when FIREBASE_LOCAL_SERVER is set")
		}
		if !c.Firebase.LocalServer && c.Firebase.APIKey == "" {
			return errors.Config("FIREBASE_API_KEY is required for the firebase provider")
		}
	case AuthProviderLocal:
	default:
		return errors.Configf("invalid auth provider: %q (must be firebase or local)", c.Firebase.Provider)
	}

	if c.Session.RefreshInterval <= 0 {
		return errors.Config("TOKEN_REFRESH_INTERVAL must be positive")
	}

	if c.Data.BasePath == "" {
		return errors.Config("data path cannot be empty after expansion")
	}

	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q must be an absolute %s URL", raw, strings.Join(schemes, "/"))
}

// expandDataPath expands ~ and makes the path absolute, defaulting to ~/.mapflag.
func (c *Config) expandDataPath() error {
	path := c.Data.BasePath
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.Data.BasePath = filepath.Join(homeDir, ".mapflag")
		return nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	c.Data.BasePath = filepath.Clean(abs)
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1", "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getDurationConfigValue(flagValue, envKey string, defaultValue time.Duration) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeConfig, "invalid %s %q", envKey, strValue)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment wins over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
