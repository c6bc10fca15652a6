// Package config reads the process configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	PlatformURL string
	AnonKey     string
	JWTSecret   string

	RelayAddr      string
	RelayURL       string
	PushGatewayURL string

	RequestTimeout time.Duration
	StorePath      string

	PushPermission bool
	PushToken      string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// UpdatesURL is the Expo Updates manifest endpoint; empty disables checks.
	UpdatesURL            string
	UpdatesRuntimeVersion string
	UpdatesPlatform       string
	UpdatesChannel        string
	// UpdatesDir receives downloaded launch assets.
	UpdatesDir string
}

// Load reads the configuration. Call godotenv.Load first to pick up a .env file.
func Load() Config {
	platform := strings.TrimRight(getenv("SUPABASE_URL", "http://localhost:54321"), "/")
	c := Config{
		PlatformURL:        platform,
		AnonKey:            os.Getenv("SUPABASE_ANON_KEY"),
		JWTSecret:          os.Getenv("SUPABASE_JWT_SECRET"),
		RelayAddr:          getenv("RELAY_ADDR", "0.0.0.0:8431"),
		RelayURL:           getenv("RELAY_URL", platform+"/functions/v1/send-notification"),
		PushGatewayURL:     os.Getenv("PUSH_GATEWAY_URL"),
		RequestTimeout:     time.Duration(atoi("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		StorePath:          getenv("CREDENTIAL_STORE_PATH", defaultStorePath()),
		PushPermission:     getenv("PUSH_PERMISSION", "granted") == "granted",
		PushToken:          os.Getenv("EXPO_PUSH_TOKEN"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  getenv("GOOGLE_REDIRECT_URL", "http://localhost:8765/callback"),

		UpdatesURL:            os.Getenv("UPDATES_URL"),
		UpdatesRuntimeVersion: getenv("UPDATES_RUNTIME_VERSION", "1.0.0"),
		UpdatesPlatform:       getenv("UPDATES_PLATFORM", "android"),
		UpdatesChannel:        getenv("UPDATES_CHANNEL", "production"),
		UpdatesDir:            getenv("UPDATES_DIR", filepath.Join(os.TempDir(), "app-core", "updates")),
	}
	return c
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "app-core", "store.json")
}
