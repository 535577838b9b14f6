package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress     string
	STTWebSocketURL string
	STTAPIKey       string
	GatewayBaseURL  string
	DispatchTimeout time.Duration
	ConnPoolSize    int
	ConnPoolTTL     time.Duration
	SettingsDir     string
	LogFile         string
	Debug           bool
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	sttURL := os.Getenv("STT_WS_URL")
	if sttURL == "" {
		sttURL = "wss://streaming.assemblyai.com/v3/ws"
	}
	sttKey := os.Getenv("STT_API_KEY")
	if sttKey == "" {
		log.Println("Warning: STT_API_KEY not set - running with the scripted demo recognizer")
	}

	gatewayURL := os.Getenv("GATEWAY_BASE_URL")
	if gatewayURL == "" {
		log.Println("Warning: GATEWAY_BASE_URL not set - completion dispatch will not work")
	}

	settingsDir := os.Getenv("SETTINGS_DIR")
	if settingsDir == "" {
		settingsDir = "."
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:     addr,
		STTWebSocketURL: sttURL,
		STTAPIKey:       sttKey,
		GatewayBaseURL:  gatewayURL,
		DispatchTimeout: durationEnv("DISPATCH_TIMEOUT", 30*time.Second),
		ConnPoolSize:    intEnv("CONN_POOL_SIZE", 32),
		ConnPoolTTL:     durationEnv("CONN_POOL_TTL", 10*time.Minute),
		SettingsDir:     settingsDir,
		LogFile:         os.Getenv("LOG_FILE"),
		Debug:           boolEnv("DEBUG", false),
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func boolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
