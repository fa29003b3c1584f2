package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	OpenWeatherAPIKey string

	// HTTPTimeout bounds every upstream weather request.
	HTTPTimeout time.Duration

	// Forecast cache retention.
	CacheTTL        time.Duration
	CacheMaxEntries int

	// SearchDebounce is the quiet period before a city search fires.
	SearchDebounce time.Duration

	// WarmInterval controls how often favorited forecasts are refreshed.
	WarmInterval time.Duration

	DatabasePath string
	Port         string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	if cfg.OpenWeatherAPIKey == "" {
		return nil, fmt.Errorf("OPENWEATHER_API_KEY is required")
	}

	timeout, err := getenvDuration("HTTP_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = timeout

	ttl, err := getenvDuration("CACHE_TTL", "30m")
	if err != nil {
		return nil, err
	}
	cfg.CacheTTL = ttl
	cfg.CacheMaxEntries = getenvInt("CACHE_MAX_ENTRIES", 256)

	debounce, err := getenvDuration("SEARCH_DEBOUNCE", "300ms")
	if err != nil {
		return nil, err
	}
	cfg.SearchDebounce = debounce

	warm, err := getenvDuration("WARM_INTERVAL", "30m")
	if err != nil {
		return nil, err
	}
	cfg.WarmInterval = warm

	cfg.DatabasePath = getenvDefault("DATABASE_PATH", "glassweather.db")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
