package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/wcatools/competition-finder/pkg/logger"
	"github.com/wcatools/competition-finder/pkg/wca"
)

// Config carries the process-level settings. Everything is read from WCF_*
// environment variables, optionally seeded from a .env file.
type Config struct {
	Port               string
	CacheDBPath        string
	PrefsDBPath        string
	APIBaseURL         string
	MirrorBaseURL      string
	Generation         string
	VenueLookupEnabled bool
	LogLevel           string
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	return Config{
		Port:               getEnv("WCF_PORT", "8080"),
		CacheDBPath:        getEnv("WCF_CACHE_DB_PATH", "data/cache.db"),
		PrefsDBPath:        getEnv("WCF_PREFS_DB_PATH", "data/prefs.db"),
		APIBaseURL:         getEnv("WCF_API_BASE_URL", ""),
		MirrorBaseURL:      getEnv("WCF_MIRROR_BASE_URL", ""),
		Generation:         getEnv("WCF_API_GENERATION", wca.GenerationLive),
		VenueLookupEnabled: getEnv("WCF_VENUE_LOOKUP_ENABLED", "true") == "true",
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
