package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the client configuration.
type Config struct {
	APIBaseURL string // http(s) base of the content delivery backend

	// Credential sources. AuthTokenFile wins when both are set.
	AuthToken     string
	AuthTokenFile string

	LanguagePreference string // static preference, overrides the stores when set

	NativePlayback  bool // skip the adaptive engine and hand the manifest to the element
	AutoplayBlocked bool // headless element rejects Play like a blocked autoplay policy

	HTTPTimeout       time.Duration
	ChannelMaxRetries int
	StallTimeout      time.Duration
	StatusAddr        string

	PreferenceCacheTTL time.Duration

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	LogLevel  string
	LogFormat string // json or console
	LogFile   string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load reads the configuration from the environment, after merging a .env
// file from the working directory when one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: ignoring unreadable .env file: %v", err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() *Config {
	return &Config{
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:3000"), "/"),
		AuthToken:          os.Getenv("AUTH_TOKEN"),
		AuthTokenFile:      os.Getenv("AUTH_TOKEN_FILE"),
		LanguagePreference: os.Getenv("LANGUAGE_PREFERENCE"),
		NativePlayback:     getEnvBool("NATIVE_PLAYBACK", false),
		AutoplayBlocked:    getEnvBool("AUTOPLAY_BLOCKED", false),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		ChannelMaxRetries:  getEnvInt("CHANNEL_MAX_RETRIES", 5),
		StallTimeout:       getEnvDuration("STALL_TIMEOUT", 2*time.Minute),
		StatusAddr:         getEnv("STATUS_ADDR", ""),
		PreferenceCacheTTL: getEnvDuration("PREFERENCE_CACHE_TTL", 10*time.Minute),
		RedisHost:          getEnv("REDIS_HOST", ""),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		DBHost:             getEnv("DB_HOST", ""),
		DBPort:             getEnv("DB_PORT", "3306"),
		DBUser:             getEnv("DB_USER", "root"),
		DBPassword:         os.Getenv("DB_PASSWORD"), // no default for secrets
		DBName:             getEnv("DB_NAME", "hypertube"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		LogFile:            getEnv("LOG_FILE", ""),
	}
}

// RedisEnabled reports whether a Redis preference cache is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// DBEnabled reports whether the MySQL preference store is configured.
func (c *Config) DBEnabled() bool {
	return c.DBHost != ""
}
