package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	Environment     string
	FirebaseProject string
	StorageBucket   string

	// Service account: inline JSON wins over the file path.
	ServiceAccountJSON string
	ServiceAccountPath string

	ChatPageSize      int
	ChatFetchTimeout  time.Duration
	ChatWriteTimeout  time.Duration
	SendRatePerMinute int
	APIRatePerMinute  int
	UploadRatePerMin  int
	MaxUploadBytes    int64
	WSAllowedOrigins  []string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		FirebaseProject:    getEnv("FIREBASE_PROJECT_ID", ""),
		StorageBucket:      getEnv("STORAGE_BUCKET", ""),
		ServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		ChatPageSize:       getEnvAsInt("CHAT_PAGE_SIZE", 50),
		ChatFetchTimeout:   getEnvAsDuration("CHAT_FETCH_TIMEOUT", 10*time.Second),
		ChatWriteTimeout:   getEnvAsDuration("CHAT_WRITE_TIMEOUT", 10*time.Second),
		SendRatePerMinute:  getEnvAsInt("SEND_RATE_PER_MINUTE", 30),
		APIRatePerMinute:   getEnvAsInt("API_RATE_PER_MINUTE", 120),
		UploadRatePerMin:   getEnvAsInt("UPLOAD_RATE_PER_MINUTE", 10),
		MaxUploadBytes:     getEnvAsInt64("MAX_UPLOAD_BYTES", 5<<20),
		WSAllowedOrigins:   getEnvAsList("WS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if config.ChatPageSize <= 0 {
		config.ChatPageSize = 50
	}

	return config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
