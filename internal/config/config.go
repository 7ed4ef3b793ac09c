package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Session  SessionConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
}

type StorageConfig struct {
	Driver string // "filesystem" or "postgres"
	Root   string // filesystem driver: directory holding the collections
}

type DatabaseConfig struct {
	Connection string
}

type SessionConfig struct {
	AutosaveDebounceMs  int
	AssetFetchTimeoutMs int
	SessionIdleTTLMin   int
	NotificationTopic   string
	// LastCollectionHandle restores the previous collection on startup. The
	// session starts awaiting re-authorization until the user confirms.
	LastCollectionHandle string
	LastCollectionName   string
	LastDocumentPath     string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "filesystem"),
			Root:   getEnv("STORAGE_ROOT", "./collections"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Session: SessionConfig{
			AutosaveDebounceMs:   getEnvAsInt("AUTOSAVE_DEBOUNCE_MS", 2000),
			AssetFetchTimeoutMs:  getEnvAsInt("ASSET_FETCH_TIMEOUT_MS", 15000),
			SessionIdleTTLMin:    getEnvAsInt("SESSION_IDLE_TTL_MIN", 30),
			NotificationTopic:    getEnv("SESSION_NOTIFICATION_TOPIC_NAME", "SESSION_NOTIFICATIONS"),
			LastCollectionHandle: getEnv("LAST_COLLECTION_HANDLE", ""),
			LastCollectionName:   getEnv("LAST_COLLECTION_NAME", ""),
			LastDocumentPath:     getEnv("LAST_DOCUMENT_PATH", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
