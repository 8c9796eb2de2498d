// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bcbackend/internal/logger"
)

// Variables available everywhere
var (
	baseDir        string
	dataDirectory  string
	logsDirectory  string
	databasePath   string
	adminPassword  string
	AllowedOrigin  string // For CORS
	LogFileFormat  string
	tokenTTL       time.Duration
	archiveHorizon time.Duration
)

const (
	defaultTokenTTL       = 12 * time.Hour
	defaultArchiveHorizon = 90 * 24 * time.Hour
)

//
// --- Utility Helpers ---
//

// Helper: get a setting based on ENVIRONMENT (dev or prod)
func GetEnvBasedSetting(base string) string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(env)))
}

// Helper: log which environment is running
func LogCurrentEnvironment() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	if env == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in production environment")
	}
}

//
// --- Loaders ---
//

// LoadEnv reads .env file
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	} else {
		log.Printf("Current working directory: %s", wd)
	}

	err = godotenv.Load(".env")
	if err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// LoggerConfig returns a logger.Config struct populated from environment
func LoggerConfig() logger.Config {
	logDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logDir == "" {
		logDir = "./logs"
	}

	logFormat := GetEnvBasedSetting("LOG_FILE_FORMAT")
	if logFormat == "" {
		logFormat = "./logs/server_%s.log"
	}

	timezone := os.Getenv("TIME_ZONE")
	if timezone == "" {
		timezone = "Local"
	}

	return logger.Config{
		LogsDirectory: logDir,
		LogFileFormat: logFormat,
		TimeZone:      timezone,
	}
}

// ConfigurePaths sets up folders and paths
func ConfigurePaths() {
	wd, err := os.Getwd()
	if err != nil {
		logger.LogFatal("Failed to get working directory: %v", err)
	}
	baseDir = wd

	dataDir := GetEnvBasedSetting("DATA_DIRECTORY")
	if dataDir != "" {
		dataDirectory = dataDir
	} else {
		dataDirectory = filepath.Join(baseDir, "data")
	}

	logsDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logsDir != "" {
		logsDirectory = logsDir
	} else {
		logsDirectory = filepath.Join(baseDir, "logs")
	}

	dbPath := GetEnvBasedSetting("DATABASE_PATH")
	if dbPath != "" {
		databasePath = dbPath
	} else {
		databasePath = filepath.Join(dataDirectory, "club.db")
	}

	LogFileFormat = filepath.Join(logsDirectory, "server_%s.log")
}

// LoadAuthConfig sets up the admin password and token lifetime
func LoadAuthConfig() error {
	adminPassword = os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD is missing")
	}

	tokenTTL = defaultTokenTTL
	if ttlStr := os.Getenv("TOKEN_TTL_MINUTES"); ttlStr != "" {
		minutes, err := strconv.Atoi(ttlStr)
		if err != nil || minutes <= 0 {
			logger.LogWarn("Invalid TOKEN_TTL_MINUTES: %s, using default %v", ttlStr, defaultTokenTTL)
		} else {
			tokenTTL = time.Duration(minutes) * time.Minute
		}
	}

	return nil
}

// LoadCORSConfig loads CORS settings
func LoadCORSConfig() {
	AllowedOrigin = GetEnvBasedSetting("ALLOWED_ORIGIN")
	if AllowedOrigin == "" {
		AllowedOrigin = "*" // Allow all - be careful in prod
		logger.LogWarn("ALLOWED_ORIGIN not set, using '*' (allow all origins) - SECURITY RISK")
	} else {
		logger.LogInfo("Allowed Origin: %s", AllowedOrigin)
	}
}

// LoadArchiveConfig loads the session archival horizon
func LoadArchiveConfig() {
	archiveHorizon = defaultArchiveHorizon
	if daysStr := os.Getenv("ARCHIVE_AFTER_DAYS"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days <= 0 {
			logger.LogWarn("Invalid ARCHIVE_AFTER_DAYS: %s, using default %v", daysStr, defaultArchiveHorizon)
		} else {
			archiveHorizon = time.Duration(days) * 24 * time.Hour
		}
	}
	logger.LogInfo("Sessions are archived %v after their date", archiveHorizon)
}

//
// --- Getters (exported) ---
//

func DataDirectory() string {
	return dataDirectory
}

func LogsDirectory() string {
	return logsDirectory
}

func DatabasePath() string {
	return databasePath
}

func AdminPassword() string {
	return adminPassword
}

func TokenTTL() time.Duration {
	return tokenTTL
}

func ArchiveHorizon() time.Duration {
	return archiveHorizon
}
