package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string
	DatabasePath       string
	LogLevel           string
	MaxUploadSizeBytes int64

	// Ingestion tuning.
	IngestWorkers           int
	ConfidenceThreshold     int
	CostBasisEstimateFactor float64
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	ingestWorkers := getEnvAsInt("INGEST_WORKERS", 4)
	if ingestWorkers < 1 {
		log.Printf("WARNING: INGEST_WORKERS must be at least 1, got %d. Using 1.", ingestWorkers)
		ingestWorkers = 1
	}

	confidenceThreshold := getEnvAsInt("CONFIDENCE_THRESHOLD", 70)
	if confidenceThreshold < 10 || confidenceThreshold > 99 {
		log.Printf("WARNING: CONFIDENCE_THRESHOLD %d outside the 10-99 score range. Using default 70.", confidenceThreshold)
		confidenceThreshold = 70
	}

	costBasisFactorStr := getEnv("COST_BASIS_ESTIMATE_FACTOR", "0.9")
	costBasisFactor, err := strconv.ParseFloat(costBasisFactorStr, 64)
	if err != nil || costBasisFactor <= 0 || costBasisFactor > 1 {
		log.Printf("WARNING: Invalid COST_BASIS_ESTIMATE_FACTOR '%s'. Using default 0.9.", costBasisFactorStr)
		costBasisFactor = 0.9
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./portfolioxray.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxUploadSizeBytes: maxUploadSizeBytes,

		IngestWorkers:           ingestWorkers,
		ConfidenceThreshold:     confidenceThreshold,
		CostBasisEstimateFactor: costBasisFactor,
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, IngestWorkers=%d",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.IngestWorkers)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}
