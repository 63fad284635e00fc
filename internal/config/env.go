package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	SslCertPath  string
	AIAPIKey     string
	VisionModel  string
	GenModel     string

	DetectionThreshold float64
	MaxImageBytes      int
	MaxUploadRetries   int
	Workers            int

	EncryptionRequired bool
	EncryptionKey      string
	Port               string
	LogFile            string
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "medvault-docs"),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		VisionModel:  getEnv("VISION_MODEL", "gemini-1.5-flash"),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),

		DetectionThreshold: getEnvFloat("DETECTION_THRESHOLD", 0.3),
		MaxImageBytes:      getEnvInt("MAX_IMAGE_BYTES", 4<<20),
		MaxUploadRetries:   getEnvInt("MAX_UPLOAD_RETRIES", 3),
		Workers:            getEnvInt("PIPELINE_WORKERS", 4),

		EncryptionRequired: getEnvBool("ENCRYPTION_REQUIRED", true),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		Port:               getEnv("PORT", "8080"),
		LogFile:            getEnv("LOG_FILE", ""),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}
