package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Mpesa MpesaConfig
}

// MpesaConfig carries the push-to-pay provider credentials. A landlord
// without a configured shortcode cannot receive settlements.
type MpesaConfig struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	Passkey         string
	CallbackBaseURL string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "rentledger"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:       getenv("DATABASE_TYPE", "postgres"),
		DBHost:       getenv("DATABASE_HOST", "localhost"),
		DBPort:       getenv("DATABASE_PORT", "5432"),
		DBName:       getenv("DATABASE_NAME", "rentledger"),
		DBUser:       getenv("DATABASE_USER", "postgres"),
		DBPassword:   getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:    getenv("DATABASE_SSLMODE", "disable"),
		Mpesa: MpesaConfig{
			BaseURL:         getenv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:     strings.TrimSpace(getenv("MPESA_CONSUMER_KEY", "")),
			ConsumerSecret:  strings.TrimSpace(getenv("MPESA_CONSUMER_SECRET", "")),
			Passkey:         strings.TrimSpace(getenv("MPESA_PASSKEY", "")),
			CallbackBaseURL: strings.TrimSpace(getenv("MPESA_CALLBACK_BASE_URL", "")),
		},
	}

	cfg.DBMaxIdleConn = getenvInt("DATABASE_MAX_IDLE_CONN", 10)
	cfg.DBMaxOpenConn = getenvInt("DATABASE_MAX_OPEN_CONN", 50)
	cfg.DBConnMaxLifetime = getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600)
	cfg.DBConnMaxIdleTime = getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600)

	return cfg
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
