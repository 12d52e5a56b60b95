package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string
	Port   string

	// WAF defaults (live values are held by detector.Settings)
	UpstreamURL    string
	MLURL          string
	IngestURL      string
	LogSafeTraffic bool

	// Files
	SignaturesPath string
	JournalPath    string

	// Event Store
	MySQLDSN string

	// Bootstrap admin
	AdminUser     string
	AdminPassword string

	// Threat Intel
	VTAPIKey        string
	OTXAPIKey       string
	AbuseIPDBAPIKey string

	// LLM
	LLMProvider  string // remote | local | mock
	LLMRemoteURL string
	LLMLocalURL  string
	LLMModel     string
	LLMAPIKey    string
}

func Load() *Config {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	return &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		UpstreamURL:    getEnv("UPSTREAM_URL", "http://127.0.0.1:3001"),
		MLURL:          getEnv("ML_URL", "http://127.0.0.1:9000/predict"),
		IngestURL:      getEnv("INGEST_URL", "http://127.0.0.1:8080/api/ingest_log"),
		LogSafeTraffic: getEnvBool("LOG_SAFE_TRAFFIC", true),

		SignaturesPath: getEnv("SIGNATURES_PATH", "signatures.yml"),
		JournalPath:    getEnv("JOURNAL_PATH", "dataset/suspicious.jsonl"),

		MySQLDSN: getEnv("MYSQL_DSN", "hydra:hydra@tcp(127.0.0.1:3306)/hydra?parseTime=true"),

		AdminUser:     getEnv("ADMIN_USER", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),

		VTAPIKey:        getEnv("VT_API_KEY", ""),
		OTXAPIKey:       getEnv("OTX_API_KEY", ""),
		AbuseIPDBAPIKey: getEnv("ABUSEIPDB_API_KEY", ""),

		LLMProvider:  getEnv("LLM_PROVIDER", "remote"),
		LLMRemoteURL: getEnv("LLM_REMOTE_URL", "https://api.groq.com/openai/v1"),
		LLMLocalURL:  getEnv("LLM_LOCAL_URL", "http://localhost:11434"),
		LLMModel:     getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
		LLMAPIKey:    getEnv("LLM_API_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
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
