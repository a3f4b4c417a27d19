package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"modelmux/internal/models"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string // sqlite file path; empty disables durable rule/assignment/cost storage
	MongoURI     string // optional; session note + budget persistence
	RedisURL     string // optional; cross-instance cost window counters
	JWTSecret    string

	CatalogPath string // models.json; empty uses the built-in catalog
	RulesPath   string // rules.yaml; empty uses the built-in rule set

	DefaultModel string // model returned when no rule or assignment applies

	NoteTTL       time.Duration // session note time-to-live
	SweepInterval time.Duration // expiry sweep cadence
	RollupCron    string        // cron expression for the daily cost rollup

	// When true, a budget alert is raised once per accounting window instead
	// of re-raising on every breached recording.
	CostAlertOncePerWindow bool

	// Vendors with configured backend clients, comma-separated. Models from
	// unlisted vendors resolve as unavailable.
	ConfiguredVendors []string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	vendorsEnv := getEnv("CONFIGURED_VENDORS", "openai,anthropic,groq")
	var vendors []string
	for _, v := range strings.Split(vendorsEnv, ",") {
		if v = strings.TrimSpace(v); v != "" {
			vendors = append(vendors, strings.ToLower(v))
		}
	}

	return &Config{
		Port:         getEnv("PORT", "3002"),
		DatabasePath: getEnv("DATABASE_PATH", "modelmux.db"),
		MongoURI:     getEnv("MONGODB_URI", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		CatalogPath: getEnv("MODEL_CATALOG_PATH", ""),
		RulesPath:   getEnv("ROUTING_RULES_PATH", ""),

		DefaultModel: getEnv("DEFAULT_MODEL", "gpt-4o-mini"),

		NoteTTL:       getDurationEnv("NOTE_TTL", 7*24*time.Hour),
		SweepInterval: getDurationEnv("NOTE_SWEEP_INTERVAL", time.Hour),
		RollupCron:    getEnv("COST_ROLLUP_CRON", "15 0 * * *"),

		CostAlertOncePerWindow: getBoolEnv("COST_ALERT_ONCE_PER_WINDOW", false),

		ConfiguredVendors: vendors,
	}
}

// LoadCatalog loads the model catalog from a JSON file
func LoadCatalog(filePath string) (*models.CatalogConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var catalog models.CatalogConfig
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	return &catalog, nil
}

// LoadRulesFile loads routing rules from a YAML file
func LoadRulesFile(filePath string) (*models.RulesFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules models.RulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	return &rules, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
