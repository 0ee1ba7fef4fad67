package config

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type EncryptionConfig struct {
	Key []byte
}

// IsConfigured returns true if a usable encryption key is present
func (c EncryptionConfig) IsConfigured() bool {
	return len(c.Key) == 32
}

type AgentConfig struct {
	URL             string
	DispatchTimeout time.Duration
}

// IsConfigured returns true if all required agent configuration is present
func (c AgentConfig) IsConfigured() bool {
	return c.URL != ""
}

type ControlPlaneConfig struct {
	AdminAPIKey string
}

// IsConfigured returns true if the control plane admin key is present
func (c ControlPlaneConfig) IsConfigured() bool {
	return c.AdminAPIKey != ""
}

type AlertingConfig struct {
	SlackWebhookURL string
}

// IsConfigured returns true if alert delivery is set up
func (c AlertingConfig) IsConfigured() bool {
	return c.SlackWebhookURL != ""
}

type AppConfig struct {
	// Core configuration (always required)
	DatabaseURL        string
	DatabaseSchema     string
	Port               string // Optional with default "8080"
	CORSAllowedOrigins string // Optional with default "*"
	Environment        string
	ServerLogsURL      string
	UseStrictConfig    bool // If true, error when any integration is not fully configured

	// Integration configurations (grouped)
	EncryptionConfig   EncryptionConfig
	AgentConfig        AgentConfig
	ControlPlaneConfig ControlPlaneConfig
	AlertingConfig     AlertingConfig
}

func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️ Could not load .env file, continuing with system env vars")
	}

	// Core required configuration
	databaseURL, err := getEnvRequired("DB_URL")
	if err != nil {
		return nil, err
	}

	databaseSchema, err := getEnvRequired("DB_SCHEMA")
	if err != nil {
		return nil, err
	}

	encryptionKey, err := loadEncryptionKey()
	if err != nil {
		return nil, err
	}

	dispatchTimeout, err := loadDispatchTimeout()
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		// Core configuration
		DatabaseURL:        databaseURL,
		DatabaseSchema:     databaseSchema,
		Port:               getEnvWithDefault("PORT", "8080"),
		CORSAllowedOrigins: getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*"),
		Environment:        getEnvWithDefault("ENVIRONMENT", "dev"),
		ServerLogsURL:      getEnvWithDefault("SERVER_LOGS_URL", ""),
		UseStrictConfig:    getEnvWithDefault("USE_STRICT_CONFIG", "true") == "true",

		// Encryption configuration (required)
		EncryptionConfig: EncryptionConfig{
			Key: encryptionKey,
		},

		// Agent configuration (optional)
		AgentConfig: AgentConfig{
			URL:             os.Getenv("AGENT_URL"),
			DispatchTimeout: dispatchTimeout,
		},

		// Control plane configuration (optional)
		ControlPlaneConfig: ControlPlaneConfig{
			AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		},

		// Alerting configuration (optional)
		AlertingConfig: AlertingConfig{
			SlackWebhookURL: os.Getenv("SLACK_ALERT_WEBHOOK_URL"),
		},
	}

	// Log which integrations are configured
	if config.AgentConfig.IsConfigured() {
		log.Printf("✅ Agent integration configured")
	} else {
		log.Printf("⚠️ Agent integration not configured - issue dispatch will be disabled")
		if config.UseStrictConfig {
			return nil, fmt.Errorf("agent integration is not fully configured (USE_STRICT_CONFIG=true)")
		}
	}

	if config.ControlPlaneConfig.IsConfigured() {
		log.Printf("✅ Control plane admin key configured")
	} else {
		log.Printf("⚠️ Control plane admin key not configured - admin API will reject all requests")
		if config.UseStrictConfig {
			return nil, fmt.Errorf("control plane is not fully configured (USE_STRICT_CONFIG=true)")
		}
	}

	if config.AlertingConfig.IsConfigured() {
		log.Printf("✅ Error alerting configured")
	} else {
		log.Printf("⚠️ Error alerting not configured - alerts will only be logged")
	}

	return config, nil
}

// loadEncryptionKey decodes ENCRYPTION_KEY, which must be 32 random bytes
// in base64. Generate one with cmd/genkey.
func loadEncryptionKey() ([]byte, error) {
	encoded, err := getEnvRequired("ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func loadDispatchTimeout() (time.Duration, error) {
	raw := getEnvWithDefault("AGENT_DISPATCH_TIMEOUT", "300s")
	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("AGENT_DISPATCH_TIMEOUT is not a valid duration: %w", err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("AGENT_DISPATCH_TIMEOUT must be positive, got %s", raw)
	}
	return timeout, nil
}

func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set", key)
	}
	return value, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
