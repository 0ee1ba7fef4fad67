package testutils

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"issuebroker/config"
	"issuebroker/cryptobox"
	"issuebroker/models"
	"issuebroker/services"
)

// LoadTestConfig loads configuration for tests from environment variables
func LoadTestConfig() (*config.AppConfig, error) {
	// Try to load environment variables from various possible locations
	_ = godotenv.Load("../.env.test") // From services/ directory
	_ = godotenv.Load(".env.test")    // From root directory
	_ = godotenv.Load()               // Default .env file

	databaseURL := os.Getenv("DB_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DB_URL is not set")
	}

	databaseSchema := os.Getenv("DB_SCHEMA")
	if databaseSchema == "" {
		return nil, fmt.Errorf("DB_SCHEMA is not set")
	}

	return &config.AppConfig{
		DatabaseURL:    databaseURL,
		DatabaseSchema: databaseSchema,
	}, nil
}

// NewTestCryptoBox creates a cryptobox with a random throwaway key
func NewTestCryptoBox(t *testing.T) *cryptobox.CryptoBox {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err, "Failed to generate test encryption key")

	box, err := cryptobox.New(key)
	require.NoError(t, err, "Failed to create test cryptobox")
	return box
}

// NewTestTenantParams builds store params for a unique throwaway tenant
func NewTestTenantParams() services.StoreTenantCredentialParams {
	suffix := uuid.New().String()
	return services.StoreTenantCredentialParams{
		AppID:         "test-app-" + suffix,
		PrivateKey:    "test-private-key-" + suffix,
		WebhookSecret: "test-webhook-secret-" + suffix,
		OwnerLogin:    "test-owner",
		OwnerType:     "Organization",
		OwnerID:       42,
		Permissions:   models.PermissionMap{"issues": "write", "contents": "read"},
		Events:        models.EventList{"issues", "installation"},
	}
}

// NewTestInstallationToken returns a token fresh for roughly an hour
func NewTestInstallationToken() *models.InstallationToken {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.InstallationToken{
		Token:     "ghs_test_" + uuid.New().String(),
		ExpiresAt: now.Add(time.Hour),
		IssuedAt:  now,
	}
}

// CreateTestTenant stores a throwaway tenant credential and returns it
func CreateTestTenant(
	t *testing.T,
	ctx context.Context,
	credentialsService services.CredentialsService,
) (*models.TenantCredential, services.StoreTenantCredentialParams) {
	params := NewTestTenantParams()
	credential, err := credentialsService.StoreTenantCredential(ctx, params)
	require.NoError(t, err, "Failed to create test tenant credential")
	return credential, params
}
