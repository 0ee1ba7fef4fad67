package services

import (
	"context"
	"time"

	"github.com/samber/mo"

	"issuebroker/models"
)

// TransactionManager defines the interface for managing database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	BeginTransaction(ctx context.Context) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}

// StoreTenantCredentialParams carries the plaintext inputs for registering
// a tenant. The service encrypts the secrets before anything is persisted.
type StoreTenantCredentialParams struct {
	AppID         string
	PrivateKey    string
	WebhookSecret string
	OwnerLogin    string
	OwnerType     string
	OwnerID       int64
	Permissions   models.PermissionMap
	Events        models.EventList
	Repositories  models.RepositoryList
}

// CredentialsService owns all persisted credential state. Operations
// against one partition (tenant or deployment secret) are serialized.
type CredentialsService interface {
	StoreTenantCredential(ctx context.Context, params StoreTenantCredentialParams) (*models.TenantCredential, error)
	GetTenantCredential(ctx context.Context, appID string) (mo.Option[*models.TenantCredential], error)
	ListTenantCredentials(ctx context.Context) ([]models.TenantCredential, error)
	GetDecryptedSecrets(ctx context.Context, appID string) (mo.Option[*models.TenantSecrets], error)
	UpdateInstallation(ctx context.Context, appID, installationID string, repositories []models.Repository) error
	ClearInstallation(ctx context.Context, appID string) error
	AddRepository(ctx context.Context, appID string, repo models.Repository) error
	RemoveRepository(ctx context.Context, appID string, repoID int64) error
	RecordWebhookDelivery(ctx context.Context, appID string) error
	UpdateCachedToken(ctx context.Context, appID string, token *models.InstallationToken) error
	ClearCachedToken(ctx context.Context, appID string) error
	ClearExpiredCachedTokens(ctx context.Context) (int64, error)
	StoreDeploymentSecret(ctx context.Context, apiKey string) (*models.DeploymentSecret, error)
	GetDecryptedDeploymentSecret(ctx context.Context) (mo.Option[string], error)
}

// TokensService issues and caches installation access tokens per tenant.
type TokensService interface {
	GetInstallationToken(ctx context.Context, appID string) (mo.Option[*models.InstallationToken], error)
}

// DispatchOptions configures one gateway call to the processing unit.
type DispatchOptions struct {
	Name    string
	Route   string
	Timeout time.Duration
}

// DispatchService invokes the external agent with a bounded timeout and
// normalizes every failure into a structured result.
type DispatchService interface {
	Dispatch(
		ctx context.Context,
		opts DispatchOptions,
		call func(ctx context.Context) (*models.AgentResponse, error),
	) *models.DispatchResult
}
