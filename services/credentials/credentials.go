package credentials

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/samber/mo"

	"issuebroker/clients"
	"issuebroker/cryptobox"
	"issuebroker/db"
	"issuebroker/models"
	"issuebroker/services"
)

// CredentialsService is the vault owning all persisted credential state.
// Secrets cross its boundary in plaintext but are stored encrypted; crypto
// and storage failures never escape as panics - callers see Options and
// structured errors.
//
// Every operation addressed to the same partition key runs strictly
// sequentially: a per-partition mutex wraps each read-modify-write, and the
// write itself commits in a transaction before the next operation on that
// partition begins. Operations on different partitions run in parallel.
type CredentialsService struct {
	credentialsRepo *db.PostgresTenantCredentialsRepository
	secretsRepo     *db.PostgresDeploymentSecretsRepository
	txManager       services.TransactionManager
	box             *cryptobox.CryptoBox
	anthropicClient clients.AnthropicClient

	mu         sync.Mutex
	partitions map[string]*sync.Mutex
}

func NewCredentialsService(
	credentialsRepo *db.PostgresTenantCredentialsRepository,
	secretsRepo *db.PostgresDeploymentSecretsRepository,
	txManager services.TransactionManager,
	box *cryptobox.CryptoBox,
	anthropicClient clients.AnthropicClient,
) *CredentialsService {
	return &CredentialsService{
		credentialsRepo: credentialsRepo,
		secretsRepo:     secretsRepo,
		txManager:       txManager,
		box:             box,
		anthropicClient: anthropicClient,
		partitions:      make(map[string]*sync.Mutex),
	}
}

// partitionLock returns the mutex serializing one partition's operations.
func (s *CredentialsService) partitionLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.partitions[key]
	if !ok {
		lock = &sync.Mutex{}
		s.partitions[key] = lock
	}
	return lock
}

func (s *CredentialsService) StoreTenantCredential(
	ctx context.Context,
	params services.StoreTenantCredentialParams,
) (*models.TenantCredential, error) {
	log.Printf("📋 Starting to store tenant credential for app: %s", params.AppID)

	if params.AppID == "" {
		return nil, fmt.Errorf("app ID cannot be empty")
	}
	if params.PrivateKey == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}
	if params.WebhookSecret == "" {
		return nil, fmt.Errorf("webhook secret cannot be empty")
	}

	encryptedPrivateKey, err := s.box.Encrypt(params.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}
	encryptedWebhookSecret, err := s.box.Encrypt(params.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt webhook secret: %w", err)
	}

	lock := s.partitionLock(params.AppID)
	lock.Lock()
	defer lock.Unlock()

	credential := &models.TenantCredential{
		AppID:                  params.AppID,
		EncryptedPrivateKey:    encryptedPrivateKey,
		EncryptedWebhookSecret: encryptedWebhookSecret,
		OwnerLogin:             params.OwnerLogin,
		OwnerType:              params.OwnerType,
		OwnerID:                params.OwnerID,
		Permissions:            params.Permissions,
		Events:                 params.Events,
		Repositories:           params.Repositories,
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		// Re-setup keeps installation state and delivery counters from the
		// previous registration of the same app
		maybeExisting, err := s.credentialsRepo.GetTenantCredential(ctx, params.AppID)
		if err != nil {
			return err
		}
		if existing, ok := maybeExisting.Get(); ok {
			credential.InstallationID = existing.InstallationID
			credential.WebhookCount = existing.WebhookCount
			credential.LastWebhookAt = existing.LastWebhookAt
			if len(credential.Repositories) == 0 {
				credential.Repositories = existing.Repositories
			}
		}
		return s.credentialsRepo.UpsertTenantCredential(ctx, credential)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store tenant credential: %w", err)
	}

	log.Printf("📋 Completed successfully - stored credential for app: %s (owner: %s)", params.AppID, params.OwnerLogin)
	return credential, nil
}

func (s *CredentialsService) GetTenantCredential(
	ctx context.Context,
	appID string,
) (mo.Option[*models.TenantCredential], error) {
	if appID == "" {
		return mo.None[*models.TenantCredential](), fmt.Errorf("app ID cannot be empty")
	}
	return s.credentialsRepo.GetTenantCredential(ctx, appID)
}

func (s *CredentialsService) ListTenantCredentials(ctx context.Context) ([]models.TenantCredential, error) {
	return s.credentialsRepo.ListTenantCredentials(ctx)
}

// GetDecryptedSecrets returns the tenant's plaintext private key and
// webhook secret. A missing credential and an undecryptable one both
// surface as None - but decryption failure is logged loudly because it
// means tampered or corrupt ciphertext, not mere absence.
func (s *CredentialsService) GetDecryptedSecrets(
	ctx context.Context,
	appID string,
) (mo.Option[*models.TenantSecrets], error) {
	if appID == "" {
		return mo.None[*models.TenantSecrets](), fmt.Errorf("app ID cannot be empty")
	}

	maybeCredential, err := s.credentialsRepo.GetTenantCredential(ctx, appID)
	if err != nil {
		return mo.None[*models.TenantSecrets](), fmt.Errorf("failed to get tenant credential: %w", err)
	}
	credential, ok := maybeCredential.Get()
	if !ok {
		return mo.None[*models.TenantSecrets](), nil
	}

	privateKey, err := s.box.Decrypt(credential.EncryptedPrivateKey)
	if err != nil {
		s.logDecryptFailure(appID, "private key", err)
		return mo.None[*models.TenantSecrets](), nil
	}
	webhookSecret, err := s.box.Decrypt(credential.EncryptedWebhookSecret)
	if err != nil {
		s.logDecryptFailure(appID, "webhook secret", err)
		return mo.None[*models.TenantSecrets](), nil
	}

	return mo.Some(&models.TenantSecrets{
		PrivateKey:    privateKey,
		WebhookSecret: webhookSecret,
	}), nil
}

func (s *CredentialsService) logDecryptFailure(appID, what string, err error) {
	var decErr *cryptobox.DecryptionError
	if errors.As(err, &decErr) {
		log.Printf("❌ Stored %s for app %s cannot be decrypted (%s) - possible tampering or key rotation gone wrong", what, appID, decErr.Reason)
		return
	}
	log.Printf("❌ Failed to decrypt %s for app %s: %v", what, appID, err)
}

// UpdateInstallation merges the installation id and repository list into
// an existing credential. No-op if the tenant has no credential yet.
func (s *CredentialsService) UpdateInstallation(
	ctx context.Context,
	appID, installationID string,
	repositories []models.Repository,
) error {
	log.Printf("📋 Starting to update installation for app: %s", appID)

	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}

	lock := s.partitionLock(appID)
	lock.Lock()
	defer lock.Unlock()

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		maybeCredential, err := s.credentialsRepo.GetTenantCredential(ctx, appID)
		if err != nil {
			return err
		}
		credential, ok := maybeCredential.Get()
		if !ok {
			log.Printf("⚠️ No credential for app %s - skipping installation update", appID)
			return nil
		}

		credential.InstallationID = installationID
		for _, repo := range repositories {
			credential.Repositories, _ = credential.Repositories.WithRepository(repo)
		}
		return s.credentialsRepo.UpsertTenantCredential(ctx, credential)
	})
	if err != nil {
		return fmt.Errorf("failed to update installation: %w", err)
	}

	log.Printf("📋 Completed successfully - updated installation for app: %s", appID)
	return nil
}

// ClearInstallation removes the installation binding and repository list,
// and drops any cached token issued for that installation. The credential
// row itself survives an uninstall.
func (s *CredentialsService) ClearInstallation(ctx context.Context, appID string) error {
	log.Printf("📋 Starting to clear installation for app: %s", appID)

	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}

	lock := s.partitionLock(appID)
	lock.Lock()
	defer lock.Unlock()

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		maybeCredential, err := s.credentialsRepo.GetTenantCredential(ctx, appID)
		if err != nil {
			return err
		}
		credential, ok := maybeCredential.Get()
		if !ok {
			return nil
		}

		credential.InstallationID = ""
		credential.Repositories = models.RepositoryList{}
		credential.CachedToken = ""
		credential.CachedTokenExpiresAt = nil
		credential.CachedTokenIssuedAt = nil
		return s.credentialsRepo.UpsertTenantCredential(ctx, credential)
	})
	if err != nil {
		return fmt.Errorf("failed to clear installation: %w", err)
	}

	log.Printf("📋 Completed successfully - cleared installation for app: %s", appID)
	return nil
}

func (s *CredentialsService) AddRepository(ctx context.Context, appID string, repo models.Repository) error {
	log.Printf("📋 Starting to add repository %d to app: %s", repo.ID, appID)

	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}

	lock := s.partitionLock(appID)
	lock.Lock()
	defer lock.Unlock()

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		maybeCredential, err := s.credentialsRepo.GetTenantCredential(ctx, appID)
		if err != nil {
			return err
		}
		credential, ok := maybeCredential.Get()
		if !ok {
			log.Printf("⚠️ No credential for app %s - skipping repository add", appID)
			return nil
		}

		repositories, changed := credential.Repositories.WithRepository(repo)
		if !changed {
			log.Printf("📋 Repository %d already present for app %s", repo.ID, appID)
			return nil
		}
		credential.Repositories = repositories
		return s.credentialsRepo.UpsertTenantCredential(ctx, credential)
	})
	if err != nil {
		return fmt.Errorf("failed to add repository: %w", err)
	}

	log.Printf("📋 Completed successfully - added repository %d to app: %s", repo.ID, appID)
	return nil
}

func (s *CredentialsService) RemoveRepository(ctx context.Context, appID string, repoID int64) error {
	log.Printf("📋 Starting to remove repository %d from app: %s", repoID, appID)

	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}

	lock := s.partitionLock(appID)
	lock.Lock()
	defer lock.Unlock()

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		maybeCredential, err := s.credentialsRepo.GetTenantCredential(ctx, appID)
		if err != nil {
			return err
		}
		credential, ok := maybeCredential.Get()
		if !ok {
			return nil
		}

		repositories, changed := credential.Repositories.WithoutRepository(repoID)
		if !changed {
			return nil
		}
		credential.Repositories = repositories
		return s.credentialsRepo.UpsertTenantCredential(ctx, credential)
	})
	if err != nil {
		return fmt.Errorf("failed to remove repository: %w", err)
	}

	log.Printf("📋 Completed successfully - removed repository %d from app: %s", repoID, appID)
	return nil
}

func (s *CredentialsService) RecordWebhookDelivery(ctx context.Context, appID string) error {
	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}

	lock := s.partitionLock(appID)
	lock.Lock()
	defer lock.Unlock()

	recorded, err := s.credentialsRepo.RecordWebhookDelivery(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	if !recorded {
		log.Printf("⚠️ Webhook delivery for app %s not recorded - no credential row", appID)
	}
	return nil
}

func (s *CredentialsService) UpdateCachedToken(
	ctx context.Context,
	appID string,
	token *models.InstallationToken,
) error {
	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}
	if token == nil || token.Token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	lock := s.partitionLock(appID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.credentialsRepo.UpdateCachedToken(ctx, appID, token); err != nil {
		return fmt.Errorf("failed to update cached token: %w", err)
	}
	return nil
}

func (s *CredentialsService) ClearCachedToken(ctx context.Context, appID string) error {
	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}

	lock := s.partitionLock(appID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.credentialsRepo.ClearCachedToken(ctx, appID); err != nil {
		return fmt.Errorf("failed to clear cached token: %w", err)
	}
	return nil
}

// ClearExpiredCachedTokens purges stale cached tokens across all tenants.
func (s *CredentialsService) ClearExpiredCachedTokens(ctx context.Context) (int64, error) {
	purged, err := s.credentialsRepo.ClearExpiredCachedTokens(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired cached tokens: %w", err)
	}
	if purged > 0 {
		log.Printf("🧹 Purged %d expired cached installation tokens", purged)
	}
	return purged, nil
}

// StoreDeploymentSecret validates the Anthropic API key against the API,
// encrypts it, and writes the singleton deployment secret partition.
func (s *CredentialsService) StoreDeploymentSecret(
	ctx context.Context,
	apiKey string,
) (*models.DeploymentSecret, error) {
	log.Printf("📋 Starting to store deployment secret (key length: %d)", len(apiKey))

	if apiKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if err := s.anthropicClient.ValidateAPIKey(ctx, apiKey); err != nil {
		return nil, fmt.Errorf("refusing to store deployment secret: %w", err)
	}

	encryptedAPIKey, err := s.box.Encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt API key: %w", err)
	}

	lock := s.partitionLock(models.DeploymentKey)
	lock.Lock()
	defer lock.Unlock()

	secret, err := s.secretsRepo.UpsertDeploymentSecret(ctx, models.DeploymentKey, encryptedAPIKey, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to store deployment secret: %w", err)
	}

	log.Printf("📋 Completed successfully - stored deployment secret")
	return secret, nil
}

func (s *CredentialsService) GetDecryptedDeploymentSecret(ctx context.Context) (mo.Option[string], error) {
	maybeSecret, err := s.secretsRepo.GetDeploymentSecret(ctx, models.DeploymentKey)
	if err != nil {
		return mo.None[string](), fmt.Errorf("failed to get deployment secret: %w", err)
	}
	secret, ok := maybeSecret.Get()
	if !ok {
		return mo.None[string](), nil
	}

	apiKey, err := s.box.Decrypt(secret.EncryptedAPIKey)
	if err != nil {
		s.logDecryptFailure(models.DeploymentKey, "deployment API key", err)
		return mo.None[string](), nil
	}

	return mo.Some(apiKey), nil
}
