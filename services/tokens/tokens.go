package tokens

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/samber/mo"
	"golang.org/x/sync/singleflight"

	"issuebroker/clients"
	"issuebroker/models"
	"issuebroker/services"
)

// tokenFreshnessWindow is the minimum remaining lifetime for a cached
// installation token to be served without a refresh.
const tokenFreshnessWindow = 5 * time.Minute

// TokensService derives short-lived installation access tokens from a
// tenant's private key, caching them in the tenant's credential partition.
// Refreshes for one tenant are collapsed through a single-flight group so
// concurrent cache misses trigger exactly one outbound exchange.
type TokensService struct {
	credentialsService services.CredentialsService
	githubClient       clients.GitHubClient
	refreshGroup       singleflight.Group
}

func NewTokensService(
	credentialsService services.CredentialsService,
	githubClient clients.GitHubClient,
) *TokensService {
	return &TokensService{
		credentialsService: credentialsService,
		githubClient:       githubClient,
	}
}

// GetInstallationToken returns a usable installation token for the tenant,
// or None when the tenant is unknown, its secrets are unavailable, or the
// exchange is rejected. The caller decides whether None fails the request.
func (s *TokensService) GetInstallationToken(
	ctx context.Context,
	appID string,
) (mo.Option[*models.InstallationToken], error) {
	if appID == "" {
		return mo.None[*models.InstallationToken](), fmt.Errorf("app ID cannot be empty")
	}

	maybeCredential, err := s.credentialsService.GetTenantCredential(ctx, appID)
	if err != nil {
		return mo.None[*models.InstallationToken](), fmt.Errorf("failed to get tenant credential: %w", err)
	}
	credential, ok := maybeCredential.Get()
	if !ok {
		return mo.None[*models.InstallationToken](), nil
	}

	if cached := credential.CachedInstallationToken(); cached != nil && cached.FreshFor(tokenFreshnessWindow) {
		log.Printf("🔑 Serving cached installation token for app %s", appID)
		return mo.Some(cached), nil
	}

	result, err, shared := s.refreshGroup.Do(appID, func() (any, error) {
		return s.refreshToken(ctx, appID)
	})
	if err != nil {
		return mo.None[*models.InstallationToken](), err
	}
	if shared {
		log.Printf("🔑 Token refresh for app %s shared with a concurrent request", appID)
	}

	token, _ := result.(*models.InstallationToken)
	if token == nil {
		return mo.None[*models.InstallationToken](), nil
	}
	return mo.Some(token), nil
}

// refreshToken performs one outbound token exchange for the tenant. A nil
// token with nil error means "no token available" - unknown tenant,
// undecryptable secrets, missing installation, or a rejected exchange.
func (s *TokensService) refreshToken(ctx context.Context, appID string) (*models.InstallationToken, error) {
	// Re-read under the flight: a request that lost the race may find the
	// winner's token already cached
	maybeCredential, err := s.credentialsService.GetTenantCredential(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant credential: %w", err)
	}
	credential, ok := maybeCredential.Get()
	if !ok {
		return nil, nil
	}

	cached := credential.CachedInstallationToken()
	if cached != nil && cached.FreshFor(tokenFreshnessWindow) {
		return cached, nil
	}

	maybeSecrets, err := s.credentialsService.GetDecryptedSecrets(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to get decrypted secrets: %w", err)
	}
	secrets, ok := maybeSecrets.Get()
	if !ok {
		log.Printf("⚠️ Secrets unavailable for app %s - cannot issue installation token", appID)
		return nil, nil
	}

	if credential.InstallationID == "" {
		log.Printf("⚠️ App %s has no installation - cannot issue installation token", appID)
		return nil, nil
	}

	log.Printf("🔑 Exchanging app assertion for installation token (app: %s, installation: %s)",
		appID, credential.InstallationID)

	token, err := s.githubClient.CreateInstallationToken(
		ctx, appID, []byte(secrets.PrivateKey), credential.InstallationID)
	if err != nil {
		// No retry here - the caller may retry the outer request
		log.Printf("❌ Token exchange failed for app %s: %v", appID, err)
		return nil, nil
	}

	// Expired tokens are purged before the fresh one is cached
	if cached != nil && !cached.FreshFor(0) {
		if err := s.credentialsService.ClearCachedToken(ctx, appID); err != nil {
			return nil, fmt.Errorf("failed to purge stale token: %w", err)
		}
	}

	if err := s.credentialsService.UpdateCachedToken(ctx, appID, token); err != nil {
		return nil, fmt.Errorf("failed to cache installation token: %w", err)
	}

	log.Printf("🔑 Cached new installation token for app %s (expires: %s)",
		appID, token.ExpiresAt.Format("15:04:05"))
	return token, nil
}
