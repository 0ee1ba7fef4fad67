package tokens

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	githubclient "issuebroker/clients/github"
	"issuebroker/models"
	"issuebroker/services/credentials"
)

// fakeCredentialsStore is a stateful stand-in for the vault: cached-token
// writes are visible to subsequent reads, which the single-flight test
// depends on.
type fakeCredentialsStore struct {
	credentials.MockCredentialsService

	mu         sync.Mutex
	credential *models.TenantCredential
	secrets    *models.TenantSecrets
}

func newFakeCredentialsStore(credential *models.TenantCredential, secrets *models.TenantSecrets) *fakeCredentialsStore {
	return &fakeCredentialsStore{credential: credential, secrets: secrets}
}

func (f *fakeCredentialsStore) GetTenantCredential(
	ctx context.Context,
	appID string,
) (mo.Option[*models.TenantCredential], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := *f.credential
	return mo.Some(&snapshot), nil
}

func (f *fakeCredentialsStore) GetDecryptedSecrets(
	ctx context.Context,
	appID string,
) (mo.Option[*models.TenantSecrets], error) {
	return mo.Some(f.secrets), nil
}

func (f *fakeCredentialsStore) UpdateCachedToken(
	ctx context.Context,
	appID string,
	token *models.InstallationToken,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credential.CachedToken = token.Token
	expiresAt := token.ExpiresAt
	issuedAt := token.IssuedAt
	f.credential.CachedTokenExpiresAt = &expiresAt
	f.credential.CachedTokenIssuedAt = &issuedAt
	return nil
}

func (f *fakeCredentialsStore) ClearCachedToken(ctx context.Context, appID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credential.CachedToken = ""
	f.credential.CachedTokenExpiresAt = nil
	f.credential.CachedTokenIssuedAt = nil
	return nil
}

func credentialWithToken(appID string, expiresAt *time.Time) *models.TenantCredential {
	cred := &models.TenantCredential{
		AppID:                  appID,
		EncryptedPrivateKey:    "blob1",
		EncryptedWebhookSecret: "blob2",
		InstallationID:         "987",
	}
	if expiresAt != nil {
		issuedAt := expiresAt.Add(-time.Hour)
		cred.CachedToken = "ghs_cached"
		cred.CachedTokenExpiresAt = expiresAt
		cred.CachedTokenIssuedAt = &issuedAt
	}
	return cred
}

func TestGetInstallationToken(t *testing.T) {
	ctx := context.Background()
	appID := "12345"
	secrets := &models.TenantSecrets{PrivateKey: "pem", WebhookSecret: "s3cr3t"}

	t.Run("fresh cached token served without network call", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockGitHub := &githubclient.MockGitHubClient{}

		expiresAt := time.Now().Add(10 * time.Minute)
		mockCreds.On("GetTenantCredential", ctx, appID).
			Return(mo.Some(credentialWithToken(appID, &expiresAt)), nil)

		service := NewTokensService(mockCreds, mockGitHub)
		maybeToken, err := service.GetInstallationToken(ctx, appID)

		require.NoError(t, err)
		require.True(t, maybeToken.IsPresent())
		assert.Equal(t, "ghs_cached", maybeToken.MustGet().Token)
		mockGitHub.AssertNotCalled(t, "CreateInstallationToken")
	})

	t.Run("near-expiry token triggers refresh", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockGitHub := &githubclient.MockGitHubClient{}

		expiresAt := time.Now().Add(2 * time.Minute)
		cred := credentialWithToken(appID, &expiresAt)
		mockCreds.On("GetTenantCredential", ctx, appID).Return(mo.Some(cred), nil)
		mockCreds.On("GetDecryptedSecrets", ctx, appID).Return(mo.Some(secrets), nil)

		fresh := &models.InstallationToken{
			Token:     "ghs_fresh",
			ExpiresAt: time.Now().Add(time.Hour),
			IssuedAt:  time.Now(),
		}
		mockGitHub.On("CreateInstallationToken", ctx, appID, []byte("pem"), "987").
			Return(fresh, nil)
		mockCreds.On("UpdateCachedToken", ctx, appID, fresh).Return(nil)

		service := NewTokensService(mockCreds, mockGitHub)
		maybeToken, err := service.GetInstallationToken(ctx, appID)

		require.NoError(t, err)
		require.True(t, maybeToken.IsPresent())
		assert.Equal(t, "ghs_fresh", maybeToken.MustGet().Token)
		// Not yet expired, so no purge before the overwrite
		mockCreds.AssertNotCalled(t, "ClearCachedToken")
		mockGitHub.AssertExpectations(t)
	})

	t.Run("expired token is purged before new one is cached", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockGitHub := &githubclient.MockGitHubClient{}

		expiresAt := time.Now().Add(-time.Minute)
		cred := credentialWithToken(appID, &expiresAt)
		mockCreds.On("GetTenantCredential", ctx, appID).Return(mo.Some(cred), nil)
		mockCreds.On("GetDecryptedSecrets", ctx, appID).Return(mo.Some(secrets), nil)

		fresh := &models.InstallationToken{
			Token:     "ghs_fresh",
			ExpiresAt: time.Now().Add(time.Hour),
			IssuedAt:  time.Now(),
		}
		mockGitHub.On("CreateInstallationToken", ctx, appID, []byte("pem"), "987").
			Return(fresh, nil)
		mockCreds.On("ClearCachedToken", ctx, appID).Return(nil)
		mockCreds.On("UpdateCachedToken", ctx, appID, fresh).Return(nil)

		service := NewTokensService(mockCreds, mockGitHub)
		maybeToken, err := service.GetInstallationToken(ctx, appID)

		require.NoError(t, err)
		require.True(t, maybeToken.IsPresent())
		mockCreds.AssertExpectations(t)
	})

	t.Run("unknown tenant yields no token", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockGitHub := &githubclient.MockGitHubClient{}

		mockCreds.On("GetTenantCredential", ctx, appID).
			Return(mo.None[*models.TenantCredential](), nil)

		service := NewTokensService(mockCreds, mockGitHub)
		maybeToken, err := service.GetInstallationToken(ctx, appID)

		require.NoError(t, err)
		assert.False(t, maybeToken.IsPresent())
	})

	t.Run("unavailable secrets yield no token", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockGitHub := &githubclient.MockGitHubClient{}

		mockCreds.On("GetTenantCredential", ctx, appID).
			Return(mo.Some(credentialWithToken(appID, nil)), nil)
		mockCreds.On("GetDecryptedSecrets", ctx, appID).
			Return(mo.None[*models.TenantSecrets](), nil)

		service := NewTokensService(mockCreds, mockGitHub)
		maybeToken, err := service.GetInstallationToken(ctx, appID)

		require.NoError(t, err)
		assert.False(t, maybeToken.IsPresent())
		mockGitHub.AssertNotCalled(t, "CreateInstallationToken")
	})

	t.Run("rejected exchange yields no token without error", func(t *testing.T) {
		mockCreds := &credentials.MockCredentialsService{}
		mockGitHub := &githubclient.MockGitHubClient{}

		mockCreds.On("GetTenantCredential", ctx, appID).
			Return(mo.Some(credentialWithToken(appID, nil)), nil)
		mockCreds.On("GetDecryptedSecrets", ctx, appID).Return(mo.Some(secrets), nil)
		mockGitHub.On("CreateInstallationToken", ctx, appID, []byte("pem"), "987").
			Return(nil, fmt.Errorf("status 401"))

		service := NewTokensService(mockCreds, mockGitHub)
		maybeToken, err := service.GetInstallationToken(ctx, appID)

		require.NoError(t, err)
		assert.False(t, maybeToken.IsPresent())
	})

	t.Run("empty app id", func(t *testing.T) {
		service := NewTokensService(&credentials.MockCredentialsService{}, &githubclient.MockGitHubClient{})
		_, err := service.GetInstallationToken(ctx, "")
		assert.Error(t, err)
	})
}

func TestGetInstallationTokenSingleFlight(t *testing.T) {
	ctx := context.Background()
	appID := "12345"
	secrets := &models.TenantSecrets{PrivateKey: "pem", WebhookSecret: "s3cr3t"}

	fakeCreds := newFakeCredentialsStore(credentialWithToken(appID, nil), secrets)
	mockGitHub := &githubclient.MockGitHubClient{}

	fresh := &models.InstallationToken{
		Token:     "ghs_fresh",
		ExpiresAt: time.Now().Add(time.Hour),
		IssuedAt:  time.Now(),
	}
	// Once() makes a second outbound exchange fail the test: after the
	// winning flight caches the token, every other request must reuse it
	mockGitHub.On("CreateInstallationToken", ctx, appID, []byte("pem"), "987").
		Return(fresh, nil).Once()

	service := NewTokensService(fakeCreds, mockGitHub)

	const concurrency = 8
	var wg sync.WaitGroup
	results := make([]string, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			maybeToken, err := service.GetInstallationToken(ctx, appID)
			require.NoError(t, err)
			require.True(t, maybeToken.IsPresent())
			results[i] = maybeToken.MustGet().Token
		}(i)
	}
	wg.Wait()

	for _, token := range results {
		assert.Equal(t, "ghs_fresh", token)
	}
	mockGitHub.AssertExpectations(t)
}
