package credentials

import (
	"context"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"issuebroker/models"
	"issuebroker/services"
)

// MockCredentialsService is a mock implementation of the CredentialsService interface
type MockCredentialsService struct {
	mock.Mock
}

func (m *MockCredentialsService) StoreTenantCredential(
	ctx context.Context,
	params services.StoreTenantCredentialParams,
) (*models.TenantCredential, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TenantCredential), args.Error(1)
}

func (m *MockCredentialsService) GetTenantCredential(
	ctx context.Context,
	appID string,
) (mo.Option[*models.TenantCredential], error) {
	args := m.Called(ctx, appID)
	return args.Get(0).(mo.Option[*models.TenantCredential]), args.Error(1)
}

func (m *MockCredentialsService) ListTenantCredentials(ctx context.Context) ([]models.TenantCredential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TenantCredential), args.Error(1)
}

func (m *MockCredentialsService) GetDecryptedSecrets(
	ctx context.Context,
	appID string,
) (mo.Option[*models.TenantSecrets], error) {
	args := m.Called(ctx, appID)
	return args.Get(0).(mo.Option[*models.TenantSecrets]), args.Error(1)
}

func (m *MockCredentialsService) UpdateInstallation(
	ctx context.Context,
	appID, installationID string,
	repositories []models.Repository,
) error {
	args := m.Called(ctx, appID, installationID, repositories)
	return args.Error(0)
}

func (m *MockCredentialsService) ClearInstallation(ctx context.Context, appID string) error {
	args := m.Called(ctx, appID)
	return args.Error(0)
}

func (m *MockCredentialsService) AddRepository(ctx context.Context, appID string, repo models.Repository) error {
	args := m.Called(ctx, appID, repo)
	return args.Error(0)
}

func (m *MockCredentialsService) RemoveRepository(ctx context.Context, appID string, repoID int64) error {
	args := m.Called(ctx, appID, repoID)
	return args.Error(0)
}

func (m *MockCredentialsService) RecordWebhookDelivery(ctx context.Context, appID string) error {
	args := m.Called(ctx, appID)
	return args.Error(0)
}

func (m *MockCredentialsService) UpdateCachedToken(
	ctx context.Context,
	appID string,
	token *models.InstallationToken,
) error {
	args := m.Called(ctx, appID, token)
	return args.Error(0)
}

func (m *MockCredentialsService) ClearCachedToken(ctx context.Context, appID string) error {
	args := m.Called(ctx, appID)
	return args.Error(0)
}

func (m *MockCredentialsService) ClearExpiredCachedTokens(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCredentialsService) StoreDeploymentSecret(
	ctx context.Context,
	apiKey string,
) (*models.DeploymentSecret, error) {
	args := m.Called(ctx, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DeploymentSecret), args.Error(1)
}

func (m *MockCredentialsService) GetDecryptedDeploymentSecret(ctx context.Context) (mo.Option[string], error) {
	args := m.Called(ctx)
	return args.Get(0).(mo.Option[string]), args.Error(1)
}
