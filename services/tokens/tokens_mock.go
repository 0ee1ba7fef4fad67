package tokens

import (
	"context"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"issuebroker/models"
)

// MockTokensService is a mock implementation of the TokensService interface
type MockTokensService struct {
	mock.Mock
}

func (m *MockTokensService) GetInstallationToken(
	ctx context.Context,
	appID string,
) (mo.Option[*models.InstallationToken], error) {
	args := m.Called(ctx, appID)
	return args.Get(0).(mo.Option[*models.InstallationToken]), args.Error(1)
}
