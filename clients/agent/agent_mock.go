package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"issuebroker/models"
)

// MockAgentClient is a mock implementation of the clients.AgentClient interface
type MockAgentClient struct {
	mock.Mock
}

func (m *MockAgentClient) SolveIssue(
	ctx context.Context,
	req *models.AgentSolveRequest,
) (*models.AgentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AgentResponse), args.Error(1)
}

func (m *MockAgentClient) NotifyIssueEvent(
	ctx context.Context,
	req *models.AgentNotifyRequest,
) (*models.AgentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AgentResponse), args.Error(1)
}
