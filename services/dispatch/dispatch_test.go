package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuebroker/models"
	"issuebroker/services"
)

func TestDispatchSuccess(t *testing.T) {
	service := NewDispatchService()

	result := service.Dispatch(context.Background(),
		services.DispatchOptions{Name: "solve-issue", Route: "/api/v1/solve", Timeout: time.Second},
		func(ctx context.Context) (*models.AgentResponse, error) {
			return &models.AgentResponse{Success: true, Message: "done"}, nil
		})

	assert.True(t, result.Success)
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, "done", result.Message)
	assert.Equal(t, "solve-issue", result.Name)
	assert.Equal(t, "/api/v1/solve", result.Route)
}

func TestDispatchDownstreamError(t *testing.T) {
	service := NewDispatchService()

	result := service.Dispatch(context.Background(),
		services.DispatchOptions{Name: "solve-issue", Route: "/api/v1/solve", Timeout: time.Second},
		func(ctx context.Context) (*models.AgentResponse, error) {
			return nil, fmt.Errorf("connection refused")
		})

	assert.False(t, result.Success)
	assert.Equal(t, 500, result.Status)
	assert.Equal(t, "dispatch_failure", result.Error)
	assert.Contains(t, result.Message, "connection refused")
}

func TestDispatchUnsuccessfulAgentResponse(t *testing.T) {
	service := NewDispatchService()

	result := service.Dispatch(context.Background(),
		services.DispatchOptions{Name: "solve-issue", Route: "/api/v1/solve", Timeout: time.Second},
		func(ctx context.Context) (*models.AgentResponse, error) {
			return &models.AgentResponse{Success: false, Message: "no fix found", Error: "unsolvable"}, nil
		})

	assert.False(t, result.Success)
	assert.Equal(t, 500, result.Status)
	assert.Equal(t, "unsolvable", result.Error)
}

func TestDispatchTimeout(t *testing.T) {
	service := NewDispatchService()
	timeout := 100 * time.Millisecond

	start := time.Now()
	result := service.Dispatch(context.Background(),
		services.DispatchOptions{Name: "solve-issue", Route: "/api/v1/solve", Timeout: timeout},
		func(ctx context.Context) (*models.AgentResponse, error) {
			time.Sleep(2 * time.Second)
			return &models.AgentResponse{Success: true}, nil
		})
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	assert.Equal(t, 500, result.Status)
	assert.Equal(t, "dispatch_timeout", result.Error)
	assert.Contains(t, result.Message, "solve-issue")

	// The structured failure arrives at roughly the timeout - not before
	// it, and without waiting for the abandoned call
	require.GreaterOrEqual(t, elapsed, timeout)
	require.Less(t, elapsed, time.Second)
}

func TestDispatchRecoversPanic(t *testing.T) {
	service := NewDispatchService()

	result := service.Dispatch(context.Background(),
		services.DispatchOptions{Name: "solve-issue", Route: "/api/v1/solve", Timeout: time.Second},
		func(ctx context.Context) (*models.AgentResponse, error) {
			panic("boom")
		})

	assert.False(t, result.Success)
	assert.Equal(t, 500, result.Status)
	assert.Equal(t, "dispatch_failure", result.Error)
	assert.Contains(t, result.Message, "boom")
}

func TestDispatchDefaultTimeout(t *testing.T) {
	service := NewDispatchService()

	// Zero timeout falls back to the default rather than timing out instantly
	result := service.Dispatch(context.Background(),
		services.DispatchOptions{Name: "solve-issue", Route: "/api/v1/solve"},
		func(ctx context.Context) (*models.AgentResponse, error) {
			return &models.AgentResponse{Success: true}, nil
		})

	assert.True(t, result.Success)
}
