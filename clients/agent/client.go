package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"issuebroker/clients"
	"issuebroker/models"
)

// Routes exposed by the issue-solving agent.
const (
	SolveRoute  = "/api/v1/solve"
	NotifyRoute = "/api/v1/notify"
)

// HTTPAgentClient implements the clients.AgentClient interface by POSTing
// JSON to the agent's HTTP surface. The client carries no request timeout
// of its own - the dispatch gateway owns the wall-clock bound.
type HTTPAgentClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewAgentClient creates a new agent client targeting baseURL
func NewAgentClient(baseURL string) clients.AgentClient {
	return &HTTPAgentClient{
		httpClient: &http.Client{},
		baseURL:    baseURL,
	}
}

// SolveIssue asks the agent to process a newly opened issue end to end.
func (c *HTTPAgentClient) SolveIssue(
	ctx context.Context,
	req *models.AgentSolveRequest,
) (*models.AgentResponse, error) {
	return c.post(ctx, SolveRoute, req)
}

// NotifyIssueEvent sends a lightweight notification for issue actions that
// do not trigger full processing.
func (c *HTTPAgentClient) NotifyIssueEvent(
	ctx context.Context,
	req *models.AgentNotifyRequest,
) (*models.AgentResponse, error) {
	return c.post(ctx, NotifyRoute, req)
}

func (c *HTTPAgentClient) post(ctx context.Context, route string, payload any) (*models.AgentResponse, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+route, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("agent returned status %d after %v: %s",
			resp.StatusCode, time.Since(start).Round(time.Millisecond), string(body))
	}

	var agentResp models.AgentResponse
	if err := json.NewDecoder(resp.Body).Decode(&agentResp); err != nil {
		return nil, fmt.Errorf("failed to decode agent response: %w", err)
	}

	return &agentResp, nil
}
