package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"issuebroker/clients"
	"issuebroker/models"
)

const defaultAPIBaseURL = "https://api.github.com"

// GitHubClient implements the clients.GitHubClient interface
type GitHubClient struct {
	httpClient *http.Client
	apiBaseURL string
}

// Installation token response from the GitHub API
type installationTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewGitHubClient creates a new GitHub API client
func NewGitHubClient() clients.GitHubClient {
	return &GitHubClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiBaseURL: defaultAPIBaseURL,
	}
}

func newGitHubClientWithBaseURL(baseURL string) *GitHubClient {
	return &GitHubClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiBaseURL: baseURL,
	}
}

// CreateInstallationToken exchanges a signed app assertion for an
// installation access token via POST /app/installations/{id}/access_tokens.
// A non-success response is returned as an error without retrying - the
// caller decides whether to retry the outer request.
func (c *GitHubClient) CreateInstallationToken(
	ctx context.Context,
	appID string,
	privateKeyPEM []byte,
	installationID string,
) (*models.InstallationToken, error) {
	if installationID == "" {
		return nil, fmt.Errorf("installation ID cannot be empty")
	}

	assertion, err := signAppAssertion(appID, privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to build app assertion: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", c.apiBaseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	issuedAt := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange assertion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token exchange failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tokenResp installationTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	if tokenResp.Token == "" {
		return nil, fmt.Errorf("no token in response")
	}

	return &models.InstallationToken{
		Token:     tokenResp.Token,
		ExpiresAt: tokenResp.ExpiresAt,
		IssuedAt:  issuedAt,
	}, nil
}

// ListInstallationRepositories lists repositories accessible by a GitHub
// App installation. Used to sync a tenant's repository list outside the
// webhook flow.
func (c *GitHubClient) ListInstallationRepositories(
	ctx context.Context,
	appID string,
	privateKeyPEM []byte,
	installationID string,
) ([]models.Repository, error) {
	token, err := c.CreateInstallationToken(ctx, appID, privateKeyPEM, installationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation token: %w", err)
	}

	reposURL := c.apiBaseURL + "/installation/repositories?per_page=100"
	req, err := http.NewRequestWithContext(ctx, "GET", reposURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create repos request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token.Token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to list repositories: status %d, body: %s", resp.StatusCode, string(body))
	}

	var reposData struct {
		Repositories []models.Repository `json:"repositories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reposData); err != nil {
		return nil, fmt.Errorf("failed to decode repositories: %w", err)
	}

	return reposData.Repositories, nil
}
