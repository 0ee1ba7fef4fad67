package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	agentclient "issuebroker/clients/agent"
	githubclient "issuebroker/clients/github"
	"issuebroker/models"
	"issuebroker/services/credentials"
	"issuebroker/services/dispatch"
	"issuebroker/services/tokens"
	"issuebroker/usecases/webhooks"
)

type webhookHandlerFixture struct {
	handler   *GitHubWebhooksHandler
	mockCreds *credentials.MockCredentialsService
	mockToken *tokens.MockTokensService
	mockAgent *agentclient.MockAgentClient
}

func newWebhookHandlerFixture() *webhookHandlerFixture {
	mockCreds := &credentials.MockCredentialsService{}
	mockToken := &tokens.MockTokensService{}
	mockAgent := &agentclient.MockAgentClient{}

	useCase := webhooks.NewWebhooksUseCase(
		mockCreds,
		mockToken,
		dispatch.NewDispatchService(),
		mockAgent,
		&githubclient.MockGitHubClient{},
		time.Second,
	)

	return &webhookHandlerFixture{
		handler:   NewGitHubWebhooksHandler(mockCreds, useCase),
		mockCreds: mockCreds,
		mockToken: mockToken,
		mockAgent: mockAgent,
	}
}

func postWebhook(f *webhookHandlerFixture, event, targetAppID, signature, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/github/webhooks", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-0001")
	if targetAppID != "" {
		req.Header.Set("X-GitHub-Hook-Installation-Target-ID", targetAppID)
	}
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	recorder := httptest.NewRecorder()
	f.handler.HandleGitHubWebhook(recorder, req)
	return recorder
}

func TestHandleGitHubWebhookPing(t *testing.T) {
	f := newWebhookHandlerFixture()

	// Ping is acknowledged without tenant resolution or signature checks
	recorder := postWebhook(f, "ping", "", "", `{"zen":"Keep it logically awesome."}`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	f.mockCreds.AssertNotCalled(t, "GetDecryptedSecrets")
}

func TestHandleGitHubWebhookMissingEventHeader(t *testing.T) {
	f := newWebhookHandlerFixture()

	req := httptest.NewRequest("POST", "/github/webhooks", strings.NewReader(`{}`))
	recorder := httptest.NewRecorder()
	f.handler.HandleGitHubWebhook(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleGitHubWebhookUnresolvableTenant(t *testing.T) {
	f := newWebhookHandlerFixture()

	// No installation in the payload and no target header
	recorder := postWebhook(f, "issues", "", "irrelevant", `{"action":"opened"}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "cannot determine tenant")
}

func TestHandleGitHubWebhookUnknownTenant(t *testing.T) {
	f := newWebhookHandlerFixture()

	f.mockCreds.On("GetDecryptedSecrets", mock.Anything, "12345").
		Return(mo.None[*models.TenantSecrets](), nil)

	body := `{"action":"opened"}`
	recorder := postWebhook(f, "issues", "12345", signBody("s3cr3t", body), body)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandleGitHubWebhookBadSignature(t *testing.T) {
	f := newWebhookHandlerFixture()

	secrets := &models.TenantSecrets{PrivateKey: "pem", WebhookSecret: "s3cr3t"}
	f.mockCreds.On("GetDecryptedSecrets", mock.Anything, "12345").
		Return(mo.Some(secrets), nil)

	body := `{"action":"opened"}`
	recorder := postWebhook(f, "issues", "12345", signBody("wrong_secret", body), body)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	f.mockCreds.AssertNotCalled(t, "RecordWebhookDelivery")
}

func TestHandleGitHubWebhookMissingSignature(t *testing.T) {
	f := newWebhookHandlerFixture()

	secrets := &models.TenantSecrets{PrivateKey: "pem", WebhookSecret: "s3cr3t"}
	f.mockCreds.On("GetDecryptedSecrets", mock.Anything, "12345").
		Return(mo.Some(secrets), nil)

	recorder := postWebhook(f, "issues", "12345", "", `{"action":"opened"}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleGitHubWebhookUnhandledEventType(t *testing.T) {
	f := newWebhookHandlerFixture()

	secrets := &models.TenantSecrets{PrivateKey: "pem", WebhookSecret: "s3cr3t"}
	f.mockCreds.On("GetDecryptedSecrets", mock.Anything, "12345").
		Return(mo.Some(secrets), nil)
	f.mockCreds.On("RecordWebhookDelivery", mock.Anything, "12345").Return(nil)

	body := `{"action":"created"}`
	recorder := postWebhook(f, "star", "12345", signBody("s3cr3t", body), body)

	// Unknown events are acknowledged so GitHub does not retry them
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestHandleGitHubWebhookTenantFromPayload(t *testing.T) {
	f := newWebhookHandlerFixture()

	// The payload installation app_id wins over the target header
	secrets := &models.TenantSecrets{PrivateKey: "pem", WebhookSecret: "s3cr3t"}
	f.mockCreds.On("GetDecryptedSecrets", mock.Anything, "12345").
		Return(mo.Some(secrets), nil)
	f.mockCreds.On("RecordWebhookDelivery", mock.Anything, "12345").Return(nil)
	f.mockCreds.On("UpdateInstallation", mock.Anything, "12345", "987", []models.Repository{}).
		Return(nil)

	body := `{"action":"created","installation":{"id":987,"app_id":12345}}`
	recorder := postWebhook(f, "installation", "99999", signBody("s3cr3t", body), body)

	assert.Equal(t, http.StatusOK, recorder.Code)
	f.mockCreds.AssertExpectations(t)
}

func TestHandleGitHubWebhookIssuesOpened(t *testing.T) {
	f := newWebhookHandlerFixture()

	secrets := &models.TenantSecrets{PrivateKey: "pem", WebhookSecret: "s3cr3t"}
	f.mockCreds.On("GetDecryptedSecrets", mock.Anything, "12345").
		Return(mo.Some(secrets), nil)
	f.mockCreds.On("RecordWebhookDelivery", mock.Anything, "12345").Return(nil)

	token := &models.InstallationToken{Token: "ghs_live", ExpiresAt: time.Now().Add(time.Hour)}
	f.mockToken.On("GetInstallationToken", mock.Anything, "12345").Return(mo.Some(token), nil)
	f.mockCreds.On("GetDecryptedDeploymentSecret", mock.Anything).Return(mo.Some("sk-ant-key"), nil)
	f.mockAgent.On("SolveIssue", mock.Anything, mock.Anything).
		Return(&models.AgentResponse{Success: true, Message: "patch opened"}, nil)

	body := `{
		"action": "opened",
		"issue": {"id": 111, "number": 7, "title": "Crash on startup", "body": "It crashes"},
		"repository": {"id": 42, "name": "api", "full_name": "acme/api", "html_url": "https://github.com/acme/api"}
	}`
	recorder := postWebhook(f, "issues", "12345", signBody("s3cr3t", body), body)

	require.Equal(t, http.StatusOK, recorder.Code)

	var result models.DispatchResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "patch opened", result.Message)
	f.mockAgent.AssertExpectations(t)
}

func TestHandleGitHubWebhookIssuesDispatchFailure(t *testing.T) {
	f := newWebhookHandlerFixture()

	secrets := &models.TenantSecrets{PrivateKey: "pem", WebhookSecret: "s3cr3t"}
	f.mockCreds.On("GetDecryptedSecrets", mock.Anything, "12345").
		Return(mo.Some(secrets), nil)
	f.mockCreds.On("RecordWebhookDelivery", mock.Anything, "12345").Return(nil)

	token := &models.InstallationToken{Token: "ghs_live", ExpiresAt: time.Now().Add(time.Hour)}
	f.mockToken.On("GetInstallationToken", mock.Anything, "12345").Return(mo.Some(token), nil)
	f.mockCreds.On("GetDecryptedDeploymentSecret", mock.Anything).Return(mo.Some("sk-ant-key"), nil)
	f.mockAgent.On("SolveIssue", mock.Anything, mock.Anything).
		Return(&models.AgentResponse{Success: false, Message: "no fix found", Error: "unsolvable"}, nil)

	body := `{
		"action": "opened",
		"issue": {"id": 111, "number": 7, "title": "Crash on startup"},
		"repository": {"id": 42, "full_name": "acme/api"}
	}`
	recorder := postWebhook(f, "issues", "12345", signBody("s3cr3t", body), body)

	// Structured failure surfaces as a 500 with the dispatch result body
	require.Equal(t, http.StatusInternalServerError, recorder.Code)

	var result models.DispatchResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, "unsolvable", result.Error)
}
