package webhooks

import (
	"context"
	"fmt"
	"log"
	"time"

	"issuebroker/appctx"
	"issuebroker/clients"
	"issuebroker/clients/agent"
	"issuebroker/core"
	"issuebroker/models"
	"issuebroker/services"
	"issuebroker/utils"
)

// notifyTimeout bounds the lightweight notification dispatch. Full issue
// processing uses the configured solve timeout instead.
const notifyTimeout = 30 * time.Second

// WebhooksUseCase orchestrates verified webhook events: installation
// lifecycle updates against the vault, and issue dispatch to the agent.
type WebhooksUseCase struct {
	credentialsService services.CredentialsService
	tokensService      services.TokensService
	dispatchService    services.DispatchService
	agentClient        clients.AgentClient
	githubClient       clients.GitHubClient
	solveTimeout       time.Duration
}

func NewWebhooksUseCase(
	credentialsService services.CredentialsService,
	tokensService services.TokensService,
	dispatchService services.DispatchService,
	agentClient clients.AgentClient,
	githubClient clients.GitHubClient,
	solveTimeout time.Duration,
) *WebhooksUseCase {
	return &WebhooksUseCase{
		credentialsService: credentialsService,
		tokensService:      tokensService,
		dispatchService:    dispatchService,
		agentClient:        agentClient,
		githubClient:       githubClient,
		solveTimeout:       solveTimeout,
	}
}

// ProcessInstallationEvent handles installation created/deleted events.
func (u *WebhooksUseCase) ProcessInstallationEvent(
	ctx context.Context,
	appID string,
	event *models.WebhookEvent,
) error {
	log.Printf("📦 Processing installation event for app %s (action: %s)", appID, event.Action)

	switch event.Action {
	case "created":
		if event.Installation == nil {
			return fmt.Errorf("installation event carries no installation")
		}
		repositories := make([]models.Repository, 0, len(event.Repositories))
		for _, repo := range event.Repositories {
			repositories = append(repositories, repo.ToRepository())
		}
		installationID := fmt.Sprintf("%d", event.Installation.ID)
		if err := u.credentialsService.UpdateInstallation(ctx, appID, installationID, repositories); err != nil {
			return fmt.Errorf("failed to update installation: %w", err)
		}

	case "deleted":
		if err := u.credentialsService.ClearInstallation(ctx, appID); err != nil {
			return fmt.Errorf("failed to clear installation: %w", err)
		}

	default:
		log.Printf("📦 Ignoring installation action: %s", event.Action)
	}

	return nil
}

// ProcessInstallationRepositoriesEvent handles repositories added to or
// removed from an installation.
func (u *WebhooksUseCase) ProcessInstallationRepositoriesEvent(
	ctx context.Context,
	appID string,
	event *models.WebhookEvent,
) error {
	log.Printf("📦 Processing installation_repositories event for app %s (action: %s, +%d/-%d)",
		appID, event.Action, len(event.RepositoriesAdded), len(event.RepositoriesRemoved))

	for _, repo := range event.RepositoriesAdded {
		if err := u.credentialsService.AddRepository(ctx, appID, repo.ToRepository()); err != nil {
			return fmt.Errorf("failed to add repository %d: %w", repo.ID, err)
		}
	}
	for _, repo := range event.RepositoriesRemoved {
		if err := u.credentialsService.RemoveRepository(ctx, appID, repo.ID); err != nil {
			return fmt.Errorf("failed to remove repository %d: %w", repo.ID, err)
		}
	}

	return nil
}

// ProcessIssuesEvent routes issue events: "opened" triggers full agent
// processing with live credentials, every other action sends a
// lightweight notification.
func (u *WebhooksUseCase) ProcessIssuesEvent(
	ctx context.Context,
	appID string,
	event *models.WebhookEvent,
) (*models.DispatchResult, error) {
	if event.Issue == nil {
		return nil, fmt.Errorf("issues event carries no issue")
	}
	if event.Repository == nil {
		return nil, fmt.Errorf("issues event carries no repository")
	}

	deliveryID := ""
	if delivery, ok := appctx.GetDelivery(ctx); ok {
		deliveryID = delivery.DeliveryID
	}
	log.Printf("🎯 Processing issues event for app %s (action: %s, issue: #%d %q, delivery: %s)",
		appID, event.Action, event.Issue.Number, utils.TruncateString(event.Issue.Title, 60), deliveryID)

	if event.Action != "opened" {
		return u.notifyIssueEvent(ctx, event), nil
	}

	maybeToken, err := u.tokensService.GetInstallationToken(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation token: %w", err)
	}
	token, ok := maybeToken.Get()
	if !ok {
		return nil, fmt.Errorf("no installation token available for app %s", appID)
	}

	maybeAPIKey, err := u.credentialsService.GetDecryptedDeploymentSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment secret: %w", err)
	}
	apiKey, ok := maybeAPIKey.Get()
	if !ok {
		return nil, fmt.Errorf("deployment secret is not set up")
	}

	author := ""
	if event.Issue.User != nil {
		author = event.Issue.User.Login
	}
	request := &models.AgentSolveRequest{
		IssueID:           event.Issue.ID,
		IssueNumber:       event.Issue.Number,
		IssueTitle:        event.Issue.Title,
		IssueBody:         event.Issue.Body,
		IssueLabels:       event.Issue.LabelNames(),
		IssueAuthor:       author,
		RepositoryURL:     event.Repository.HTMLURL,
		RepositoryName:    event.Repository.FullName,
		InstallationToken: token.Token,
		AnthropicAPIKey:   apiKey,
	}

	result := u.dispatchService.Dispatch(ctx,
		services.DispatchOptions{Name: "solve-issue", Route: agent.SolveRoute, Timeout: u.solveTimeout},
		func(ctx context.Context) (*models.AgentResponse, error) {
			return u.agentClient.SolveIssue(ctx, request)
		})

	return result, nil
}

func (u *WebhooksUseCase) notifyIssueEvent(ctx context.Context, event *models.WebhookEvent) *models.DispatchResult {
	request := &models.AgentNotifyRequest{
		Action:         event.Action,
		IssueNumber:    event.Issue.Number,
		IssueTitle:     event.Issue.Title,
		RepositoryName: event.Repository.FullName,
	}

	return u.dispatchService.Dispatch(ctx,
		services.DispatchOptions{Name: "notify-issue", Route: agent.NotifyRoute, Timeout: notifyTimeout},
		func(ctx context.Context) (*models.AgentResponse, error) {
			return u.agentClient.NotifyIssueEvent(ctx, request)
		})
}

// SyncInstallationRepositories refreshes a tenant's repository list from
// the GitHub API. Used by the control plane after installation changes
// made outside the webhook flow.
func (u *WebhooksUseCase) SyncInstallationRepositories(ctx context.Context, appID string) error {
	log.Printf("📦 Syncing installation repositories for app %s", appID)

	maybeCredential, err := u.credentialsService.GetTenantCredential(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to get tenant credential: %w", err)
	}
	credential, ok := maybeCredential.Get()
	if !ok {
		return fmt.Errorf("tenant %s: %w", appID, core.ErrNotFound)
	}
	if credential.InstallationID == "" {
		return fmt.Errorf("tenant %s has no installation", appID)
	}

	maybeSecrets, err := u.credentialsService.GetDecryptedSecrets(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to get decrypted secrets: %w", err)
	}
	secrets, ok := maybeSecrets.Get()
	if !ok {
		return fmt.Errorf("secrets unavailable for tenant %s", appID)
	}

	repositories, err := u.githubClient.ListInstallationRepositories(
		ctx, appID, []byte(secrets.PrivateKey), credential.InstallationID)
	if err != nil {
		return fmt.Errorf("failed to list installation repositories: %w", err)
	}

	if err := u.credentialsService.UpdateInstallation(ctx, appID, credential.InstallationID, repositories); err != nil {
		return fmt.Errorf("failed to update installation: %w", err)
	}

	log.Printf("📦 Completed successfully - synced %d repositories for app %s", len(repositories), appID)
	return nil
}
