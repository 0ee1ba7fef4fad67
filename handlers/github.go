package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"issuebroker/appctx"
	"issuebroker/models"
	"issuebroker/services"
	"issuebroker/usecases/webhooks"
	"issuebroker/utils"
)

// maxWebhookBodySize caps webhook payloads. GitHub's own limit is 25MB;
// anything near that for an issues event is garbage.
const maxWebhookBodySize = 1 << 20

type GitHubWebhooksHandler struct {
	credentialsService services.CredentialsService
	webhooksUseCase    *webhooks.WebhooksUseCase
}

func NewGitHubWebhooksHandler(
	credentialsService services.CredentialsService,
	webhooksUseCase *webhooks.WebhooksUseCase,
) *GitHubWebhooksHandler {
	return &GitHubWebhooksHandler{
		credentialsService: credentialsService,
		webhooksUseCase:    webhooksUseCase,
	}
}

func (h *GitHubWebhooksHandler) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	delivery := models.WebhookDelivery{
		EventType:   r.Header.Get("X-GitHub-Event"),
		DeliveryID:  r.Header.Get("X-GitHub-Delivery"),
		TargetAppID: r.Header.Get("X-GitHub-Hook-Installation-Target-ID"),
	}
	log.Printf("📨 GitHub webhook received from %s (event: %s, delivery: %s)",
		r.RemoteAddr, delivery.EventType, utils.RedactTail(delivery.DeliveryID, 13))

	if delivery.EventType == "" {
		log.Printf("❌ Missing X-GitHub-Event header")
		http.Error(w, "missing event header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		log.Printf("❌ Failed to read webhook body: %v", err)
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}

	// Ping carries no tenant-scoped data and may arrive before the tenant
	// has stored its credentials, so it is acknowledged unverified
	if delivery.EventType == models.WebhookEventPing {
		log.Printf("🏓 Responding to GitHub ping (delivery: %s)", delivery.DeliveryID)
		w.WriteHeader(http.StatusOK)
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("❌ Failed to parse webhook payload: %v", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	appID, err := resolveTenant(delivery, &event)
	if err != nil {
		log.Printf("❌ Cannot determine tenant for delivery %s: %v", delivery.DeliveryID, err)
		http.Error(w, "cannot determine tenant", http.StatusBadRequest)
		return
	}

	maybeSecrets, err := h.credentialsService.GetDecryptedSecrets(r.Context(), appID)
	if err != nil {
		log.Printf("❌ Failed to load tenant secrets: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	secrets, ok := maybeSecrets.Get()
	if !ok {
		log.Printf("❌ Unknown tenant for app %s (delivery: %s)", appID, delivery.DeliveryID)
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}

	if err := verifyGitHubSignature(r, body, secrets.WebhookSecret); err != nil {
		if _, missing := err.(*missingSignatureError); missing {
			log.Printf("❌ Webhook signature missing for app %s: %v", appID, err)
			http.Error(w, "missing signature", http.StatusBadRequest)
			return
		}
		log.Printf("❌ Webhook signature verification failed for app %s: %v", appID, err)
		http.Error(w, "signature verification failed", http.StatusUnauthorized)
		return
	}
	log.Printf("✅ Webhook signature verified for app %s", appID)

	if err := h.credentialsService.RecordWebhookDelivery(r.Context(), appID); err != nil {
		// Delivery bookkeeping must not fail the webhook
		log.Printf("⚠️ Failed to record webhook delivery for app %s: %v", appID, err)
	}

	r = r.WithContext(appctx.SetDelivery(r.Context(), &delivery))

	switch delivery.EventType {
	case models.WebhookEventInstallation:
		if err := h.webhooksUseCase.ProcessInstallationEvent(r.Context(), appID, &event); err != nil {
			log.Printf("❌ Failed to process installation event: %v", err)
			http.Error(w, "failed to process event", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)

	case models.WebhookEventInstallationRepositories:
		if err := h.webhooksUseCase.ProcessInstallationRepositoriesEvent(r.Context(), appID, &event); err != nil {
			log.Printf("❌ Failed to process installation_repositories event: %v", err)
			http.Error(w, "failed to process event", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)

	case models.WebhookEventIssues:
		result, err := h.webhooksUseCase.ProcessIssuesEvent(r.Context(), appID, &event)
		if err != nil {
			log.Printf("❌ Failed to process issues event: %v", err)
			http.Error(w, "failed to process event", http.StatusInternalServerError)
			return
		}
		writeJSON(w, result.Status, result)

	default:
		log.Printf("📋 Ignoring unhandled event type: %s", delivery.EventType)
		w.WriteHeader(http.StatusOK)
	}
}

// resolveTenant determines which tenant a delivery belongs to. The payload
// installation's app_id wins; the hook target header is the fallback for
// payloads that omit it.
func resolveTenant(delivery models.WebhookDelivery, event *models.WebhookEvent) (string, error) {
	if event.Installation != nil && event.Installation.AppID != 0 {
		return fmt.Sprintf("%d", event.Installation.AppID), nil
	}
	if delivery.TargetAppID != "" {
		return delivery.TargetAppID, nil
	}
	return "", fmt.Errorf("payload carries no installation app id and no target header is set")
}

type missingSignatureError struct {
	header string
}

func (e *missingSignatureError) Error() string {
	return fmt.Sprintf("missing %s header", e.header)
}

// verifyGitHubSignature checks the X-Hub-Signature-256 header against the
// HMAC-SHA256 of the raw body keyed with the tenant's webhook secret.
func verifyGitHubSignature(r *http.Request, body []byte, webhookSecret string) error {
	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		return &missingSignatureError{header: "X-Hub-Signature-256"}
	}

	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (h *GitHubWebhooksHandler) SetupEndpoints(router *mux.Router) {
	log.Printf("🚀 Registering GitHub webhooks endpoint on /github/webhooks")
	router.HandleFunc("/github/webhooks", h.HandleGitHubWebhook).Methods("POST")
	log.Printf("✅ GitHub webhooks endpoint registered successfully")
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("❌ Failed to encode JSON response: %v", err)
	}
}
