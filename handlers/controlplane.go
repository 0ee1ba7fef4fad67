package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"issuebroker/core"
	"issuebroker/middleware"
	"issuebroker/models"
	"issuebroker/services"
	"issuebroker/usecases/webhooks"
)

// ControlPlaneHandler exposes the admin API for managing tenant
// credentials, installation state, and the deployment secret.
type ControlPlaneHandler struct {
	credentialsService services.CredentialsService
	tokensService      services.TokensService
	webhooksUseCase    *webhooks.WebhooksUseCase
}

func NewControlPlaneHandler(
	credentialsService services.CredentialsService,
	tokensService services.TokensService,
	webhooksUseCase *webhooks.WebhooksUseCase,
) *ControlPlaneHandler {
	return &ControlPlaneHandler{
		credentialsService: credentialsService,
		tokensService:      tokensService,
		webhooksUseCase:    webhooksUseCase,
	}
}

type StoreTenantRequest struct {
	AppID         string                `json:"app_id"`
	PrivateKey    string                `json:"private_key"`
	WebhookSecret string                `json:"webhook_secret"`
	OwnerLogin    string                `json:"owner_login"`
	OwnerType     string                `json:"owner_type"`
	OwnerID       int64                 `json:"owner_id"`
	Permissions   models.PermissionMap  `json:"permissions"`
	Events        models.EventList      `json:"events"`
	Repositories  models.RepositoryList `json:"repositories"`
}

type AddRepositoryRequest struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

type StoreDeploymentSecretRequest struct {
	APIKey string `json:"api_key"`
}

type DeploymentSecretStatusResponse struct {
	Configured bool   `json:"configured"`
	SetupAt    string `json:"setup_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type InstallationTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type TenantSecretsResponse struct {
	PrivateKey    string `json:"private_key"`
	WebhookSecret string `json:"webhook_secret"`
}

type WebhookLogEntry struct {
	AppID         string `json:"app_id"`
	OwnerLogin    string `json:"owner_login"`
	WebhookCount  int64  `json:"webhook_count"`
	LastWebhookAt string `json:"last_webhook_at,omitempty"`
}

func (h *ControlPlaneHandler) HandleStoreTenant(w http.ResponseWriter, r *http.Request) {
	log.Printf("➕ Store tenant credential request received from %s", r.RemoteAddr)

	var req StoreTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.AppID == "" {
		log.Printf("❌ Missing app_id in request")
		http.Error(w, "app_id is required", http.StatusBadRequest)
		return
	}
	if req.PrivateKey == "" {
		log.Printf("❌ Missing private_key in request")
		http.Error(w, "private_key is required", http.StatusBadRequest)
		return
	}
	if req.WebhookSecret == "" {
		log.Printf("❌ Missing webhook_secret in request")
		http.Error(w, "webhook_secret is required", http.StatusBadRequest)
		return
	}

	credential, err := h.credentialsService.StoreTenantCredential(r.Context(), services.StoreTenantCredentialParams{
		AppID:         req.AppID,
		PrivateKey:    req.PrivateKey,
		WebhookSecret: req.WebhookSecret,
		OwnerLogin:    req.OwnerLogin,
		OwnerType:     req.OwnerType,
		OwnerID:       req.OwnerID,
		Permissions:   req.Permissions,
		Events:        req.Events,
		Repositories:  req.Repositories,
	})
	if err != nil {
		log.Printf("❌ Failed to store tenant credential: %v", err)
		http.Error(w, "failed to store tenant credential", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Tenant credential stored successfully for app %s", credential.AppID)
	writeJSON(w, http.StatusCreated, credential)
}

func (h *ControlPlaneHandler) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 List tenants request received from %s", r.RemoteAddr)

	credentials, err := h.credentialsService.ListTenantCredentials(r.Context())
	if err != nil {
		log.Printf("❌ Failed to list tenant credentials: %v", err)
		http.Error(w, "failed to list tenants", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Successfully retrieved %d tenants", len(credentials))
	writeJSON(w, http.StatusOK, credentials)
}

func (h *ControlPlaneHandler) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 Get tenant request received from %s", r.RemoteAddr)

	appID, ok := h.tenantAppID(w, r)
	if !ok {
		return
	}

	maybeCredential, err := h.credentialsService.GetTenantCredential(r.Context(), appID)
	if err != nil {
		log.Printf("❌ Failed to get tenant credential: %v", err)
		http.Error(w, "failed to get tenant", http.StatusInternalServerError)
		return
	}
	credential, ok := maybeCredential.Get()
	if !ok {
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, credential)
}

func (h *ControlPlaneHandler) HandleGetTenantSecrets(w http.ResponseWriter, r *http.Request) {
	log.Printf("🔑 Get tenant secrets request received from %s", r.RemoteAddr)

	appID, ok := h.tenantAppID(w, r)
	if !ok {
		return
	}

	maybeSecrets, err := h.credentialsService.GetDecryptedSecrets(r.Context(), appID)
	if err != nil {
		log.Printf("❌ Failed to get decrypted secrets: %v", err)
		http.Error(w, "failed to get tenant secrets", http.StatusInternalServerError)
		return
	}
	secrets, ok := maybeSecrets.Get()
	if !ok {
		http.Error(w, "tenant secrets unavailable", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, TenantSecretsResponse{
		PrivateKey:    secrets.PrivateKey,
		WebhookSecret: secrets.WebhookSecret,
	})
}

func (h *ControlPlaneHandler) HandleSyncInstallation(w http.ResponseWriter, r *http.Request) {
	log.Printf("🔄 Sync installation request received from %s", r.RemoteAddr)

	appID, ok := h.tenantAppID(w, r)
	if !ok {
		return
	}

	if err := h.webhooksUseCase.SyncInstallationRepositories(r.Context(), appID); err != nil {
		log.Printf("❌ Failed to sync installation repositories: %v", err)
		if core.IsNotFoundError(err) {
			http.Error(w, "tenant not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to sync installation", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("✅ Installation synced successfully for app %s", appID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ControlPlaneHandler) HandleAddRepository(w http.ResponseWriter, r *http.Request) {
	log.Printf("➕ Add repository request received from %s", r.RemoteAddr)

	appID, ok := h.tenantAppID(w, r)
	if !ok {
		return
	}

	var req AddRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == 0 {
		log.Printf("❌ Missing repository id in request")
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	repo := models.Repository{ID: req.ID, Name: req.Name, FullName: req.FullName, Private: req.Private}
	if err := h.credentialsService.AddRepository(r.Context(), appID, repo); err != nil {
		log.Printf("❌ Failed to add repository: %v", err)
		http.Error(w, "failed to add repository", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Repository %d added to app %s", req.ID, appID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ControlPlaneHandler) HandleRemoveRepository(w http.ResponseWriter, r *http.Request) {
	log.Printf("🗑️ Remove repository request received from %s", r.RemoteAddr)

	appID, ok := h.tenantAppID(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	repoID, err := strconv.ParseInt(vars["repo_id"], 10, 64)
	if err != nil {
		log.Printf("❌ Invalid repository id in URL path")
		http.Error(w, "repository id must be numeric", http.StatusBadRequest)
		return
	}

	if err := h.credentialsService.RemoveRepository(r.Context(), appID, repoID); err != nil {
		log.Printf("❌ Failed to remove repository: %v", err)
		http.Error(w, "failed to remove repository", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Repository %d removed from app %s", repoID, appID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ControlPlaneHandler) HandleGetInstallationToken(w http.ResponseWriter, r *http.Request) {
	log.Printf("🎟️ Get installation token request received from %s", r.RemoteAddr)

	appID, ok := h.tenantAppID(w, r)
	if !ok {
		return
	}

	maybeToken, err := h.tokensService.GetInstallationToken(r.Context(), appID)
	if err != nil {
		log.Printf("❌ Failed to get installation token: %v", err)
		http.Error(w, "failed to get installation token", http.StatusInternalServerError)
		return
	}
	token, ok := maybeToken.Get()
	if !ok {
		http.Error(w, "no installation token available", http.StatusNotFound)
		return
	}

	log.Printf("✅ Installation token issued for app %s (expires: %s)", appID, token.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	writeJSON(w, http.StatusOK, InstallationTokenResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (h *ControlPlaneHandler) HandleStoreDeploymentSecret(w http.ResponseWriter, r *http.Request) {
	log.Printf("🔑 Store deployment secret request received from %s", r.RemoteAddr)

	var req StoreDeploymentSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.APIKey == "" {
		log.Printf("❌ Missing api_key in request")
		http.Error(w, "api_key is required", http.StatusBadRequest)
		return
	}

	secret, err := h.credentialsService.StoreDeploymentSecret(r.Context(), req.APIKey)
	if err != nil {
		log.Printf("❌ Failed to store deployment secret: %v", err)
		if strings.Contains(err.Error(), "refusing") || strings.Contains(err.Error(), "validation") {
			http.Error(w, "api key validation failed", http.StatusUnauthorized)
		} else {
			http.Error(w, "failed to store deployment secret", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("✅ Deployment secret stored successfully")
	writeJSON(w, http.StatusCreated, secret)
}

func (h *ControlPlaneHandler) HandleGetDeploymentSecretStatus(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 Get deployment secret status request received from %s", r.RemoteAddr)

	// Presence only - the key itself is never returned
	maybeKey, err := h.credentialsService.GetDecryptedDeploymentSecret(r.Context())
	if err != nil {
		log.Printf("❌ Failed to get deployment secret: %v", err)
		http.Error(w, "failed to get deployment secret", http.StatusInternalServerError)
		return
	}

	_, configured := maybeKey.Get()
	writeJSON(w, http.StatusOK, DeploymentSecretStatusResponse{Configured: configured})
}

func (h *ControlPlaneHandler) HandleWebhookLog(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 Webhook log request received from %s", r.RemoteAddr)

	credentials, err := h.credentialsService.ListTenantCredentials(r.Context())
	if err != nil {
		log.Printf("❌ Failed to list tenant credentials: %v", err)
		http.Error(w, "failed to get webhook log", http.StatusInternalServerError)
		return
	}

	entries := make([]WebhookLogEntry, 0, len(credentials))
	for _, credential := range credentials {
		entry := WebhookLogEntry{
			AppID:        credential.AppID,
			OwnerLogin:   credential.OwnerLogin,
			WebhookCount: credential.WebhookCount,
		}
		if credential.LastWebhookAt != nil {
			entry.LastWebhookAt = credential.LastWebhookAt.Format("2006-01-02T15:04:05Z07:00")
		}
		entries = append(entries, entry)
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *ControlPlaneHandler) tenantAppID(w http.ResponseWriter, r *http.Request) (string, bool) {
	vars := mux.Vars(r)
	appID, ok := vars["app_id"]
	if !ok || appID == "" {
		log.Printf("❌ Missing app ID in URL path")
		http.Error(w, "app ID is required", http.StatusBadRequest)
		return "", false
	}
	return appID, true
}

func (h *ControlPlaneHandler) SetupEndpoints(router *mux.Router, authMiddleware *middleware.AdminAuthMiddleware) {
	log.Printf("🚀 Registering control plane API endpoints")

	router.HandleFunc("/tenants", authMiddleware.WithAuth(h.HandleStoreTenant)).Methods("POST")
	log.Printf("✅ POST /tenants endpoint registered")

	router.HandleFunc("/tenants", authMiddleware.WithAuth(h.HandleListTenants)).Methods("GET")
	log.Printf("✅ GET /tenants endpoint registered")

	router.HandleFunc("/tenants/{app_id}", authMiddleware.WithAuth(h.HandleGetTenant)).Methods("GET")
	log.Printf("✅ GET /tenants/{app_id} endpoint registered")

	router.HandleFunc("/tenants/{app_id}/secrets", authMiddleware.WithAuth(h.HandleGetTenantSecrets)).Methods("GET")
	log.Printf("✅ GET /tenants/{app_id}/secrets endpoint registered")

	router.HandleFunc("/tenants/{app_id}/sync", authMiddleware.WithAuth(h.HandleSyncInstallation)).Methods("POST")
	log.Printf("✅ POST /tenants/{app_id}/sync endpoint registered")

	router.HandleFunc("/tenants/{app_id}/repositories", authMiddleware.WithAuth(h.HandleAddRepository)).Methods("POST")
	log.Printf("✅ POST /tenants/{app_id}/repositories endpoint registered")

	router.HandleFunc("/tenants/{app_id}/repositories/{repo_id}", authMiddleware.WithAuth(h.HandleRemoveRepository)).
		Methods("DELETE")
	log.Printf("✅ DELETE /tenants/{app_id}/repositories/{repo_id} endpoint registered")

	router.HandleFunc("/tenants/{app_id}/token", authMiddleware.WithAuth(h.HandleGetInstallationToken)).Methods("POST")
	log.Printf("✅ POST /tenants/{app_id}/token endpoint registered")

	router.HandleFunc("/deployment/secret", authMiddleware.WithAuth(h.HandleStoreDeploymentSecret)).Methods("POST")
	log.Printf("✅ POST /deployment/secret endpoint registered")

	router.HandleFunc("/deployment/secret", authMiddleware.WithAuth(h.HandleGetDeploymentSecretStatus)).Methods("GET")
	log.Printf("✅ GET /deployment/secret endpoint registered")

	router.HandleFunc("/webhooks/log", authMiddleware.WithAuth(h.HandleWebhookLog)).Methods("GET")
	log.Printf("✅ GET /webhooks/log endpoint registered")

	log.Printf("✅ All control plane API endpoints registered successfully")
}
