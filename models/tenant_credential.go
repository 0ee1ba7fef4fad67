package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TenantCredential is the single logical row per tenant partition. A tenant
// is one configured GitHub App instance, keyed by app id. The private key
// and webhook secret columns hold encrypted blobs only.
type TenantCredential struct {
	AppID                  string         `db:"app_id"                   json:"app_id"`
	EncryptedPrivateKey    string         `db:"encrypted_private_key"    json:"-"`
	EncryptedWebhookSecret string         `db:"encrypted_webhook_secret" json:"-"`
	InstallationID         string         `db:"installation_id"          json:"installation_id,omitempty"`
	OwnerLogin             string         `db:"owner_login"              json:"owner_login"`
	OwnerType              string         `db:"owner_type"               json:"owner_type"`
	OwnerID                int64          `db:"owner_id"                 json:"owner_id"`
	Permissions            PermissionMap  `db:"permissions"              json:"permissions"`
	Events                 EventList      `db:"events"                   json:"events"`
	Repositories           RepositoryList `db:"repositories"             json:"repositories"`
	WebhookCount           int64          `db:"webhook_count"            json:"webhook_count"`
	LastWebhookAt          *time.Time     `db:"last_webhook_at"          json:"last_webhook_at,omitempty"`
	CachedToken            string         `db:"cached_token"             json:"-"`
	CachedTokenExpiresAt   *time.Time     `db:"cached_token_expires_at"  json:"-"`
	CachedTokenIssuedAt    *time.Time     `db:"cached_token_issued_at"   json:"-"`
	CreatedAt              time.Time      `db:"created_at"               json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"               json:"updated_at"`
}

// TenantSecrets carries the decrypted secrets for one tenant. Never
// persisted and never logged.
type TenantSecrets struct {
	PrivateKey    string
	WebhookSecret string
}

// InstallationToken is the short-lived credential cached per tenant.
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// FreshFor reports whether the token remains usable for at least d.
func (t *InstallationToken) FreshFor(d time.Duration) bool {
	return time.Until(t.ExpiresAt) > d
}

// CachedInstallationToken returns the token cached in this credential row,
// or nil when no token has been cached yet.
func (c *TenantCredential) CachedInstallationToken() *InstallationToken {
	if c.CachedToken == "" || c.CachedTokenExpiresAt == nil {
		return nil
	}
	token := &InstallationToken{
		Token:     c.CachedToken,
		ExpiresAt: *c.CachedTokenExpiresAt,
	}
	if c.CachedTokenIssuedAt != nil {
		token.IssuedAt = *c.CachedTokenIssuedAt
	}
	return token
}

// Repository is one repository reference accessible to an installation.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

// RepositoryList is an ordered repository set, unique by repository id.
// Stored as a JSONB column.
type RepositoryList []Repository

// WithRepository returns the list with repo added. Adding an id that is
// already present is a no-op; the second return value reports whether the
// list changed.
func (l RepositoryList) WithRepository(repo Repository) (RepositoryList, bool) {
	for _, existing := range l {
		if existing.ID == repo.ID {
			return l, false
		}
	}
	return append(l, repo), true
}

// WithoutRepository returns the list with the repository removed. Removing
// an unknown id is a no-op.
func (l RepositoryList) WithoutRepository(id int64) (RepositoryList, bool) {
	for i, existing := range l {
		if existing.ID == id {
			return append(l[:i:i], l[i+1:]...), true
		}
	}
	return l, false
}

// Contains reports whether the list holds a repository with the given id.
func (l RepositoryList) Contains(id int64) bool {
	for _, existing := range l {
		if existing.ID == id {
			return true
		}
	}
	return false
}

func (l RepositoryList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal repository list: %w", err)
	}
	return string(data), nil
}

func (l *RepositoryList) Scan(src any) error {
	return scanJSON(src, l, "repository list")
}

// PermissionMap maps a permission scope to its level, e.g. "issues" -> "write".
// Stored as a JSONB column.
type PermissionMap map[string]string

func (m PermissionMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permission map: %w", err)
	}
	return string(data), nil
}

func (m *PermissionMap) Scan(src any) error {
	return scanJSON(src, m, "permission map")
}

// EventList is the set of webhook event names a tenant subscribes to.
// Stored as a JSONB column.
type EventList []string

func (l EventList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event list: %w", err)
	}
	return string(data), nil
}

func (l *EventList) Scan(src any) error {
	return scanJSON(src, l, "event list")
}

func scanJSON(src, dest any, what string) error {
	if src == nil {
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into %s", src, what)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}
