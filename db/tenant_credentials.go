package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"

	"issuebroker/db/tx"
	"issuebroker/models"
)

type PostgresTenantCredentialsRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for tenant_credentials table
var tenantCredentialsColumns = []string{
	"app_id",
	"encrypted_private_key",
	"encrypted_webhook_secret",
	"installation_id",
	"owner_login",
	"owner_type",
	"owner_id",
	"permissions",
	"events",
	"repositories",
	"webhook_count",
	"last_webhook_at",
	"cached_token",
	"cached_token_expires_at",
	"cached_token_issued_at",
	"created_at",
	"updated_at",
}

func NewPostgresTenantCredentialsRepository(db *sqlx.DB, schema string) *PostgresTenantCredentialsRepository {
	return &PostgresTenantCredentialsRepository{db: db, schema: schema}
}

// UpsertTenantCredential writes the full credential row for a tenant
// partition. There is exactly one live row per app id.
func (r *PostgresTenantCredentialsRepository) UpsertTenantCredential(
	ctx context.Context,
	credential *models.TenantCredential,
) error {
	if credential.AppID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}

	returningStr := strings.Join(tenantCredentialsColumns, ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s.tenant_credentials (
			app_id, encrypted_private_key, encrypted_webhook_secret,
			installation_id, owner_login, owner_type, owner_id,
			permissions, events, repositories, webhook_count,
			last_webhook_at, cached_token, cached_token_expires_at,
			cached_token_issued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		ON CONFLICT (app_id) DO UPDATE SET
			encrypted_private_key = EXCLUDED.encrypted_private_key,
			encrypted_webhook_secret = EXCLUDED.encrypted_webhook_secret,
			installation_id = EXCLUDED.installation_id,
			owner_login = EXCLUDED.owner_login,
			owner_type = EXCLUDED.owner_type,
			owner_id = EXCLUDED.owner_id,
			permissions = EXCLUDED.permissions,
			events = EXCLUDED.events,
			repositories = EXCLUDED.repositories,
			webhook_count = EXCLUDED.webhook_count,
			last_webhook_at = EXCLUDED.last_webhook_at,
			cached_token = EXCLUDED.cached_token,
			cached_token_expires_at = EXCLUDED.cached_token_expires_at,
			cached_token_issued_at = EXCLUDED.cached_token_issued_at,
			updated_at = NOW()
		RETURNING %s`, r.schema, returningStr)

	err := tx.GetTransactional(ctx, r.db).QueryRowxContext(ctx, query,
		credential.AppID,
		credential.EncryptedPrivateKey,
		credential.EncryptedWebhookSecret,
		credential.InstallationID,
		credential.OwnerLogin,
		credential.OwnerType,
		credential.OwnerID,
		credential.Permissions,
		credential.Events,
		credential.Repositories,
		credential.WebhookCount,
		credential.LastWebhookAt,
		credential.CachedToken,
		credential.CachedTokenExpiresAt,
		credential.CachedTokenIssuedAt,
	).StructScan(credential)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant credential: %w", err)
	}

	return nil
}

func (r *PostgresTenantCredentialsRepository) GetTenantCredential(
	ctx context.Context,
	appID string,
) (mo.Option[*models.TenantCredential], error) {
	if appID == "" {
		return mo.None[*models.TenantCredential](), fmt.Errorf("app ID cannot be empty")
	}

	columnsStr := strings.Join(tenantCredentialsColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.tenant_credentials
		WHERE app_id = $1`, columnsStr, r.schema)

	var credential models.TenantCredential
	err := tx.GetTransactional(ctx, r.db).GetContext(ctx, &credential, query, appID)
	if err != nil {
		if err == sql.ErrNoRows {
			return mo.None[*models.TenantCredential](), nil
		}
		return mo.None[*models.TenantCredential](), fmt.Errorf("failed to get tenant credential: %w", err)
	}

	return mo.Some(&credential), nil
}

func (r *PostgresTenantCredentialsRepository) ListTenantCredentials(
	ctx context.Context,
) ([]models.TenantCredential, error) {
	columnsStr := strings.Join(tenantCredentialsColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.tenant_credentials
		ORDER BY created_at DESC`, columnsStr, r.schema)

	credentials := []models.TenantCredential{}
	err := tx.GetTransactional(ctx, r.db).SelectContext(ctx, &credentials, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant credentials: %w", err)
	}

	return credentials, nil
}

// RecordWebhookDelivery bumps the webhook counter and delivery timestamp
// atomically. Returns false when the partition has no credential row.
func (r *PostgresTenantCredentialsRepository) RecordWebhookDelivery(
	ctx context.Context,
	appID string,
) (bool, error) {
	if appID == "" {
		return false, fmt.Errorf("app ID cannot be empty")
	}

	query := fmt.Sprintf(`
		UPDATE %s.tenant_credentials
		SET webhook_count = webhook_count + 1,
		    last_webhook_at = NOW(),
		    updated_at = NOW()
		WHERE app_id = $1`, r.schema)

	result, err := tx.GetTransactional(ctx, r.db).ExecContext(ctx, query, appID)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook delivery: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// UpdateCachedToken stores the freshly issued installation token in the
// tenant's credential row.
func (r *PostgresTenantCredentialsRepository) UpdateCachedToken(
	ctx context.Context,
	appID string,
	token *models.InstallationToken,
) error {
	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}

	query := fmt.Sprintf(`
		UPDATE %s.tenant_credentials
		SET cached_token = $2,
		    cached_token_expires_at = $3,
		    cached_token_issued_at = $4,
		    updated_at = NOW()
		WHERE app_id = $1`, r.schema)

	_, err := tx.GetTransactional(ctx, r.db).
		ExecContext(ctx, query, appID, token.Token, token.ExpiresAt, token.IssuedAt)
	if err != nil {
		return fmt.Errorf("failed to update cached token: %w", err)
	}

	return nil
}

// ClearCachedToken drops the cached installation token for one tenant.
func (r *PostgresTenantCredentialsRepository) ClearCachedToken(
	ctx context.Context,
	appID string,
) error {
	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}

	query := fmt.Sprintf(`
		UPDATE %s.tenant_credentials
		SET cached_token = '',
		    cached_token_expires_at = NULL,
		    cached_token_issued_at = NULL,
		    updated_at = NOW()
		WHERE app_id = $1`, r.schema)

	_, err := tx.GetTransactional(ctx, r.db).ExecContext(ctx, query, appID)
	if err != nil {
		return fmt.Errorf("failed to clear cached token: %w", err)
	}

	return nil
}

// ClearExpiredCachedTokens purges stale cached tokens across all tenants.
// Used by the background maintenance job.
func (r *PostgresTenantCredentialsRepository) ClearExpiredCachedTokens(
	ctx context.Context,
	now time.Time,
) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s.tenant_credentials
		SET cached_token = '',
		    cached_token_expires_at = NULL,
		    cached_token_issued_at = NULL,
		    updated_at = NOW()
		WHERE cached_token_expires_at IS NOT NULL
		  AND cached_token_expires_at < $1`, r.schema)

	result, err := tx.GetTransactional(ctx, r.db).ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired cached tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
