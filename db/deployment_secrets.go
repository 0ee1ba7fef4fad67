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

type PostgresDeploymentSecretsRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for deployment_secrets table
var deploymentSecretsColumns = []string{
	"key",
	"encrypted_api_key",
	"setup_at",
	"updated_at",
}

func NewPostgresDeploymentSecretsRepository(db *sqlx.DB, schema string) *PostgresDeploymentSecretsRepository {
	return &PostgresDeploymentSecretsRepository{db: db, schema: schema}
}

// UpsertDeploymentSecret writes the singleton deployment secret row.
// Re-setup overwrites the previous key.
func (r *PostgresDeploymentSecretsRepository) UpsertDeploymentSecret(
	ctx context.Context,
	key, encryptedAPIKey string,
	setupAt time.Time,
) (*models.DeploymentSecret, error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}
	if encryptedAPIKey == "" {
		return nil, fmt.Errorf("encrypted API key cannot be empty")
	}

	returningStr := strings.Join(deploymentSecretsColumns, ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s.deployment_secrets (key, encrypted_api_key, setup_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET
			encrypted_api_key = EXCLUDED.encrypted_api_key,
			setup_at = EXCLUDED.setup_at,
			updated_at = NOW()
		RETURNING %s`, r.schema, returningStr)

	var secret models.DeploymentSecret
	err := tx.GetTransactional(ctx, r.db).
		QueryRowxContext(ctx, query, key, encryptedAPIKey, setupAt).
		StructScan(&secret)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert deployment secret: %w", err)
	}

	return &secret, nil
}

func (r *PostgresDeploymentSecretsRepository) GetDeploymentSecret(
	ctx context.Context,
	key string,
) (mo.Option[*models.DeploymentSecret], error) {
	if key == "" {
		return mo.None[*models.DeploymentSecret](), fmt.Errorf("key cannot be empty")
	}

	columnsStr := strings.Join(deploymentSecretsColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.deployment_secrets
		WHERE key = $1`, columnsStr, r.schema)

	var secret models.DeploymentSecret
	err := tx.GetTransactional(ctx, r.db).GetContext(ctx, &secret, query, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return mo.None[*models.DeploymentSecret](), nil
		}
		return mo.None[*models.DeploymentSecret](), fmt.Errorf("failed to get deployment secret: %w", err)
	}

	return mo.Some(&secret), nil
}
