package models

import (
	"time"
)

// DeploymentKey is the fixed partition key for the singleton deployment
// secret - the Anthropic API key the agent uses. It is not tenant-scoped.
const DeploymentKey = "deployment"

// DeploymentSecret holds the encrypted Anthropic API key for the
// deployment. Created on setup, overwritten on re-setup, never deleted
// automatically.
type DeploymentSecret struct {
	Key             string    `db:"key"               json:"key"`
	EncryptedAPIKey string    `db:"encrypted_api_key" json:"-"`
	SetupAt         time.Time `db:"setup_at"          json:"setup_at"`
	UpdatedAt       time.Time `db:"updated_at"        json:"updated_at"`
}
