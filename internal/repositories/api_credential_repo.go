package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rizonesoft/isotone-sub002/internal/database"
	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// APICredentialRepository persists hashed API credentials
type APICredentialRepository struct {
	db *database.DB
}

// NewAPICredentialRepository creates a new APICredentialRepository
func NewAPICredentialRepository(db *database.DB) *APICredentialRepository {
	return &APICredentialRepository{db: db}
}

const credentialColumns = `id, owner_id, secret_hash, secret_prefix, name, permissions, created_at,
	expires_at, ip_allowlist, is_active, last_used_at, usage_count`

// scanCredentialRow handles nullable fields and text[] columns
func scanCredentialRow(row rowScanner) (*models.APICredential, error) {
	var c models.APICredential
	var expiresAt, lastUsedAt *time.Time

	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.SecretHash,
		&c.SecretPrefix,
		&c.Name,
		pq.Array(&c.Permissions),
		&c.CreatedAt,
		&expiresAt,
		pq.Array(&c.IPAllowlist),
		&c.IsActive,
		&lastUsedAt,
		&c.UsageCount,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	c.ExpiresAt = expiresAt
	c.LastUsedAt = lastUsedAt
	if c.IPAllowlist == nil {
		c.IPAllowlist = []string{}
	}

	return &c, nil
}

// Create stores a new credential
func (r *APICredentialRepository) Create(ctx context.Context, c *models.APICredential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.IPAllowlist == nil {
		c.IPAllowlist = []string{}
	}

	query := `
		INSERT INTO api_credentials (id, owner_id, secret_hash, secret_prefix, name, permissions,
			created_at, expires_at, ip_allowlist, is_active, usage_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)
	`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		c.ID,
		c.OwnerID,
		c.SecretHash,
		c.SecretPrefix,
		c.Name,
		pq.Array(c.Permissions),
		c.CreatedAt,
		c.ExpiresAt,
		pq.Array(c.IPAllowlist),
		c.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", database.MapPostgresError(err))
	}
	return nil
}

// ListActive returns every active credential. Expiry is judged by the caller.
func (r *APICredentialRepository) ListActive(ctx context.Context) ([]*models.APICredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM api_credentials
		WHERE is_active = true
		ORDER BY created_at
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active credentials: %w", database.MapPostgresError(err))
	}

	return scanRows(rows, scanCredentialRow)
}

// GetByID retrieves a credential by its ID
func (r *APICredentialRepository) GetByID(ctx context.Context, id string) (*models.APICredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM api_credentials WHERE id = $1`

	c, err := scanCredentialRow(r.db.Conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns credentials for the admin surface, newest first
func (r *APICredentialRepository) List(ctx context.Context, limit, offset int) ([]*models.APICredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM api_credentials
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", database.MapPostgresError(err))
	}

	return scanRows(rows, scanCredentialRow)
}

// RecordUsage stamps last_used_at and bumps usage_count
func (r *APICredentialRepository) RecordUsage(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE api_credentials
		SET last_used_at = $2, usage_count = usage_count + 1
		WHERE id = $1
	`

	if _, err := r.db.Conn(ctx).Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to record credential usage: %w", database.MapPostgresError(err))
	}
	return nil
}

// Revoke deactivates a credential. Returns ErrNotFound when no active credential matches.
func (r *APICredentialRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE api_credentials SET is_active = false WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke credential: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
