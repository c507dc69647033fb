package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rizonesoft/isotone-sub002/internal/database"
	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// AuthLogRepository handles the append-only authentication log
type AuthLogRepository struct {
	db *database.DB
}

// NewAuthLogRepository creates a new AuthLogRepository
func NewAuthLogRepository(db *database.DB) *AuthLogRepository {
	return &AuthLogRepository{db: db}
}

func scanAuthLogRow(row rowScanner) (*models.AuthLogEntry, error) {
	var e models.AuthLogEntry

	err := row.Scan(
		&e.ID, &e.CredentialPrefix, &e.Success, &e.Reason,
		&e.IPAddress, &e.UserAgent, &e.Endpoint, &e.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &e, nil
}

// Create appends an authentication log entry
func (r *AuthLogRepository) Create(ctx context.Context, entry *models.AuthLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO auth_log (id, credential_prefix, success, reason, ip_address, user_agent, endpoint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		entry.ID, entry.CredentialPrefix, entry.Success, entry.Reason,
		entry.IPAddress, entry.UserAgent, entry.Endpoint, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create auth log entry: %w", database.MapPostgresError(err))
	}
	return nil
}

// List returns entries newest first. A nil success filter returns both outcomes.
func (r *AuthLogRepository) List(ctx context.Context, success *bool, limit, offset int) ([]*models.AuthLogEntry, error) {
	query := `
		SELECT id, credential_prefix, success, reason, ip_address, user_agent, endpoint, created_at
		FROM auth_log
		WHERE ($1::boolean IS NULL OR success = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, success, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query auth log: %w", database.MapPostgresError(err))
	}

	return scanRows(rows, scanAuthLogRow)
}
