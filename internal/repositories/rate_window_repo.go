package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rizonesoft/isotone-sub002/internal/database"
	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// RateWindowRepository persists accepted requests per credential
type RateWindowRepository struct {
	db *database.DB
}

// NewRateWindowRepository creates a new RateWindowRepository
func NewRateWindowRepository(db *database.DB) *RateWindowRepository {
	return &RateWindowRepository{db: db}
}

// CountSince returns how many requests the credential made at or after since
func (r *RateWindowRepository) CountSince(ctx context.Context, credentialID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM rate_window_records
		WHERE credential_id = $1 AND recorded_at >= $2
	`

	var count int
	if err := r.db.Conn(ctx).QueryRow(ctx, query, credentialID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rate window: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// Create records one accepted request
func (r *RateWindowRepository) Create(ctx context.Context, rec *models.RateWindowRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	query := `
		INSERT INTO rate_window_records (id, credential_id, recorded_at, endpoint, method, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		rec.ID, rec.CredentialID, rec.RecordedAt, rec.Endpoint, rec.Method, rec.IPAddress)
	if err != nil {
		return fmt.Errorf("failed to record rate window entry: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteBefore prunes records older than cutoff across all credentials
func (r *RateWindowRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM rate_window_records WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune rate window: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
