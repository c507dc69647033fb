package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rizonesoft/isotone-sub002/internal/database"
	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// LockoutRepository persists lockout rows. Expiry is a query predicate, rows are never swept.
type LockoutRepository struct {
	db *database.DB
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

const lockoutColumns = `id, subject_ip, subject_username, created_at, unlock_at, reason, active`

func scanLockoutRow(row rowScanner) (*models.Lockout, error) {
	var l models.Lockout
	err := row.Scan(&l.ID, &l.SubjectIP, &l.SubjectUsername, &l.CreatedAt, &l.UnlockAt, &l.Reason, &l.Active)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &l, nil
}

// Create stores a new lockout
func (r *LockoutRepository) Create(ctx context.Context, lockout *models.Lockout) error {
	if lockout.ID == "" {
		lockout.ID = uuid.NewString()
	}

	query := `
		INSERT INTO lockouts (id, subject_ip, subject_username, created_at, unlock_at, reason, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		lockout.ID,
		lockout.SubjectIP,
		lockout.SubjectUsername,
		lockout.CreatedAt,
		lockout.UnlockAt,
		lockout.Reason,
		lockout.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create lockout: %w", database.MapPostgresError(err))
	}
	return nil
}

// FindActive returns the most restrictive effective lockout for the ip or username.
// An empty username matches on ip only. Returns nil when none governs.
func (r *LockoutRepository) FindActive(ctx context.Context, ip, username string, now time.Time) (*models.Lockout, error) {
	query := `
		SELECT ` + lockoutColumns + `
		FROM lockouts
		WHERE active = true
		  AND unlock_at > $3
		  AND (subject_ip = $1 OR ($2 <> '' AND subject_username = $2))
		ORDER BY unlock_at DESC
		LIMIT 1
	`

	lockout, err := scanLockoutRow(r.db.Conn(ctx).QueryRow(ctx, query, ip, username, now))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active lockout: %w", err)
	}
	return lockout, nil
}

// Clear deactivates every active lockout matching the ip or username
func (r *LockoutRepository) Clear(ctx context.Context, ip, username string) (int64, error) {
	query := `
		UPDATE lockouts SET active = false
		WHERE active = true
		  AND (($1 <> '' AND subject_ip = $1) OR ($2 <> '' AND subject_username = $2))
	`

	result, err := r.db.Conn(ctx).Exec(ctx, query, ip, username)
	if err != nil {
		return 0, fmt.Errorf("failed to clear lockout: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}

// ListActive returns every lockout still in force, latest unlock first
func (r *LockoutRepository) ListActive(ctx context.Context, now time.Time) ([]*models.Lockout, error) {
	query := `
		SELECT ` + lockoutColumns + `
		FROM lockouts
		WHERE active = true AND unlock_at > $1
		ORDER BY unlock_at DESC
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active lockouts: %w", database.MapPostgresError(err))
	}

	return scanRows(rows, scanLockoutRow)
}
