package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rizonesoft/isotone-sub002/internal/database"
	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

func scanLoginAttemptRow(row rowScanner) (*models.LoginAttempt, error) {
	var a models.LoginAttempt
	err := row.Scan(&a.ID, &a.IPAddress, &a.Username, &a.UserAgent, &a.AttemptTime, &a.Success)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

// Create appends a login attempt
func (r *LoginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}

	query := `
		INSERT INTO login_attempts (id, ip_address, username, user_agent, attempt_time, success)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		attempt.ID,
		attempt.IPAddress,
		attempt.Username,
		attempt.UserAgent,
		attempt.AttemptTime,
		attempt.Success,
	)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", database.MapPostgresError(err))
	}
	return nil
}

// CountFailuresByIP returns the number of failed attempts from an IP since the given time
func (r *LoginAttemptRepository) CountFailuresByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	if err := r.db.Conn(ctx).QueryRow(ctx, query, ipAddress, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ip failures: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// CountFailuresByIPAndUsername returns the failed attempts for one (ip, username) pair since the given time
func (r *LoginAttemptRepository) CountFailuresByIPAndUsername(ctx context.Context, ipAddress, username string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND username = $2 AND success = false AND attempt_time >= $3
	`

	var count int
	if err := r.db.Conn(ctx).QueryRow(ctx, query, ipAddress, username, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ip and username failures: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// CountFailuresByUsername returns the number of failed attempts for a username since the given time
func (r *LoginAttemptRepository) CountFailuresByUsername(ctx context.Context, username string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE username = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	if err := r.db.Conn(ctx).QueryRow(ctx, query, username, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count username failures: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// DeleteBefore removes attempts older than cutoff and reports how many were removed
func (r *LoginAttemptRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM login_attempts WHERE attempt_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge login attempts: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}

// ListFailed returns failed attempts, newest first
func (r *LoginAttemptRepository) ListFailed(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, ip_address, username, user_agent, attempt_time, success
		FROM login_attempts
		WHERE success = false
		ORDER BY attempt_time DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed attempts: %w", database.MapPostgresError(err))
	}

	return scanRows(rows, scanLoginAttemptRow)
}
