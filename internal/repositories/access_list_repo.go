package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rizonesoft/isotone-sub002/internal/database"
	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// AccessListRepository persists allow and deny entries
type AccessListRepository struct {
	db *database.DB
}

// NewAccessListRepository creates a new AccessListRepository
func NewAccessListRepository(db *database.DB) *AccessListRepository {
	return &AccessListRepository{db: db}
}

const listEntryColumns = `id, subject, list_type, scope, reason, added_by, added_at, active`

func scanListEntryRow(row rowScanner) (*models.ListEntry, error) {
	var e models.ListEntry
	err := row.Scan(&e.ID, &e.Subject, &e.ListType, &e.Scope, &e.Reason, &e.AddedBy, &e.AddedAt, &e.Active)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &e, nil
}

// Upsert inserts an entry or reactivates and overwrites the existing one for (subject, list_type, scope)
func (r *AccessListRepository) Upsert(ctx context.Context, entry *models.ListEntry) (*models.ListEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO access_list_entries (id, subject, list_type, scope, reason, added_by, added_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		ON CONFLICT (subject, list_type, scope) DO UPDATE SET
			reason = EXCLUDED.reason,
			added_by = EXCLUDED.added_by,
			added_at = EXCLUDED.added_at,
			active = true
		RETURNING ` + listEntryColumns

	result, err := scanListEntryRow(r.db.Conn(ctx).QueryRow(ctx, query,
		entry.ID,
		entry.Subject,
		entry.ListType,
		entry.Scope,
		entry.Reason,
		entry.AddedBy,
		entry.AddedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert list entry: %w", err)
	}
	return result, nil
}

// IsListed reports whether an active entry exists for the subject
func (r *AccessListRepository) IsListed(ctx context.Context, scope models.ListScope, subject string, listType models.ListType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM access_list_entries
			WHERE subject = $1 AND scope = $2 AND list_type = $3 AND active = true
		)
	`

	var listed bool
	if err := r.db.Conn(ctx).QueryRow(ctx, query, subject, scope, listType).Scan(&listed); err != nil {
		return false, fmt.Errorf("failed to check list entry: %w", database.MapPostgresError(err))
	}
	return listed, nil
}

// Deactivate marks the entry inactive. Returns ErrNotFound when no active entry matches.
func (r *AccessListRepository) Deactivate(ctx context.Context, scope models.ListScope, subject string, listType models.ListType) error {
	query := `
		UPDATE access_list_entries SET active = false
		WHERE subject = $1 AND scope = $2 AND list_type = $3 AND active = true
	`

	result, err := r.db.Conn(ctx).Exec(ctx, query, subject, scope, listType)
	if err != nil {
		return fmt.Errorf("failed to deactivate list entry: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// List returns active entries. Empty filters match everything.
func (r *AccessListRepository) List(ctx context.Context, listType models.ListType, scope models.ListScope) ([]*models.ListEntry, error) {
	query := `
		SELECT ` + listEntryColumns + `
		FROM access_list_entries
		WHERE active = true
		  AND ($1 = '' OR list_type = $1)
		  AND ($2 = '' OR scope = $2)
		ORDER BY added_at DESC
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, string(listType), string(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to query list entries: %w", database.MapPostgresError(err))
	}

	return scanRows(rows, scanListEntryRow)
}
