package repositories

import (
	"context"
	"fmt"

	"github.com/rizonesoft/isotone-sub002/internal/database"
	"github.com/rizonesoft/isotone-sub002/internal/models"
)

// SettingsRepository reads and writes protection_settings rows
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func scanSettingRow(row rowScanner) (*models.Setting, error) {
	var s models.Setting
	if err := row.Scan(&s.Key, &s.Value, &s.Type, &s.UpdatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// List returns every stored setting
func (r *SettingsRepository) List(ctx context.Context) ([]*models.Setting, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		`SELECT key, value, value_type, updated_at FROM protection_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", database.MapPostgresError(err))
	}

	return scanRows(rows, scanSettingRow)
}

// Upsert stores a setting value
func (r *SettingsRepository) Upsert(ctx context.Context, s *models.Setting) (*models.Setting, error) {
	query := `
		INSERT INTO protection_settings (key, value, value_type, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			value_type = EXCLUDED.value_type,
			updated_at = EXCLUDED.updated_at
		RETURNING key, value, value_type, updated_at
	`

	result, err := scanSettingRow(r.db.Conn(ctx).QueryRow(ctx, query, s.Key, s.Value, s.Type, s.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert setting: %w", err)
	}
	return result, nil
}
