package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/desertthunder/ytrpc/internal/shared"
)

// AutoReconnectKey is the settings row holding the auto-reconnect preference.
const AutoReconnectKey = "auto_reconnect"

// SettingsRepository stores string preferences keyed by name.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new [SettingsRepository] with the given database connection
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the stored value for key, or [shared.ErrSettingNotFound].
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", shared.ErrSettingNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query setting: %w", err)
	}
	return value, nil
}

// Set inserts or replaces the value for key.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	return nil
}

// AutoReconnect reports whether retries may be scheduled. A missing row means enabled.
func (r *SettingsRepository) AutoReconnect(ctx context.Context) (bool, error) {
	value, err := r.Get(ctx, AutoReconnectKey)
	if errors.Is(err, shared.ErrSettingNotFound) {
		return true, nil
	}
	if err != nil {
		return true, err
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return true, fmt.Errorf("%w: %s = %q", shared.ErrInvalidInput, AutoReconnectKey, value)
	}
	return enabled, nil
}

// SetAutoReconnect persists the auto-reconnect preference.
func (r *SettingsRepository) SetAutoReconnect(ctx context.Context, enabled bool) error {
	return r.Set(ctx, AutoReconnectKey, strconv.FormatBool(enabled))
}
