package store

import (
	"context"
	"fmt"
)

// LoadSettings returns all gateway settings as a flat name/value map.
func (s *Store) LoadSettings(ctx context.Context) (map[string]string, error) {
	const q = `SELECT name, value FROM gateway_settings`
	rows, err := s.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: load settings: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("store: scan setting: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

// UpsertSetting writes a single setting. Callers reload the settings cache
// afterwards; persisted values never take effect implicitly.
func (s *Store) UpsertSetting(ctx context.Context, name, value string) error {
	const q = `
INSERT INTO gateway_settings (name, value)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := s.Pool.Exec(ctx, q, name, value); err != nil {
		return fmt.Errorf("store: upsert setting: %w", err)
	}
	return nil
}
