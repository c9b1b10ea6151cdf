package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/models"
)

// Setting key prefixes. One row per mapping/pattern, one row for the safety
// configuration.
const (
	mappingPrefix   = "mapping:"
	patternPrefix   = "pattern:"
	safetyConfigKey = "config:safety"
)

// put upserts one setting row.
func (s *Store) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}

// delete removes one setting row. Deleting an absent key is a no-op.
func (s *Store) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting setting %q: %w", key, err)
	}
	return nil
}

// listPrefix returns all values under a key prefix.
func (s *Store) listPrefix(ctx context.Context, prefix string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM settings WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing settings %q: %w", prefix, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

// SaveMapping persists one mapping.
func (s *Store) SaveMapping(ctx context.Context, m *models.Mapping) error {
	return s.put(ctx, mappingPrefix+m.ID, m)
}

// DeleteMapping removes one mapping.
func (s *Store) DeleteMapping(ctx context.Context, id string) error {
	return s.delete(ctx, mappingPrefix+id)
}

// LoadMappings returns all persisted mappings, ordered by id.
func (s *Store) LoadMappings(ctx context.Context) ([]*models.Mapping, error) {
	raws, err := s.listPrefix(ctx, mappingPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Mapping, 0, len(raws))
	for _, raw := range raws {
		var m models.Mapping
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decoding mapping: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

// SavePattern persists one pattern.
func (s *Store) SavePattern(ctx context.Context, p *models.Pattern) error {
	return s.put(ctx, patternPrefix+p.ID, p)
}

// DeletePattern removes one pattern.
func (s *Store) DeletePattern(ctx context.Context, id string) error {
	return s.delete(ctx, patternPrefix+id)
}

// LoadPatterns returns all persisted patterns, ordered by id.
func (s *Store) LoadPatterns(ctx context.Context) ([]*models.Pattern, error) {
	raws, err := s.listPrefix(ctx, patternPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Pattern, 0, len(raws))
	for _, raw := range raws {
		var p models.Pattern
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding pattern: %w", err)
		}
		out = append(out, &p)
	}
	return out, nil
}

// SaveSafetyConfig persists the runtime safety configuration.
func (s *Store) SaveSafetyConfig(ctx context.Context, cfg *config.SafetyConfig) error {
	return s.put(ctx, safetyConfigKey, cfg)
}

// LoadSafetyConfig returns the persisted safety configuration, or (nil, nil)
// when none has been saved yet.
func (s *Store) LoadSafetyConfig(ctx context.Context) (*config.SafetyConfig, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, safetyConfigKey).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading safety config: %w", err)
	}
	var cfg config.SafetyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding safety config: %w", err)
	}
	return &cfg, nil
}
