package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streamrig/streamrig/pkg/mapping"
	"github.com/streamrig/streamrig/pkg/models"
)

// MappingStore is the persistence surface the mapping service needs. May be
// nil (persistence disabled; engine state is process-local).
type MappingStore interface {
	SaveMapping(ctx context.Context, m *models.Mapping) error
	DeleteMapping(ctx context.Context, id string) error
	LoadMappings(ctx context.Context) ([]*models.Mapping, error)
}

// MappingService owns mapping admission: structural validation and regex
// safety run in the engine, then the accepted mapping is written through to
// the store.
type MappingService struct {
	engine *mapping.Engine
	store  MappingStore
}

// NewMappingService creates the service. store may be nil.
func NewMappingService(engine *mapping.Engine, store MappingStore) *MappingService {
	return &MappingService{engine: engine, store: store}
}

// Load hydrates the engine from the store. Rows that fail admission (for
// example a pattern rejected by a newer safety guard) are skipped and
// logged, never fatal.
func (s *MappingService) Load(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	mappings, err := s.store.LoadMappings(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading mappings: %w", err)
	}

	loaded := 0
	for _, m := range mappings {
		if err := s.engine.Upsert(m); err != nil {
			slog.Warn("Persisted mapping rejected at load", "mapping_id", m.ID, "error", err)
			continue
		}
		loaded++
	}
	slog.Info("Mappings loaded", "count", loaded, "skipped", len(mappings)-loaded)
	return loaded, nil
}

// Upsert admits a mapping and persists it.
func (s *MappingService) Upsert(ctx context.Context, m *models.Mapping) error {
	if err := s.engine.Upsert(m); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if s.store != nil {
		if err := s.store.SaveMapping(ctx, m); err != nil {
			return fmt.Errorf("persisting mapping %s: %w", m.ID, err)
		}
	}
	return nil
}

// Delete removes a mapping from the engine and the store.
func (s *MappingService) Delete(ctx context.Context, id string) error {
	if _, ok := s.engine.Get(id); !ok {
		return fmt.Errorf("%w: mapping %s", ErrNotFound, id)
	}
	s.engine.Remove(id)
	if s.store != nil {
		if err := s.store.DeleteMapping(ctx, id); err != nil {
			return fmt.Errorf("deleting mapping %s: %w", id, err)
		}
	}
	return nil
}

// Get returns one mapping.
func (s *MappingService) Get(id string) (models.Mapping, error) {
	m, ok := s.engine.Get(id)
	if !ok {
		return models.Mapping{}, fmt.Errorf("%w: mapping %s", ErrNotFound, id)
	}
	return m, nil
}

// List returns all mappings, sorted by id.
func (s *MappingService) List() []models.Mapping {
	return s.engine.List()
}

// SetEnabled toggles a mapping and persists the new state.
func (s *MappingService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if !s.engine.SetEnabled(id, enabled) {
		return fmt.Errorf("%w: mapping %s", ErrNotFound, id)
	}
	if s.store != nil {
		m, _ := s.engine.Get(id)
		if err := s.store.SaveMapping(ctx, &m); err != nil {
			return fmt.Errorf("persisting mapping %s: %w", id, err)
		}
	}
	return nil
}

// Export returns the full mapping set for backup.
func (s *MappingService) Export() []models.Mapping {
	return s.engine.List()
}

// Import admits a batch of mappings. Invalid entries are skipped; the count
// of accepted mappings and the joined admission errors are returned.
func (s *MappingService) Import(ctx context.Context, mappings []models.Mapping) (int, error) {
	accepted := 0
	var errs []error
	for i := range mappings {
		m := mappings[i]
		if err := s.Upsert(ctx, &m); err != nil {
			errs = append(errs, fmt.Errorf("mapping %s: %w", m.ID, err))
			continue
		}
		accepted++
	}
	return accepted, errors.Join(errs...)
}
