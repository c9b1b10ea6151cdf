package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streamrig/streamrig/pkg/models"
	"github.com/streamrig/streamrig/pkg/pattern"
)

// PatternStore is the persistence surface the pattern service needs. May be
// nil (persistence disabled).
type PatternStore interface {
	SavePattern(ctx context.Context, p *models.Pattern) error
	DeletePattern(ctx context.Context, id string) error
	LoadPatterns(ctx context.Context) ([]*models.Pattern, error)
}

// PatternService owns pattern admission and write-through persistence.
type PatternService struct {
	engine *pattern.Engine
	store  PatternStore
}

// NewPatternService creates the service. store may be nil.
func NewPatternService(engine *pattern.Engine, store PatternStore) *PatternService {
	return &PatternService{engine: engine, store: store}
}

// Load hydrates the engine from the store.
func (s *PatternService) Load(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	patterns, err := s.store.LoadPatterns(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading patterns: %w", err)
	}

	loaded := 0
	for _, p := range patterns {
		if err := s.engine.Upsert(p); err != nil {
			slog.Warn("Persisted pattern rejected at load", "pattern_id", p.ID, "error", err)
			continue
		}
		loaded++
	}
	slog.Info("Patterns loaded", "count", loaded, "skipped", len(patterns)-loaded)
	return loaded, nil
}

// Upsert admits a pattern and persists it.
func (s *PatternService) Upsert(ctx context.Context, p *models.Pattern) error {
	if err := s.engine.Upsert(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if s.store != nil {
		if err := s.store.SavePattern(ctx, p); err != nil {
			return fmt.Errorf("persisting pattern %s: %w", p.ID, err)
		}
	}
	return nil
}

// Delete removes a pattern from the engine and the store. Mappings that
// reference it keep working until their next expansion, which fails with
// pattern-not-found.
func (s *PatternService) Delete(ctx context.Context, id string) error {
	if _, ok := s.engine.Get(id); !ok {
		return fmt.Errorf("%w: pattern %s", ErrNotFound, id)
	}
	s.engine.Remove(id)
	if s.store != nil {
		if err := s.store.DeletePattern(ctx, id); err != nil {
			return fmt.Errorf("deleting pattern %s: %w", id, err)
		}
	}
	return nil
}

// Get returns one pattern.
func (s *PatternService) Get(id string) (models.Pattern, error) {
	p, ok := s.engine.Get(id)
	if !ok {
		return models.Pattern{}, fmt.Errorf("%w: pattern %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns all patterns, sorted by id.
func (s *PatternService) List() []models.Pattern {
	return s.engine.List()
}

// Export returns the full pattern set for backup.
func (s *PatternService) Export() []models.Pattern {
	return s.engine.List()
}

// Import admits a batch of patterns, skipping invalid entries.
func (s *PatternService) Import(ctx context.Context, patterns []models.Pattern) (int, error) {
	accepted := 0
	var errs []error
	for i := range patterns {
		p := patterns[i]
		if err := s.Upsert(ctx, &p); err != nil {
			errs = append(errs, fmt.Errorf("pattern %s: %w", p.ID, err))
			continue
		}
		accepted++
	}
	return accepted, errors.Join(errs...)
}
