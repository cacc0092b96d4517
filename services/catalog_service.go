package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/pkg/caching"
	"floraGuardAPI/internal/pkg/logger"
)

const definitionsCacheKey = "gamification:achievement_definitions:v1"

var errEmptyCatalog = errors.New("achievement catalog is empty")

// CatalogService serves achievement definitions through a read-through cache.
// When the definitions table was never seeded it serves the bundled catalog.
type CatalogService struct {
	store Store
	cache caching.Cache
	ttl   time.Duration
	log   *logger.Logger
}

func NewCatalogService(store Store, cache caching.Cache, ttl time.Duration, log *logger.Logger) *CatalogService {
	return &CatalogService{
		store: store,
		cache: cache,
		ttl:   ttl,
		log:   log.With("service", "CatalogService"),
	}
}

func (s *CatalogService) Definitions(ctx context.Context) ([]achievement.Definition, error) {
	if s.cache == nil {
		return s.load(ctx)
	}

	var loadErr error
	defs, err := caching.UseCache(ctx, s.cache, definitionsCacheKey, s.ttl, func() ([]achievement.Definition, error) {
		defs, err := s.load(ctx)
		loadErr = err
		return defs, err
	})
	if err != nil && loadErr == nil {
		// cache backend failure, go to the source
		s.log.Warn("definition cache unavailable", "error", err)
		return s.load(ctx)
	}
	return defs, err
}

func (s *CatalogService) load(ctx context.Context) ([]achievement.Definition, error) {
	defs, err := s.store.ListAchievementDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	if len(defs) > 0 {
		return defs, nil
	}

	s.log.Info("achievement_definitions is empty, serving bundled catalog")
	defs, err = achievement.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, errEmptyCatalog
	}
	return defs, nil
}

// Seed writes the bundled catalog into the store and drops the cached copy.
func (s *CatalogService) Seed(ctx context.Context) (int, error) {
	defs, err := achievement.DefaultCatalog()
	if err != nil {
		return 0, err
	}
	if err := s.store.UpsertAchievementDefinitions(ctx, defs); err != nil {
		return 0, fmt.Errorf("failed to seed catalog: %w", err)
	}
	s.Invalidate(ctx)
	return len(defs), nil
}

func (s *CatalogService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, definitionsCacheKey); err != nil {
		s.log.Warn("failed to drop cached definitions", "error", err)
	}
}
