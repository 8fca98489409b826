package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"feature-flag-service/internal/cache"
	"feature-flag-service/internal/domain"
	"feature-flag-service/internal/engine"
	"feature-flag-service/internal/observability"
	"feature-flag-service/internal/repository"
)

var (
	ErrInvalidKey          = errors.New("flag key must match [A-Za-z0-9_-]{1,100}")
	ErrInvalidDescription  = errors.New("description must be at most 500 characters")
	ErrInvalidOverrideType = errors.New("override type must be one of user, group, region")
	ErrInvalidEntityID     = errors.New("entity id must be between 1 and 100 characters")
	ErrEmptyContext        = errors.New("evaluation context must carry at least one identifier")
)

var flagKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

type FlagService interface {
	CreateFlag(ctx context.Context, key, description string, enabled bool) (*domain.FeatureFlag, error)
	ListFlags(ctx context.Context) ([]domain.FeatureFlag, error)
	GetFlag(ctx context.Context, key string) (*domain.FeatureFlag, error)
	SetEnabled(ctx context.Context, key string, enabled bool) error
	Evaluate(ctx context.Context, key string, ec engine.Context) (engine.Result, error)
	EvaluateAll(ctx context.Context, ec engine.Context) ([]engine.Result, error)
	SetOverride(ctx context.Context, key string, typ domain.OverrideType, entityID string, enabled bool) error
	RemoveOverride(ctx context.Context, key string, typ domain.OverrideType, entityID string) error
	DeleteFlag(ctx context.Context, key string) error
}

type flagService struct {
	repo     repository.FlagRepository
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

func NewFlagService(repo repository.FlagRepository, c cache.Cache, cacheTTL time.Duration, logger *slog.Logger) FlagService {
	if logger == nil {
		logger = slog.Default()
	}
	return &flagService{repo: repo, cache: c, cacheTTL: cacheTTL, logger: logger}
}

func (s *flagService) CreateFlag(ctx context.Context, key, description string, enabled bool) (*domain.FeatureFlag, error) {
	if !flagKeyRe.MatchString(key) {
		return nil, ErrInvalidKey
	}
	if len(description) > 500 {
		return nil, ErrInvalidDescription
	}
	flag := &domain.FeatureFlag{Key: key, Description: description, Enabled: enabled}
	if err := s.repo.Create(ctx, flag); err != nil {
		if errors.Is(err, repository.ErrFlagExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create flag: %w", err)
	}
	return flag, nil
}

func (s *flagService) ListFlags(ctx context.Context) ([]domain.FeatureFlag, error) {
	flags, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	return flags, nil
}

// GetFlag is the cache-aside read path: check the cache, fall back to the
// store, populate the cache on a successful store read. Cache failures on
// either side degrade to plain store reads.
func (s *flagService) GetFlag(ctx context.Context, key string) (*domain.FeatureFlag, error) {
	if !flagKeyRe.MatchString(key) {
		return nil, ErrInvalidKey
	}
	if payload, ok, err := s.cache.Get(ctx, key); err != nil {
		observability.RecordCacheEvent(ctx, "get", "error")
		s.logger.DebugContext(ctx, "flag cache read failed", "key", key, "error", err)
	} else if ok {
		var flag domain.FeatureFlag
		if err := json.Unmarshal(payload, &flag); err == nil {
			observability.RecordCacheEvent(ctx, "get", "hit")
			return &flag, nil
		}
		// A corrupt entry is treated as a miss and overwritten below.
		observability.RecordCacheEvent(ctx, "get", "error")
		s.logger.WarnContext(ctx, "discarding corrupt flag cache entry", "key", key)
	} else {
		observability.RecordCacheEvent(ctx, "get", "miss")
	}

	flag, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrFlagNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load flag: %w", err)
	}

	if payload, err := json.Marshal(flag); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
			observability.RecordCacheEvent(ctx, "set", "error")
			s.logger.DebugContext(ctx, "flag cache write failed", "key", key, "error", err)
		}
	}
	return flag, nil
}

func (s *flagService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if !flagKeyRe.MatchString(key) {
		return ErrInvalidKey
	}
	if err := s.repo.UpdateEnabled(ctx, key, enabled); err != nil {
		if errors.Is(err, repository.ErrFlagNotFound) {
			return err
		}
		return fmt.Errorf("update flag state: %w", err)
	}
	s.invalidate(ctx, key)
	return nil
}

func (s *flagService) Evaluate(ctx context.Context, key string, ec engine.Context) (engine.Result, error) {
	if ec.Empty() {
		return engine.Result{}, ErrEmptyContext
	}
	flag, err := s.GetFlag(ctx, key)
	if err != nil {
		return engine.Result{}, err
	}
	result := engine.Evaluate(flag, ec)
	observability.RecordEvaluation(ctx, string(result.Reason))
	return result, nil
}

// EvaluateAll resolves every flag for one context, ordered by flag key. The
// list path bypasses the cache; only point lookups are cached.
func (s *flagService) EvaluateAll(ctx context.Context, ec engine.Context) ([]engine.Result, error) {
	if ec.Empty() {
		return nil, ErrEmptyContext
	}
	flags, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	results := engine.EvaluateAll(flags, ec)
	for _, res := range results {
		observability.RecordEvaluation(ctx, string(res.Reason))
	}
	return results, nil
}

func (s *flagService) SetOverride(ctx context.Context, key string, typ domain.OverrideType, entityID string, enabled bool) error {
	if !flagKeyRe.MatchString(key) {
		return ErrInvalidKey
	}
	if !domain.ValidOverrideType(typ) {
		return ErrInvalidOverrideType
	}
	if entityID == "" || len(entityID) > 100 {
		return ErrInvalidEntityID
	}
	if err := s.repo.SetOverride(ctx, key, typ, entityID, enabled); err != nil {
		if errors.Is(err, repository.ErrFlagNotFound) {
			return err
		}
		return fmt.Errorf("set override: %w", err)
	}
	s.invalidate(ctx, key)
	return nil
}

func (s *flagService) RemoveOverride(ctx context.Context, key string, typ domain.OverrideType, entityID string) error {
	if !flagKeyRe.MatchString(key) {
		return ErrInvalidKey
	}
	if !domain.ValidOverrideType(typ) {
		return ErrInvalidOverrideType
	}
	if entityID == "" || len(entityID) > 100 {
		return ErrInvalidEntityID
	}
	if err := s.repo.RemoveOverride(ctx, key, typ, entityID); err != nil {
		if errors.Is(err, repository.ErrFlagNotFound) {
			return err
		}
		return fmt.Errorf("remove override: %w", err)
	}
	s.invalidate(ctx, key)
	return nil
}

func (s *flagService) DeleteFlag(ctx context.Context, key string) error {
	if !flagKeyRe.MatchString(key) {
		return ErrInvalidKey
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		if errors.Is(err, repository.ErrFlagNotFound) {
			return err
		}
		return fmt.Errorf("delete flag: %w", err)
	}
	s.invalidate(ctx, key)
	return nil
}

// invalidate drops the cached record after a committed mutation. Failures are
// logged and swallowed: the entry expires by TTL at the latest.
func (s *flagService) invalidate(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		observability.RecordCacheEvent(ctx, "invalidate", "error")
		s.logger.WarnContext(ctx, "flag cache invalidation failed", "key", key, "error", err)
		return
	}
	observability.RecordCacheEvent(ctx, "invalidate", "success")
}
