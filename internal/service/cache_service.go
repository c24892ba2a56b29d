package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Generation(ctx context.Context, key string) (int64, error)
	IncrGeneration(ctx context.Context, key string) (int64, error)
}

// CacheService wraps a CacheRepository with metrics and logging. Cache
// failures never fail the caller's request; they degrade to a miss.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	now        func() time.Time

	// unix nanos until which reads bypass the cache after a failed bump
	bypassUntil atomic.Int64
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled, now: time.Now}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry and reports whether it was a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return true
}

// Set stores the value in cache using the default TTL when ttl is zero.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes cached values matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

// Generation returns the current generation of namespace for use in cache
// keys. ok is false when the cache is disabled or cannot vouch for freshness;
// the caller must then neither read nor write cached entries.
func (s *CacheService) Generation(ctx context.Context, namespace string) (int64, bool) {
	if !s.Enabled() {
		return 0, false
	}
	if s.now().UnixNano() < s.bypassUntil.Load() {
		return 0, false
	}
	gen, err := s.repo.Generation(ctx, generationKey(namespace))
	if err != nil {
		s.logger.Warn("cache generation read failed", zap.String("namespace", namespace), zap.Error(err))
		return 0, false
	}
	return gen, true
}

// Bump advances the generation of namespace after a mutation. Entries keyed
// with an older generation are never read again, including ones written back
// by a read that started before the mutation. If the bump fails, this
// instance bypasses the cache for one TTL so stale entries expire unread.
func (s *CacheService) Bump(ctx context.Context, namespace string) {
	if !s.Enabled() {
		return
	}
	if _, err := s.repo.IncrGeneration(ctx, generationKey(namespace)); err != nil {
		s.bypassUntil.Store(s.now().Add(s.defaultTTL).UnixNano())
		s.logger.Warn("cache generation bump failed, bypassing cache", zap.String("namespace", namespace), zap.Error(err))
		return
	}
	// old generations only waste memory until their TTL; drop them early
	s.Invalidate(ctx, namespace+":*")
}

func generationKey(namespace string) string {
	return "generation:" + namespace
}
