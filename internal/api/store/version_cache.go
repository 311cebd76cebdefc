package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Cache is a key-value cache with JSON values
type Cache interface {
	Get(key string, dest any) error
	Set(key string, value any, ttl time.Duration) error
	Delete(key string) error
	IsMiss(err error) bool
}

type versionCachedStore struct {
	Store
	cache  Cache
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// WithVersionCache caches ServerVersion of next under a key derived from
// server. Only the version is cached; schedule reference counts always come
// from next.
func WithVersionCache(next Store, cache Cache, server string, ttl time.Duration, logger zerolog.Logger) Store {
	return &versionCachedStore{
		Store:  next,
		cache:  cache,
		key:    fmt.Sprintf("jobdef:server:%s:version", server),
		ttl:    ttl,
		logger: logger,
	}
}

func (slf *versionCachedStore) ServerVersion(ctx context.Context) (int, error) {
	var version int
	err := slf.cache.Get(slf.key, &version)
	if err == nil {
		return version, nil
	}
	if !slf.cache.IsMiss(err) {
		slf.logger.Warn().Err(err).Str("key", slf.key).Msg("Error reading cached server version")
		// drop the unreadable entry
		if err := slf.cache.Delete(slf.key); err != nil {
			slf.logger.Warn().Err(err).Str("key", slf.key).Msg("Error dropping cached server version")
		}
	}

	version, err = slf.Store.ServerVersion(ctx)
	if err != nil {
		return 0, err
	}
	if err := slf.cache.Set(slf.key, version, slf.ttl); err != nil {
		slf.logger.Warn().Err(err).Str("key", slf.key).Msg("Error caching server version")
	}
	return version, nil
}
