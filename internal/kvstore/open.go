package kvstore

import (
	"context"
	"fmt"

	"github.com/ashtonliu88/diff-digest/core/config"
)

// Open builds the store selected by cfg. The returned close function is
// always non-nil.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.CacheBackendFile, "":
		return NewFileStore(cfg.Path), noop, nil
	case config.CacheBackendMemory:
		return NewMemoryStore(), noop, nil
	case config.CacheBackendRedis:
		store, err := NewRedisStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
