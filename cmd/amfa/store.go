package main

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authflow/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// openStore builds the configured session store. The redis driver without an
// address runs an embedded miniredis, which lives only as long as the process.
func openStore(ctx context.Context, cfg storeConfig, logger *zap.Logger) (session.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		return session.NewMemoryStore(), func() {}, nil
	case "file":
		return session.NewFileStore(cfg.Path), func() {}, nil
	case "redis":
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	addr := cfg.Redis.Addr
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		logger.Info("using embedded redis", zap.String("addr", addr))
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	cleanup := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	logger.Info("using redis", zap.String("addr", addr))
	return session.NewRedisStore(client, cfg.Redis.Prefix, cfg.Redis.Profile), cleanup, nil
}
