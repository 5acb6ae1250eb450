package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"papertrade/internal/ledger"
)

const defaultSnapshotKey = "papertrade:ledger:snapshot"

// RedisGateway keeps the ledger document under a single key.
type RedisGateway struct {
	rdb         *redis.Client
	key         string
	legacyAsset ledger.AssetID
}

func NewRedisGateway(rdb *redis.Client, key string) *RedisGateway {
	if key == "" {
		key = defaultSnapshotKey
	}
	return &RedisGateway{rdb: rdb, key: key}
}

func (g *RedisGateway) WithLegacyAsset(asset ledger.AssetID) *RedisGateway {
	g.legacyAsset = asset
	return g
}

// Load returns nil, nil when the key does not exist.
func (g *RedisGateway) Load(ctx context.Context) (*ledger.Snapshot, error) {
	data, err := g.rdb.Get(ctx, g.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", g.key, err)
	}
	snap, err := MigrateSnapshotFor(data, g.legacyAsset)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (g *RedisGateway) Save(ctx context.Context, snap *ledger.Snapshot) error {
	snap.Version = ledger.SnapshotVersion
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := g.rdb.Set(ctx, g.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", g.key, err)
	}
	return nil
}

// Ping checks connectivity at startup.
func (g *RedisGateway) Ping(ctx context.Context) error {
	return g.rdb.Ping(ctx).Err()
}
