package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platformbuilds/vigil-core/internal/metrics"
)

// valkeySingleImpl implements Store against a single-node Valkey/Redis
// instance.
type valkeySingleImpl struct {
	client *redis.Client
	ttl    time.Duration
}

func NewValkeySingle(addr string, db int, password string, defaultTTL time.Duration) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey single-node: %w", err)
	}

	return &valkeySingleImpl{
		client: client,
		ttl:    defaultTTL,
	}, nil
}

func (v *valkeySingleImpl) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := v.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		metrics.CacheRequestsTotal.WithLabelValues("get", "miss").Inc()
		return nil, fmt.Errorf("key not found: %s", key)
	}

	if err != nil {
		metrics.CacheRequestsTotal.WithLabelValues("get", "error").Inc()
		return nil, err
	}

	metrics.CacheRequestsTotal.WithLabelValues("get", "hit").Inc()
	return b, nil
}

func (v *valkeySingleImpl) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value, key)
	if err != nil {
		metrics.CacheRequestsTotal.WithLabelValues("set", "error").Inc()
		return err
	}
	if ttl <= 0 {
		ttl = v.ttl
	}
	if err := v.client.Set(ctx, key, data, ttl).Err(); err != nil {
		metrics.CacheRequestsTotal.WithLabelValues("set", "error").Inc()
		return err
	}
	metrics.CacheRequestsTotal.WithLabelValues("set", "success").Inc()
	return nil
}

func (v *valkeySingleImpl) Delete(ctx context.Context, key string) error {
	if err := v.client.Del(ctx, key).Err(); err != nil {
		metrics.CacheRequestsTotal.WithLabelValues("delete", "error").Inc()
		return err
	}
	metrics.CacheRequestsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

func (v *valkeySingleImpl) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := encode(value, key)
	if err != nil {
		metrics.CacheRequestsTotal.WithLabelValues("setnx", "error").Inc()
		return false, err
	}
	if ttl <= 0 {
		ttl = v.ttl
	}
	ok, err := v.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		metrics.CacheRequestsTotal.WithLabelValues("setnx", "error").Inc()
		return false, err
	}
	metrics.CacheRequestsTotal.WithLabelValues("setnx", "success").Inc()
	return ok, nil
}

func encode(value interface{}, key string) ([]byte, error) {
	switch x := value.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		j, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %s: %w", key, err)
		}
		return j, nil
	}
}
