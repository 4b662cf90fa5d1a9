package vault

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisVault backs shared kiosk deployments where several terminals run
// against one gateway host. Records expire with the refresh token lifetime.
type RedisVault struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisVault(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisVault {
	if prefix == "" {
		prefix = "console_session"
	}
	return &RedisVault{client: client, prefix: prefix, ttl: ttl}
}

func (v *RedisVault) Put(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return v.client.Set(ctx, v.key(rec.TerminalID), payload, v.ttl).Err()
}

func (v *RedisVault) Get(ctx context.Context, terminalID string) (*Record, error) {
	raw, err := v.client.Get(ctx, v.key(terminalID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	rec := &Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (v *RedisVault) Delete(ctx context.Context, terminalID string) error {
	return v.client.Del(ctx, v.key(terminalID)).Err()
}

func (v *RedisVault) key(terminalID string) string {
	return v.prefix + ":" + terminalID
}
