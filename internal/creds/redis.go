package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	accountKeyPrefix = "device:account:"
	infoKeyPrefix    = "device:info:"
)

var _ Lookup = (*RedisLookup)(nil)

// RedisLookup reads credential records provisioned by the platform into the
// shared Redis instance as JSON values.
type RedisLookup struct {
	client *redis.Client
}

func NewRedisLookup(client *redis.Client) *RedisLookup {
	return &RedisLookup{client: client}
}

func (l *RedisLookup) FindAccountByUsername(ctx context.Context, username string) (*Account, error) {
	raw, err := l.client.Get(ctx, accountKeyPrefix+username).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("creds: account lookup %q: %w", username, err)
	}

	var acct Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil {
		return nil, fmt.Errorf("creds: decode account %q: %w", username, err)
	}
	return &acct, nil
}

func (l *RedisLookup) FindDeviceInfo(ctx context.Context, principalID string) (*DeviceInfo, error) {
	raw, err := l.client.Get(ctx, infoKeyPrefix+principalID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("creds: device info lookup %q: %w", principalID, err)
	}

	var info DeviceInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("creds: decode device info %q: %w", principalID, err)
	}
	return &info, nil
}
