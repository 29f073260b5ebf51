// Package store holds the ephemeral, TTL backed state shared by the room
// relay components. Nothing written here is expected to survive a restart.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNil is returned when a key or hash field does not exist.
var ErrNil = errors.New("store: nil")

// ErrWrongType is returned when a hash operation targets a plain value or
// the other way around.
var ErrWrongType = errors.New("store: operation against a key holding the wrong kind of value")

// Store is the subset of key-value operations the relay needs. Values are
// opaque bytes; a ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HDel(ctx context.Context, key, field string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// GetJSON decodes the value at key into dest. It reports false when the
// key does not exist.
func GetJSON(ctx context.Context, s Store, key string, dest any) (bool, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNil) {
			return false, nil
		}
		return false, fmt.Errorf("get %q: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal %q: %w", key, err)
	}

	return true, nil
}

// SetJSON encodes value and stores it at key with the given ttl.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}

	if err := s.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	return nil
}
