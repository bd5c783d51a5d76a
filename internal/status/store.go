// Package status keeps the cluster-visible device online record in redis.
// Each key stores the id of the instance holding the device's socket and
// expires after the heartbeat timeout, so a crashed instance's devices fall
// offline without cleanup.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store mirrors device connectivity into redis.
type Store struct {
	client     *redis.Client
	instanceID string
	ttl        time.Duration
}

// NewStore builds a store. ttl should match the heartbeat timeout.
func NewStore(client *redis.Client, instanceID string, ttl time.Duration) *Store {
	return &Store{client: client, instanceID: instanceID, ttl: ttl}
}

func key(deviceNo string) string {
	return fmt.Sprintf("device:online:%s", deviceNo)
}

// MarkOnline records (or refreshes) the device as held by this instance.
func (s *Store) MarkOnline(ctx context.Context, deviceNo string) error {
	return s.client.Set(ctx, key(deviceNo), s.instanceID, s.ttl).Err()
}

// MarkOffline drops the record.
func (s *Store) MarkOffline(ctx context.Context, deviceNo string) error {
	return s.client.Del(ctx, key(deviceNo)).Err()
}

// Lookup reports whether the device is online anywhere, and whether this
// instance is the one holding its connection.
func (s *Store) Lookup(ctx context.Context, deviceNo string) (online bool, local bool, err error) {
	holder, err := s.client.Get(ctx, key(deviceNo)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, holder == s.instanceID, nil
}
