package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hivegrid/hub/internal/fault"
)

const (
	// opTimeout bounds every individual Redis operation.
	opTimeout = 5 * time.Second

	// maxRetries is the fixed retry budget before a failure surfaces as
	// a StoreFailure. Retries use linear backoff.
	maxRetries = 2

	retryBackoff = 100 * time.Millisecond
)

// RedisStore implements Store and Publisher over a Redis backend.
// The store is safe for concurrent use from multiple goroutines.
type RedisStore struct {
	rdb          *redis.Client
	instanceName string
}

// NewRedisStore creates a store for the given instance. All keys and
// channels are namespaced with the instance name.
func NewRedisStore(opts *redis.Options, instanceName string) (*RedisStore, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	return &RedisStore{
		rdb:          redis.NewClient(opts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.rdb.Ping(opCtx).Err(); err != nil {
		return fault.StoreFailure(err, "redis ping")
	}
	return nil
}

// namespaced returns the full Redis key for an instance-relative key.
// Pattern: hub:{instance}:{key}
func (s *RedisStore) namespaced(key string) string {
	return fmt.Sprintf("hub:%s:%s", s.instanceName, key)
}

// withRetry runs op with a per-attempt timeout and the fixed retry budget.
// redis.Nil is never retried; it is a definitive answer, not a failure.
func (s *RedisStore) withRetry(ctx context.Context, desc string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fault.StoreFailure(ctx.Err(), "%s", desc)
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		err := op(opCtx)
		cancel()

		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		lastErr = err
	}
	return fault.StoreFailure(lastErr, "%s", desc)
}

// Set writes value under key. A zero ttl means no expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	full := s.namespaced(key)
	return s.withRetry(ctx, fmt.Sprintf("set %s", key), func(ctx context.Context) error {
		return s.rdb.Set(ctx, full, value, ttl).Err()
	})
}

// Get returns the value under key, or a NotFound error if absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	full := s.namespaced(key)
	var value string
	err := s.withRetry(ctx, fmt.Sprintf("get %s", key), func(ctx context.Context) error {
		v, err := s.rdb.Get(ctx, full).Result()
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", fault.NotFound("key %s", key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Delete removes the given keys. Missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.namespaced(k)
	}
	return s.withRetry(ctx, "delete", func(ctx context.Context) error {
		return s.rdb.Del(ctx, full...).Err()
	})
}

// AddToSet adds member to the set at setKey.
func (s *RedisStore) AddToSet(ctx context.Context, setKey, member string) error {
	full := s.namespaced(setKey)
	return s.withRetry(ctx, fmt.Sprintf("sadd %s", setKey), func(ctx context.Context) error {
		return s.rdb.SAdd(ctx, full, member).Err()
	})
}

// RemoveFromSet removes member from the set at setKey.
func (s *RedisStore) RemoveFromSet(ctx context.Context, setKey, member string) error {
	full := s.namespaced(setKey)
	return s.withRetry(ctx, fmt.Sprintf("srem %s", setKey), func(ctx context.Context) error {
		return s.rdb.SRem(ctx, full, member).Err()
	})
}

// MembersOf returns all members of the set at setKey.
func (s *RedisStore) MembersOf(ctx context.Context, setKey string) ([]string, error) {
	full := s.namespaced(setKey)
	var members []string
	err := s.withRetry(ctx, fmt.Sprintf("smembers %s", setKey), func(ctx context.Context) error {
		m, err := s.rdb.SMembers(ctx, full).Result()
		if err != nil {
			return err
		}
		members = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

// KeysWithPrefix enumerates instance-relative keys sharing a prefix using
// SCAN. The namespace prefix is stripped from the results.
func (s *RedisStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	pattern := s.namespaced(prefix) + "*"
	nsLen := len(s.namespaced(""))

	var keys []string
	err := s.withRetry(ctx, fmt.Sprintf("scan %s", prefix), func(ctx context.Context) error {
		keys = keys[:0]
		iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val()[nsLen:])
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Publish sends payload to an instance-namespaced Pub/Sub channel.
// Delivery is at-most-once; slow subscribers may miss messages.
func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	full := s.namespaced(channel)
	return s.withRetry(ctx, fmt.Sprintf("publish %s", channel), func(ctx context.Context) error {
		return s.rdb.Publish(ctx, full, payload).Err()
	})
}

// Subscription is an active Pub/Sub subscription. Callers must Close it
// when done; context cancellation also stops delivery. Transient backend
// errors are handled inside go-redis (it reconnects and resubscribes), so
// the subscription surfaces payloads only.
type Subscription struct {
	messages <-chan []byte
	cancel   func()
	once     sync.Once
}

// Messages returns the channel of raw payloads.
func (s *Subscription) Messages() <-chan []byte {
	return s.messages
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe opens a subscription on an instance-namespaced channel.
// Payloads are delivered on a buffered channel (size 16) so a slow
// consumer does not block the reader goroutine indefinitely.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, s.namespaced(channel))

	msgCh := make(chan []byte, 16)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(msgCh)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case msgCh <- []byte(msg.Payload):
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		messages: msgCh,
		cancel:   cancelFunc,
	}, nil
}
