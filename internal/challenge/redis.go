package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const fastKeyPrefix = "apc"

// FastStore is the Redis fast tier. Entries carry a TTL equal to the time
// remaining until the challenge deadline, so natural expiry and challenge
// expiry coincide.
type FastStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewFastStore(redisClient redis.UniversalClient, prefix string) *FastStore {
	if prefix == "" {
		prefix = fastKeyPrefix
	}
	return &FastStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *FastStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *FastStore) Save(ctx context.Context, ch *Challenge, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	encoded, err := encodeRecord(ch)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(ch.Token), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *FastStore) Find(ctx context.Context, token string) (*Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ch, err := decodeRecord(data)
	if err != nil {
		// Undecodable entry: drop it and fall back to the durable tier.
		_ = s.redis.Del(ctx, s.key(token)).Err()
		return nil, ErrNotFound
	}

	if ch.Expired(time.Now()) {
		_ = s.redis.Del(ctx, s.key(token)).Err()
		return nil, ErrNotFound
	}
	return ch, nil
}

// IncrementAttempts bumps the mirrored attempt counter. Best effort only;
// the durable tier owns the authoritative count. The WATCH loop keeps the
// read-rewrite of the record from clobbering a concurrent update.
func (s *FastStore) IncrementAttempts(ctx context.Context, token string) error {
	const maxRetries = 4
	key := s.key(token)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			ch, err := decodeRecord(data)
			if err != nil {
				return err
			}

			ch.Attempts++

			ttl := time.Until(ch.ExpiresAt)
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeRecord(ch)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	return nil
}

func (s *FastStore) Delete(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
