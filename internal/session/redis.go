package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const fastKeyPrefix = "as"

// FastStore is the Redis fast tier for the per-request session lookup.
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

func (s *FastStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *FastStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	encoded, err := encodeRecord(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.ID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *FastStore) Find(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := decodeRecord(data)
	if err != nil {
		_ = s.redis.Del(ctx, s.key(sessionID)).Err()
		return nil, ErrNotFound
	}

	if sess.Expired(time.Now()) {
		_ = s.redis.Del(ctx, s.key(sessionID)).Err()
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *FastStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
