package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"printstudio/internal/domain/model"
	repo "printstudio/internal/repository"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// サーバー側セッションをRedisに置く。期限はRedisのTTLに任せる。
type RedisStore struct {
	rdb redis.UniversalClient
}

var _ repo.SessionStore = (*RedisStore)(nil)

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, sess model.Session, ttl time.Duration) error {
	if sess.ID == "" {
		return errors.New("session id required")
	}
	if ttl <= 0 {
		return fmt.Errorf("invalid session ttl %s", ttl)
	}

	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+sess.ID, b, ttl).Err()
}

// 無い（期限切れ・失効済み）なら repo.ErrNotFound
func (s *RedisStore) Find(ctx context.Context, sessionID string) (model.Session, error) {
	b, err := s.rdb.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Session{}, err
	}

	var sess model.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (s *RedisStore) Revoke(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, keyPrefix+sessionID).Err()
}

// 起動時の疎通確認
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}
