package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gradewatch/gradewatch/internal/crypto"
)

const dialogKeyPrefix = "gradewatch:dialog:"

// RedisStore persists encrypted dialog state in Redis, relying on Redis TTL
// for the idle-expiry guarantee.
type RedisStore struct {
	client *goredis.Client
	gate   *crypto.Gate
	log    *slog.Logger
}

// NewRedisStore initializes a Redis-backed Store implementation.
func NewRedisStore(client *goredis.Client, gate *crypto.Gate, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		gate:   gate,
		log:    log,
	}
}

// Get returns the stored dialog state, or the default state when the entry is
// absent, expired, or cannot be decrypted.
func (s *RedisStore) Get(ctx context.Context, chatID int64) (*User, error) {
	key := redisDialogKey(chatID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return &User{}, nil
		}

		s.log.Error("failed to get dialog state from redis", "key", key, "error", err)
		return nil, err
	}

	plaintext, err := s.gate.Decrypt(data)
	if err != nil {
		s.log.Warn("dropping undecryptable dialog state", "key", key, "error", err)
		_ = s.client.Del(ctx, key).Err()
		return &User{}, nil
	}

	var user User
	if err := json.Unmarshal([]byte(plaintext), &user); err != nil {
		s.log.Warn("dropping unparsable dialog state", "key", key, "error", err)
		_ = s.client.Del(ctx, key).Err()
		return &User{}, nil
	}

	return &user, nil
}

// Save stores the encrypted state and resets the expiry window.
func (s *RedisStore) Save(ctx context.Context, chatID int64, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode dialog state: %w", err)
	}

	key := redisDialogKey(chatID)
	if err := s.client.Set(ctx, key, s.gate.Encrypt(string(data)), TTL).Err(); err != nil {
		s.log.Error("failed to save dialog state in redis", "key", key, "error", err)
		return err
	}

	return nil
}

// Remove deletes the stored state for the given chat.
func (s *RedisStore) Remove(ctx context.Context, chatID int64) error {
	key := redisDialogKey(chatID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.log.Error("failed to remove dialog state", "key", key, "error", err)
		return err
	}

	return nil
}

func redisDialogKey(chatID int64) string {
	return dialogKeyPrefix + crypto.HashChatID(chatID)
}
