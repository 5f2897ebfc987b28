package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/session-auth-api/internal/models"
)

const (
	defaultRedisKeyPrefix = "auth"
	// expiredRetention keeps expired records readable so lookups can still report them as expired.
	expiredRetention = 24 * time.Hour
	revokeMaxRetries = 3
)

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisRefreshTokenRepository persists refresh tokens in Redis.
//
// Layout: <prefix>:rt:tok:<token> holds the JSON record, <prefix>:rt:id:<id> maps the record id
// back to the token value and <prefix>:rt:user:<userID> is the set of token values per user.
// Not-found lookups return sql.ErrNoRows so callers share handling with the Postgres store.
type RedisRefreshTokenRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisRefreshTokenRepository constructs a Redis-backed refresh token store.
func NewRedisRefreshTokenRepository(client *redis.Client, prefix string, logger *zap.Logger) *RedisRefreshTokenRepository {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRefreshTokenRepository{client: client, prefix: prefix, logger: logger}
}

func (r *RedisRefreshTokenRepository) tokenKey(value string) string {
	return r.prefix + ":rt:tok:" + value
}

func (r *RedisRefreshTokenRepository) idKey(id string) string {
	return r.prefix + ":rt:id:" + id
}

func (r *RedisRefreshTokenRepository) userKey(userID string) string {
	return r.prefix + ":rt:user:" + userID
}

func retentionTTL(expiry time.Time) time.Duration {
	ttl := time.Until(expiry) + expiredRetention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// FindActiveByUser returns a non-revoked token owned by the user, expired or not.
func (r *RedisRefreshTokenRepository) FindActiveByUser(ctx context.Context, userID string) (*models.RefreshToken, error) {
	values, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", userID, err)
	}

	for _, value := range values {
		rt, err := r.load(ctx, r.client, value)
		if errors.Is(err, sql.ErrNoRows) {
			if remErr := r.client.SRem(ctx, r.userKey(userID), value).Err(); remErr != nil {
				r.logger.Warn("failed to prune stale refresh token index", zap.String("user_id", userID), zap.Error(remErr))
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if !rt.Revoked {
			return rt, nil
		}
	}
	return nil, sql.ErrNoRows
}

// Create stores the token and its indexes in one transaction. A token value that already
// exists yields ErrDuplicateKey.
func (r *RedisRefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal refresh token: %w", err)
	}

	key := r.tokenKey(token.Token)
	ttl := retentionTTL(token.ExpiryDate)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateKey
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			pipe.Set(ctx, r.idKey(token.ID), token.Token, ttl)
			pipe.SAdd(ctx, r.userKey(token.UserID), token.Token)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateKey), errors.Is(err, redis.TxFailedErr):
		// a concurrent writer claimed the same value between WATCH and EXEC
		return ErrDuplicateKey
	default:
		return fmt.Errorf("redis create refresh token: %w", err)
	}
}

// FindByValue returns a non-revoked refresh token by its opaque value.
func (r *RedisRefreshTokenRepository) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	rt, err := r.load(ctx, r.client, value)
	if err != nil {
		return nil, err
	}
	if rt.Revoked {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

// Delete removes a refresh token record and its indexes. Deleting a missing record is not an error.
func (r *RedisRefreshTokenRepository) Delete(ctx context.Context, id string) error {
	value, err := r.client.Get(ctx, r.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("redis get refresh token id %s: %w", id, err)
	}

	rt, err := r.load(ctx, r.client, value)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.tokenKey(value), r.idKey(id))
		if rt != nil {
			pipe.SRem(ctx, r.userKey(rt.UserID), value)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete refresh token: %w", err)
	}
	return nil
}

// Revoke marks the token revoked whatever its current state and returns the updated record.
func (r *RedisRefreshTokenRepository) Revoke(ctx context.Context, value string) (*models.RefreshToken, error) {
	key := r.tokenKey(value)
	var revoked *models.RefreshToken

	txf := func(tx *redis.Tx) error {
		rt, err := r.load(ctx, tx, value)
		if err != nil {
			return err
		}
		rt.Revoked = true
		payload, err := json.Marshal(rt)
		if err != nil {
			return fmt.Errorf("marshal refresh token: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, payload, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			revoked = rt
		}
		return err
	}

	for attempt := 0; attempt < revokeMaxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			return nil, fmt.Errorf("redis revoke refresh token: %w", err)
		}
		return revoked, nil
	}
	return nil, fmt.Errorf("redis revoke refresh token: %w", redis.TxFailedErr)
}

func (r *RedisRefreshTokenRepository) load(ctx context.Context, c redisGetter, value string) (*models.RefreshToken, error) {
	raw, err := c.Get(ctx, r.tokenKey(value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("redis get refresh token: %w", err)
	}
	var rt models.RefreshToken
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, fmt.Errorf("unmarshal refresh token: %w", err)
	}
	return &rt, nil
}
