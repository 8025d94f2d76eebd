package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
)

const (
	fieldID        = "id"
	fieldThreadID  = "thread_id"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// RedisSessionRepo Redis 会话存储：
//
//	<prefix>:session:<id>             hash   id, thread_id, created_at, updated_at
//	<prefix>:session:<id>:transcript  list   JSON messages
//	<prefix>:session:<id>:lock        string turn lock token
//
// 每次写入都会刷新两个 key 的 TTL
type RedisSessionRepo struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration
}

// NewRedisSessionRepo 创建 Redis 会话仓库
func NewRedisSessionRepo(client *redis.Client, prefix string, ttl, lockTTL time.Duration) *RedisSessionRepo {
	return &RedisSessionRepo{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		lockTTL: lockTTL,
	}
}

func (r *RedisSessionRepo) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *RedisSessionRepo) transcriptKey(id string) string {
	return r.sessionKey(id) + ":transcript"
}

func (r *RedisSessionRepo) lockKey(id string) string {
	return r.sessionKey(id) + ":lock"
}

func (r *RedisSessionRepo) Create(ctx context.Context, session *types.Session) error {
	key := r.sessionKey(session.ID)
	n, err := r.client.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if n > 0 {
		return apperrors.Newf(apperrors.ErrConflict, "session %s already exists", session.ID)
	}

	values := []interface{}{
		fieldID, session.ID,
		fieldCreatedAt, session.CreatedAt.UnixMilli(),
		fieldUpdatedAt, session.UpdatedAt.UnixMilli(),
	}
	// 绑定前不写 thread_id，留给 HSETNX 抢占
	if session.ThreadID != "" {
		values = append(values, fieldThreadID, session.ThreadID)
	}

	err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepo) Get(ctx context.Context, id string) (*types.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.sessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.New(apperrors.ErrChatSessionNotFound, id)
	}

	raw, err := r.client.LRange(ctx, r.transcriptKey(id), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}

	transcript := make([]*types.Message, 0, len(raw))
	for i, item := range raw {
		var msg types.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode transcript entry %d: %w", i, err)
		}
		transcript = append(transcript, &msg)
	}

	return &types.Session{
		ID:         id,
		ThreadID:   fields[fieldThreadID],
		Transcript: transcript,
		CreatedAt:  parseMillis(fields[fieldCreatedAt]),
		UpdatedAt:  parseMillis(fields[fieldUpdatedAt]),
	}, nil
}

// BindThread 通过 HSETNX 抢占 thread_id 字段
func (r *RedisSessionRepo) BindThread(ctx context.Context, id, threadID string) (string, error) {
	key := r.sessionKey(id)
	n, err := r.client.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to check session: %w", err)
	}
	if n == 0 {
		return "", apperrors.New(apperrors.ErrChatSessionNotFound, id)
	}

	if _, err := r.client.HSetNX(ctx, key, fieldThreadID, threadID); err != nil {
		return "", fmt.Errorf("failed to bind thread: %w", err)
	}
	fields, err := r.client.HGetAll(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	if err := r.touch(ctx, id); err != nil {
		return "", err
	}
	return fields[fieldThreadID], nil
}

func (r *RedisSessionRepo) Append(ctx context.Context, id string, msg *types.Message) error {
	n, err := r.client.Exists(ctx, r.sessionKey(id))
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.ErrChatSessionNotFound, id)
	}

	length, err := r.client.LLen(ctx, r.transcriptKey(id))
	if err != nil {
		return fmt.Errorf("failed to get transcript length: %w", err)
	}
	msg.Index = int(length)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if _, err := r.client.RPush(ctx, r.transcriptKey(id), payload); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return r.touch(ctx, id)
}

func (r *RedisSessionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.client.Del(ctx, r.sessionKey(id), r.transcriptKey(id)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Lock 获取带 token 的锁，lockTTL 后自动过期
func (r *RedisSessionRepo) Lock(ctx context.Context, id string) (func(), error) {
	n, err := r.client.Exists(ctx, r.sessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if n == 0 {
		return nil, apperrors.New(apperrors.ErrChatSessionNotFound, id)
	}

	key := r.lockKey(id)
	token, err := r.client.Lock(ctx, key, r.lockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotHeld) {
			return nil, apperrors.New(apperrors.ErrChatTurnInProgress)
		}
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.Unlock(ctx, key, token)
	}, nil
}

func (r *RedisSessionRepo) touch(ctx context.Context, id string) error {
	key := r.sessionKey(id)
	err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldUpdatedAt, time.Now().UnixMilli())
		pipe.Expire(ctx, key, r.ttl)
		pipe.Expire(ctx, r.transcriptKey(id), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	return nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
