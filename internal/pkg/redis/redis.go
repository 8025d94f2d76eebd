package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client Redis 客户端封装
type Client struct {
	config *Config
	logger *logger.Logger
	rdb    redis.UniversalClient
}

// New 创建 Redis 客户端并做一次健康检查
func New(cfg *Config, log *logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{
		Addrs:        cfg.addrs(),
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
		MaxRetries:   cfg.MaxRetries,
	}
	// 集群模式不支持 DB 选择
	if cfg.Mode != ModeCluster {
		opts.DB = cfg.DB
	}
	if cfg.Mode == ModeCluster {
		opts.IsClusterMode = true
	}

	client := NewWithClient(redis.NewUniversalClient(opts), log)
	client.config = cfg

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		_ = client.rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("redis client initialized successfully",
		zap.String("mode", string(cfg.Mode)),
		zap.Strings("addrs", cfg.addrs()),
	)
	return client, nil
}

// NewWithClient 包装一个已有的 go-redis 客户端
func NewWithClient(rdb redis.UniversalClient, log *logger.Logger) *Client {
	if log == nil {
		log = logger.L()
	}
	return &Client{
		config: DefaultConfig(),
		logger: log,
		rdb:    rdb,
	}
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return ErrNotInitialized
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.logger.Error("redis ping failed", zap.Error(err))
		return err
	}
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("close redis client failed", zap.Error(err))
		return err
	}
	c.logger.Info("redis client closed")
	return nil
}

// TxPipelined 在事务 Pipeline 中执行 fn
func (c *Client) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) error {
	_, err := c.rdb.TxPipelined(ctx, fn)
	if err != nil {
		c.logger.Error("redis tx pipeline failed", zap.Error(err))
	}
	return err
}

// ==================== Key Operations ====================

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("redis del failed", zap.Strings("keys", keys), zap.Error(err))
	}
	return n, err
}

// Exists 检查键是否存在
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Exists(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("redis exists failed", zap.Strings("keys", keys), zap.Error(err))
	}
	return n, err
}

// Expire 设置过期时间
func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	ok, err := c.rdb.Expire(ctx, key, expiration).Result()
	if err != nil {
		c.logger.Error("redis expire failed", zap.String("key", key), zap.Error(err))
	}
	return ok, err
}

// ==================== Hash Operations ====================

// HSet 设置哈希字段
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) (int64, error) {
	n, err := c.rdb.HSet(ctx, key, values...).Result()
	if err != nil {
		c.logger.Error("redis hset failed", zap.String("key", key), zap.Error(err))
	}
	return n, err
}

// HSetNX 仅当字段不存在时设置
func (c *Client) HSetNX(ctx context.Context, key, field string, value interface{}) (bool, error) {
	ok, err := c.rdb.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		c.logger.Error("redis hsetnx failed", zap.String("key", key), zap.String("field", field), zap.Error(err))
	}
	return ok, err
}

// HGetAll 获取所有哈希字段
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis hgetall failed", zap.String("key", key), zap.Error(err))
	}
	return vals, err
}

// ==================== List Operations ====================

// RPush 从右侧推入列表
func (c *Client) RPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	n, err := c.rdb.RPush(ctx, key, values...).Result()
	if err != nil {
		c.logger.Error("redis rpush failed", zap.String("key", key), zap.Error(err))
	}
	return n, err
}

// LRange 获取列表范围
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		c.logger.Error("redis lrange failed", zap.String("key", key), zap.Error(err))
	}
	return vals, err
}

// LIndex 按下标获取列表元素
func (c *Client) LIndex(ctx context.Context, key string, index int64) (string, error) {
	val, err := c.rdb.LIndex(ctx, key, index).Result()
	if err != nil && !IsNil(err) {
		c.logger.Error("redis lindex failed", zap.String("key", key), zap.Int64("index", index), zap.Error(err))
	}
	return val, err
}

// LLen 获取列表长度
func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.LLen(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis llen failed", zap.String("key", key), zap.Error(err))
	}
	return n, err
}
