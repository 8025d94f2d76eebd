package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/st2u-assistant/internal/conf"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/minio"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/redis"
	"go.uber.org/zap"
)

// Data holds the shared infrastructure clients. RedisClient is nil unless the
// redis session store is selected; MinIOClient is nil unless minio is enabled.
type Data struct {
	RedisClient *redis.Client
	MinIOClient *minio.Client
	Logger      *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	d := &Data{Logger: log}

	// Initialize Redis
	if config.Session.Store == "redis" {
		redisClient, err := redis.New(&config.Redis, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.RedisClient = redisClient
	}

	// Initialize MinIO
	if config.MinIO.Enabled {
		minioClient, err := initMinIO(config, log.Logger)
		if err != nil {
			d.close()
			return nil, nil, fmt.Errorf("failed to init minio: %w", err)
		}
		d.MinIOClient = minioClient
	}

	cleanup := func() {
		log.Info("cleaning up data resources")
		d.close()
	}

	return d, cleanup, nil
}

func (d *Data) close() {
	if d.RedisClient != nil {
		if err := d.RedisClient.Close(); err != nil {
			d.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if d.MinIOClient != nil {
		_ = d.MinIOClient.Close()
	}
}

func initMinIO(config *conf.Config, log *zap.Logger) (*minio.Client, error) {
	cfg := config.MinIO.Config
	client, err := minio.NewClient(&cfg, log)
	if err != nil {
		return nil, err
	}

	// Create bucket if not exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.EnsureBucket(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
