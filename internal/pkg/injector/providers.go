package injector

import (
	"time"

	"github.com/lk2023060901/st2u-assistant/internal/chat/biz"
	chatdata "github.com/lk2023060901/st2u-assistant/internal/chat/data"
	chatservice "github.com/lk2023060901/st2u-assistant/internal/chat/service"
	"github.com/lk2023060901/st2u-assistant/internal/conf"
	"github.com/lk2023060901/st2u-assistant/internal/data"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/markdown"
	pkgredis "github.com/lk2023060901/st2u-assistant/internal/pkg/redis"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/sse"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/tokenizer"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// Data layer helpers

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

func provideRedisClient(d *data.Data) *pkgredis.Client {
	return d.RedisClient
}

func provideZapLogger(log *logger.Logger) *zap.Logger {
	return log.Logger
}

// Repository providers

func provideSessionRepo(config *conf.Config, d *data.Data) biz.SessionRepo {
	if config.Session.Store == "redis" && d.RedisClient != nil {
		return chatdata.NewRedisSessionRepo(d.RedisClient, config.Session.KeyPrefix, config.Session.TTL, config.Session.LockTTL)
	}
	return chatdata.NewMemorySessionRepo(config.Session.TTL)
}

func provideAssistantAPI(config *conf.Config, log *logger.Logger) (biz.AssistantAPI, error) {
	return chatdata.NewAssistantClient(&config.Assistant, log)
}

// Service providers

func provideWorkerPool(config *conf.Config, log *zap.Logger) (*workerpool.Pool, func(), error) {
	pool, err := workerpool.New(&workerpool.Config{
		Workers:        config.Upload.Workers,
		ExpiryDuration: time.Minute,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := pool.Shutdown(10 * time.Second); err != nil {
			log.Warn("worker pool shutdown", zap.Error(err))
		}
	}
	return pool, cleanup, nil
}

func provideTaskRunner(pool *workerpool.Pool) biz.TaskRunner {
	return pool
}

func provideOptions(config *conf.Config) biz.Options {
	a := config.Assistant
	return biz.Options{
		AssistantID:              a.AssistantID,
		PollInterval:             a.PollInterval,
		PollTimeout:              a.PollTimeout,
		MaxPollAttempts:          a.MaxPollAttempts,
		DefaultImagePrompt:       a.DefaultImagePrompt,
		DefaultMediaPrompt:       a.DefaultMediaPrompt,
		TranscriptionInstruction: a.TranscriptionInstruction,
		ImageDetail:              a.ImageDetail,
		MaxImageBytes:            config.Upload.MaxImageBytes,
		MaxMediaBytes:            config.Upload.MaxMediaBytes,
		SpeechModel:              config.Speech.Model,
		SpeechVoice:              config.Speech.Voice,
		SpeechFormat:             config.Speech.Format,
		SpeechSpeed:              config.Speech.Speed,
	}
}

// provideManagerOptions wires the optional collaborators enabled in config
func provideManagerOptions(config *conf.Config, d *data.Data, hub *sse.Hub, log *logger.Logger) []biz.Option {
	options := []biz.Option{biz.WithPublisher(chatservice.NewHubPublisher(hub))}

	if config.Markdown.Enabled {
		options = append(options, biz.WithRenderer(markdown.NewRenderer()))
	}
	if config.Tokenizer.Enabled {
		counter, err := tokenizer.NewCounter(config.Tokenizer.Encoding)
		if err != nil {
			// token counts are skipped when the encoding cannot load
			log.Warn("token counting disabled", zap.Error(err))
		} else {
			options = append(options, biz.WithTokenCounter(counter))
		}
	}
	if d.MinIOClient != nil {
		options = append(options, biz.WithAudioStore(chatdata.NewAudioStore(d.MinIOClient)))
	}
	return options
}

func provideSessionManager(
	repo biz.SessionRepo,
	api biz.AssistantAPI,
	runner biz.TaskRunner,
	opts biz.Options,
	log *logger.Logger,
	options []biz.Option,
) *biz.SessionManager {
	return biz.NewSessionManager(repo, api, runner, opts, log, options...)
}

// HTTP service providers

func provideStreamOptions(config *conf.Config) chatservice.StreamOptions {
	return chatservice.StreamOptions{
		Heartbeat:  config.Server.Events.Heartbeat,
		BufferSize: config.Server.Events.BufferSize,
	}
}
