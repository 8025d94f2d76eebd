package conf

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/minio"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/redis"
	"github.com/spf13/viper"
)

const envPrefix = "ST2U"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Session   SessionConfig   `mapstructure:"session"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Redis     redis.Config    `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Log       logger.Config   `mapstructure:"log"`
	Markdown  MarkdownConfig  `mapstructure:"markdown"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 0 means no limit
	Events       EventsConfig  `mapstructure:"events"`
}

// EventsConfig tunes SSE session streams
type EventsConfig struct {
	Heartbeat  time.Duration `mapstructure:"heartbeat"` // 0 disables heartbeats
	BufferSize int           `mapstructure:"buffer_size"`
}

// Addr returns host:port for http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type AssistantConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	AssistantID    string        `mapstructure:"assistant_id"`
	BaseURL        string        `mapstructure:"base_url"`
	Organization   string        `mapstructure:"organization"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	VerifyOnStart  bool          `mapstructure:"verify_on_start"`

	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`
	MaxPollAttempts int           `mapstructure:"max_poll_attempts"`

	DefaultImagePrompt       string `mapstructure:"default_image_prompt"`
	DefaultMediaPrompt       string `mapstructure:"default_media_prompt"`
	TranscriptionInstruction string `mapstructure:"transcription_instruction"`
	ImageDetail              string `mapstructure:"image_detail"` // auto, low, high
}

type SpeechConfig struct {
	Model  string  `mapstructure:"model"`
	Voice  string  `mapstructure:"voice"`
	Format string  `mapstructure:"format"`
	Speed  float64 `mapstructure:"speed"`
}

type SessionConfig struct {
	Store     string        `mapstructure:"store"` // memory, redis
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

type UploadConfig struct {
	MaxImageBytes int64 `mapstructure:"max_image_bytes"`
	MaxMediaBytes int64 `mapstructure:"max_media_bytes"`
	Workers       int   `mapstructure:"workers"`
}

type MinIOConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	minio.Config `mapstructure:",squash"`
}

type MarkdownConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type TokenizerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Encoding string `mapstructure:"encoding"`
}

// LoadConfig reads an optional YAML file, then applies ST2U_* environment overrides.
// OPENAI_API_KEY, ASSISTANT_ID and OPENAI_BASE_URL are honoured as well.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("assistant.api_key", envPrefix+"_ASSISTANT_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("assistant.assistant_id", envPrefix+"_ASSISTANT_ASSISTANT_ID", "ASSISTANT_ID")
	_ = v.BindEnv("assistant.base_url", envPrefix+"_ASSISTANT_BASE_URL", "OPENAI_BASE_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// turns block while a run is polled
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.events.heartbeat", 15*time.Second)
	v.SetDefault("server.events.buffer_size", 32)

	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.assistant_id", "")
	v.SetDefault("assistant.base_url", "")
	v.SetDefault("assistant.organization", "")
	v.SetDefault("assistant.request_timeout", 60*time.Second)
	v.SetDefault("assistant.verify_on_start", true)
	v.SetDefault("assistant.poll_interval", time.Second)
	v.SetDefault("assistant.poll_timeout", 3*time.Minute)
	v.SetDefault("assistant.max_poll_attempts", 180)
	v.SetDefault("assistant.default_image_prompt", "Analyze this uploaded chart using the defined strategy framework.")
	v.SetDefault("assistant.default_media_prompt", "Analyze the attached recording using the defined strategy framework.")
	v.SetDefault("assistant.transcription_instruction",
		"The attached file %s (file id %s) is an audio/video recording. Transcribe it first, then answer using the transcript.")
	v.SetDefault("assistant.image_detail", "auto")

	v.SetDefault("speech.model", "tts-1")
	v.SetDefault("speech.voice", "alloy")
	v.SetDefault("speech.format", "mp3")
	v.SetDefault("speech.speed", 1.0)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.key_prefix", "st2u")
	v.SetDefault("session.lock_ttl", 10*time.Minute)

	v.SetDefault("upload.max_image_bytes", 20<<20)
	v.SetDefault("upload.max_media_bytes", 512<<20)
	v.SetDefault("upload.workers", 8)

	rd := redis.DefaultConfig()
	v.SetDefault("redis.mode", string(rd.Mode))
	v.SetDefault("redis.addr", rd.Addr)
	v.SetDefault("redis.sentinel_addrs", []string{})
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.cluster_addrs", []string{})
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", rd.DB)
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.min_idle_conns", rd.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)
	v.SetDefault("redis.pool_timeout", rd.PoolTimeout)
	v.SetDefault("redis.max_retries", rd.MaxRetries)

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.session_token", "")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.bucket", "st2u-speech")
	v.SetDefault("minio.presign_expiry", time.Hour)

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.enablecaller", lc.EnableCaller)
	v.SetDefault("log.enablestacktrace", lc.EnableStacktrace)
	v.SetDefault("log.file.filename", lc.File.Filename)
	v.SetDefault("log.file.maxsize", lc.File.MaxSize)
	v.SetDefault("log.file.maxage", lc.File.MaxAge)
	v.SetDefault("log.file.maxbackups", lc.File.MaxBackups)
	v.SetDefault("log.file.compress", lc.File.Compress)

	v.SetDefault("markdown.enabled", true)
	v.SetDefault("tokenizer.enabled", false)
	v.SetDefault("tokenizer.encoding", "cl100k_base")
}

// maxTurnDuration bounds one turn: uploads and message append, the poll, then the reply listing
func (c *Config) maxTurnDuration() time.Duration {
	return c.Assistant.PollTimeout + 2*c.Assistant.RequestTimeout
}

var (
	validImageDetails  = map[string]bool{"auto": true, "low": true, "high": true}
	validSpeechFormats = map[string]bool{"mp3": true, "opus": true, "aac": true, "flac": true, "wav": true, "pcm": true}
)

// Validate checks the configuration. A missing credential or assistant id is a
// ConfigurationError; callers must halt before any remote call is made.
func (c *Config) Validate() error {
	a := c.Assistant
	if strings.TrimSpace(a.APIKey) == "" {
		return apperrors.New(apperrors.ErrChatConfiguration, "assistant.api_key (OPENAI_API_KEY) is required")
	}
	if strings.TrimSpace(a.AssistantID) == "" {
		return apperrors.New(apperrors.ErrChatConfiguration, "assistant.assistant_id (ASSISTANT_ID) is required")
	}
	if a.PollInterval <= 0 || a.PollTimeout <= 0 || a.MaxPollAttempts <= 0 {
		return apperrors.New(apperrors.ErrChatConfiguration, "assistant poll_interval, poll_timeout and max_poll_attempts must be positive")
	}
	if a.RequestTimeout <= 0 {
		return apperrors.New(apperrors.ErrChatConfiguration, "assistant.request_timeout must be positive")
	}
	if !validImageDetails[a.ImageDetail] {
		return apperrors.Newf(apperrors.ErrChatConfiguration, "assistant.image_detail %q is not one of auto, low, high", a.ImageDetail)
	}
	if strings.Count(a.TranscriptionInstruction, "%s") != 2 {
		return apperrors.New(apperrors.ErrChatConfiguration, "assistant.transcription_instruction needs two %s verbs: file name and file id")
	}

	if !validSpeechFormats[c.Speech.Format] {
		return apperrors.Newf(apperrors.ErrChatConfiguration, "speech.format %q is not supported", c.Speech.Format)
	}
	if c.Speech.Speed < 0.25 || c.Speech.Speed > 4.0 {
		return apperrors.New(apperrors.ErrChatConfiguration, "speech.speed must be between 0.25 and 4.0")
	}

	switch c.Session.Store {
	case "memory":
	case "redis":
		if err := c.Redis.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrChatConfiguration, err.Error())
		}
	default:
		return apperrors.Newf(apperrors.ErrChatConfiguration, "session.store %q must be memory or redis", c.Session.Store)
	}
	if c.Session.TTL <= 0 || c.Session.LockTTL <= 0 {
		return apperrors.New(apperrors.ErrChatConfiguration, "session.ttl and session.lock_ttl must be positive")
	}
	// the turn lock is never renewed; it must outlive uploads, the append and the whole poll
	if turn := c.maxTurnDuration(); c.Session.LockTTL <= turn {
		return apperrors.Newf(apperrors.ErrChatConfiguration,
			"session.lock_ttl %s must exceed poll_timeout plus two request timeouts (%s)", c.Session.LockTTL, turn)
	}
	if c.Server.WriteTimeout != 0 && c.Server.WriteTimeout <= a.PollTimeout {
		return apperrors.Newf(apperrors.ErrChatConfiguration,
			"server.write_timeout %s must exceed assistant.poll_timeout %s", c.Server.WriteTimeout, a.PollTimeout)
	}
	if c.Server.WriteTimeout < 0 || c.Server.Events.Heartbeat < 0 || c.Server.Events.BufferSize <= 0 {
		return apperrors.New(apperrors.ErrChatConfiguration, "server.write_timeout and server.events settings are out of range")
	}

	if c.Upload.MaxImageBytes <= 0 || c.Upload.MaxMediaBytes <= 0 || c.Upload.Workers <= 0 {
		return apperrors.New(apperrors.ErrChatConfiguration, "upload limits and workers must be positive")
	}

	if c.MinIO.Enabled {
		if err := c.MinIO.Config.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrChatConfiguration, err.Error())
		}
	}

	if err := c.Log.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrChatConfiguration, err.Error())
	}
	return nil
}
