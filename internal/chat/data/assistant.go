package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lk2023060901/st2u-assistant/internal/chat/biz"
	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	"github.com/lk2023060901/st2u-assistant/internal/conf"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	listMessagesLimit = 100
)

// AssistantClient OpenAI Assistants v2 客户端
type AssistantClient struct {
	client     *openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
	org        string
	logger     *logger.Logger
}

var _ biz.AssistantAPI = (*AssistantClient)(nil)

// NewAssistantClient 创建 Assistants 客户端
func NewAssistantClient(cfg *conf.AssistantConfig, lgr *logger.Logger) (*AssistantClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.ErrChatConfiguration, "api key is required")
	}

	log := lgr
	if log == nil {
		log = logger.L()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = baseURL
	clientCfg.OrgID = cfg.Organization
	clientCfg.HTTPClient = httpClient

	log.Info("assistant client created",
		zap.String("base_url", baseURL),
		zap.Duration("timeout", timeout))

	return &AssistantClient{
		client:     openai.NewClientWithConfig(clientCfg),
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		org:        cfg.Organization,
		logger:     log.Named("assistant"),
	}, nil
}

// CreateThread 创建会话线程
func (c *AssistantClient) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", classify("create thread", err)
	}
	c.logger.Debug("thread created", zap.String("thread_id", thread.ID))
	return thread.ID, nil
}

// UploadFile 上传文件，返回文件 ID
func (c *AssistantClient) UploadFile(ctx context.Context, name string, data []byte, purpose biz.FilePurpose) (string, error) {
	file, err := c.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: openai.PurposeType(purpose),
	})
	if err != nil {
		return "", classify("upload file", err)
	}
	return file.ID, nil
}

// CreateRun 在线程上启动 run
func (c *AssistantClient) CreateRun(ctx context.Context, threadID, assistantID string) (*types.Run, error) {
	run, err := c.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return nil, classify("create run", err)
	}
	return toRun(run, threadID), nil
}

// RetrieveRun 查询 run 状态
func (c *AssistantClient) RetrieveRun(ctx context.Context, threadID, runID string) (*types.Run, error) {
	run, err := c.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, classify("retrieve run", err)
	}
	return toRun(run, threadID), nil
}

// CancelRun 取消 run
func (c *AssistantClient) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := c.client.CancelRun(ctx, threadID, runID); err != nil {
		return classify("cancel run", err)
	}
	return nil
}

// ListRunMessages 列出某个 run 产生的消息（新消息在前）
func (c *AssistantClient) ListRunMessages(ctx context.Context, threadID, runID string) ([]types.RemoteMessage, error) {
	limit := listMessagesLimit
	order := "desc"
	list, err := c.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return nil, classify("list messages", err)
	}

	messages := make([]types.RemoteMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		messages = append(messages, toRemoteMessage(m))
	}
	return messages, nil
}

// CreateSpeech 文本转语音，返回音频数据
func (c *AssistantClient) CreateSpeech(ctx context.Context, req biz.SpeechRequest) ([]byte, error) {
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(req.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormat(req.Format),
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, classify("create speech", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("create speech: empty audio")
	}
	return audio, nil
}

// VerifyAssistant 校验凭证与 assistant ID
func (c *AssistantClient) VerifyAssistant(ctx context.Context, assistantID string) error {
	assistant, err := c.client.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return classify("retrieve assistant", err)
	}
	c.logger.Info("assistant verified",
		zap.String("assistant_id", assistant.ID),
		zap.String("model", assistant.Model))
	return nil
}

func toRun(r openai.Run, threadID string) *types.Run {
	run := &types.Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   types.ParseRunStatus(string(r.Status)),
	}
	if run.ThreadID == "" {
		run.ThreadID = threadID
	}
	if r.LastError != nil {
		run.LastError = strings.TrimPrefix(fmt.Sprintf("%s: %s", r.LastError.Code, r.LastError.Message), ": ")
	}
	return run
}

func toRemoteMessage(m openai.Message) types.RemoteMessage {
	msg := types.RemoteMessage{
		ID:        m.ID,
		Role:      types.Role(m.Role),
		CreatedAt: int64(m.CreatedAt),
	}
	if m.RunID != nil {
		msg.RunID = *m.RunID
	}
	for _, content := range m.Content {
		switch content.Type {
		case "text":
			if content.Text != nil {
				msg.Content = append(msg.Content, types.TextPart(content.Text.Value))
			}
		case "image_file":
			if content.ImageFile != nil {
				msg.Content = append(msg.Content, types.ImagePart(content.ImageFile.FileID, "", "", ""))
			}
		}
	}
	return msg
}

// classify 将凭证拒绝映射为 ErrChatAuthentication，其余错误保留原因
func classify(op string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return apperrors.Wrap(fmt.Errorf("%s: %w", op, err), apperrors.ErrChatAuthentication)
	}
	return fmt.Errorf("%s: %w", op, err)
}
