package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// 媒体附件挂载的工具
const attachmentTool = "code_interpreter"

type messageContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ImageFile *imageFileParam `json:"image_file,omitempty"`
}

type imageFileParam struct {
	FileID string `json:"file_id"`
	Detail string `json:"detail,omitempty"`
}

type createMessageRequest struct {
	Role        string                    `json:"role"`
	Content     []messageContent          `json:"content"`
	Attachments []openai.ThreadAttachment `json:"attachments,omitempty"`
}

// AppendMessage 追加多段内容消息。
// go-openai 的 MessageRequest 只支持字符串内容，这里手动构造请求
func (c *AssistantClient) AppendMessage(ctx context.Context, threadID string, parts []types.ContentPart) (string, error) {
	body, err := buildMessageRequest(parts)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/threads/%s/messages", c.baseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if c.org != "" {
		req.Header.Set("OpenAI-Organization", c.org)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read append message response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", classify("append message", parseAPIError(resp.StatusCode, data))
	}

	messageID := gjson.GetBytes(data, "id").String()
	if messageID == "" {
		return "", fmt.Errorf("append message: response has no message id")
	}

	c.logger.Debug("message appended",
		zap.String("thread_id", threadID),
		zap.String("message_id", messageID),
		zap.Int("parts", len(body.Content)),
		zap.Int("attachments", len(body.Attachments)),
	)
	return messageID, nil
}

// buildMessageRequest 保持文本与图片顺序，文件段转为 attachments
func buildMessageRequest(parts []types.ContentPart) (*createMessageRequest, error) {
	req := &createMessageRequest{Role: string(types.RoleUser)}
	for i, part := range parts {
		if err := part.Validate(); err != nil {
			return nil, fmt.Errorf("content part %d: %w", i, err)
		}
		switch part.Type {
		case types.ContentText:
			req.Content = append(req.Content, messageContent{Type: "text", Text: part.Text})
		case types.ContentImageFile:
			req.Content = append(req.Content, messageContent{
				Type:      "image_file",
				ImageFile: &imageFileParam{FileID: part.FileID, Detail: part.Detail},
			})
		case types.ContentFile:
			req.Attachments = append(req.Attachments, openai.ThreadAttachment{
				FileID: part.FileID,
				Tools:  []openai.ThreadAttachmentTool{{Type: attachmentTool}},
			})
		}
	}
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("message has no text or image content")
	}
	return req, nil
}

// parseAPIError 解析标准 {"error": {...}} 错误体
func parseAPIError(status int, body []byte) *openai.APIError {
	apiErr := &openai.APIError{
		HTTPStatusCode: status,
		HTTPStatus:     http.StatusText(status),
		Message:        gjson.GetBytes(body, "error.message").String(),
		Type:           gjson.GetBytes(body, "error.type").String(),
	}
	if code := gjson.GetBytes(body, "error.code"); code.Exists() {
		apiErr.Code = code.Value()
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(body))
	}
	return apiErr
}
