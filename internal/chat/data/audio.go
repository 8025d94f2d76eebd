package data

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/lk2023060901/st2u-assistant/internal/chat/biz"
	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/minio"
)

// AudioStore 将合成语音存入 MinIO 并返回预签名地址
type AudioStore struct {
	client *minio.Client
}

var _ biz.AudioStore = (*AudioStore)(nil)

// NewAudioStore 基于客户端默认 bucket 创建语音存储
func NewAudioStore(client *minio.Client) *AudioStore {
	return &AudioStore{client: client}
}

// Save 将音频写入 speech/<session>/<index>.<format> 并返回预签名地址
func (s *AudioStore) Save(ctx context.Context, speech *types.Speech, format string) (string, error) {
	key := minio.ObjectKey("speech", speech.SessionID, fmt.Sprintf("%d.%s", speech.Index, format))

	_, err := s.client.PutObject(ctx, key, bytes.NewReader(speech.Audio), int64(len(speech.Audio)), minio.PutObjectOptions{
		ContentType: speech.ContentType,
		UserMetadata: map[string]string{
			"session-id":  speech.SessionID,
			"entry-index": strconv.Itoa(speech.Index),
		},
	})
	if err != nil {
		return "", err
	}

	u, err := s.client.PresignedGetObject(ctx, key, 0, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
