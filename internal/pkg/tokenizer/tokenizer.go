package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

// Counter 基于 tiktoken 统计 token 数
type Counter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewCounter 创建计数器，encoding 为空时使用 cl100k_base。
// 首次加载编码表需要网络或本地缓存（TIKTOKEN_CACHE_DIR）。
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encoding, err)
	}
	return &Counter{encoding: enc, name: encoding}, nil
}

// Count 返回文本的 token 数
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Encoding 返回编码名称
func (c *Counter) Encoding() string {
	return c.name
}
