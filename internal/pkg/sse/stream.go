package sse

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Stream 一个 SSE 连接（封装 Client 和 gin.Context）
type Stream struct {
	client    *Client
	ctx       *gin.Context
	hub       *Hub
	heartbeat time.Duration

	onConnect    func()
	onDisconnect func()
	onError      func(error)

	closed atomic.Bool
}

// StreamBuilder 构建器
type StreamBuilder struct {
	ginCtx       *gin.Context
	hub          *Hub
	resource     string
	bufferSize   int
	heartbeat    time.Duration
	onConnect    func()
	onDisconnect func()
	onError      func(error)
}

// NewStream 创建 Stream 构建器
func NewStream(c *gin.Context, hub *Hub) *StreamBuilder {
	return &StreamBuilder{
		ginCtx:     c,
		hub:        hub,
		bufferSize: 32,
		heartbeat:  15 * time.Second,
	}
}

// WithResource 设置资源 ID
func (b *StreamBuilder) WithResource(resource string) *StreamBuilder {
	b.resource = resource
	return b
}

// WithBufferSize 设置 Channel 缓冲区大小
func (b *StreamBuilder) WithBufferSize(size int) *StreamBuilder {
	b.bufferSize = size
	return b
}

// WithHeartbeat 设置心跳间隔（0 表示禁用）
func (b *StreamBuilder) WithHeartbeat(interval time.Duration) *StreamBuilder {
	b.heartbeat = interval
	return b
}

// OnConnect 设置连接建立钩子
func (b *StreamBuilder) OnConnect(fn func()) *StreamBuilder {
	b.onConnect = fn
	return b
}

// OnDisconnect 设置连接断开钩子
func (b *StreamBuilder) OnDisconnect(fn func()) *StreamBuilder {
	b.onDisconnect = fn
	return b
}

// OnError 设置错误处理钩子
func (b *StreamBuilder) OnError(fn func(error)) *StreamBuilder {
	b.onError = fn
	return b
}

// Build 构建 Stream
func (b *StreamBuilder) Build() *Stream {
	return &Stream{
		client: &Client{
			ID:       uuid.New().String(),
			Channel:  make(chan Event, b.bufferSize),
			Resource: b.resource,
		},
		ctx:          b.ginCtx,
		hub:          b.hub,
		heartbeat:    b.heartbeat,
		onConnect:    b.onConnect,
		onDisconnect: b.onDisconnect,
		onError:      b.onError,
	}
}

// ClientID 获取客户端 ID
func (s *Stream) ClientID() string {
	return s.client.ID
}

// Close 关闭流（幂等）
func (s *Stream) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.hub.Unregister(s.client)
	if s.onDisconnect != nil {
		s.onDisconnect()
	}
}

// StartStreaming 开始流式传输，阻塞直到客户端断开或资源被关闭。
// 事件与心跳都在当前 goroutine 写出。
func (s *Stream) StartStreaming() {
	s.ctx.Header("Content-Type", "text/event-stream")
	s.ctx.Header("Cache-Control", "no-cache")
	s.ctx.Header("Connection", "keep-alive")
	s.ctx.Header("X-Accel-Buffering", "no")

	s.hub.Register(s.client)
	defer s.Close()

	if s.onConnect != nil {
		s.onConnect()
	}

	connected := Event{
		Type: "connected",
		Data: map[string]string{"client_id": s.client.ID, "resource": s.client.Resource},
	}
	if !s.write(connected.FormatSSE()) {
		return
	}

	var heartbeat <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	clientGone := s.ctx.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-s.client.Channel:
			if !ok {
				return
			}
			if !s.write(event.FormatSSE()) {
				return
			}
		case <-heartbeat:
			if !s.write(": heartbeat\n\n") {
				return
			}
		}
	}
}

func (s *Stream) write(payload string) bool {
	if _, err := fmt.Fprint(s.ctx.Writer, payload); err != nil {
		if s.onError != nil {
			s.onError(err)
		}
		return false
	}
	s.ctx.Writer.Flush()
	return true
}
