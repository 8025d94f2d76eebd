package data

import (
	"context"
	"sync"
	"time"

	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
)

type memorySession struct {
	session   *types.Session
	expiresAt time.Time
	turn      sync.Mutex
}

// MemorySessionRepo 进程内会话存储，超过 ttl 未活动的会话过期
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessionRepo 创建内存会话仓库
func NewMemorySessionRepo(ttl time.Duration) *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *MemorySessionRepo) Create(ctx context.Context, session *types.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return apperrors.Newf(apperrors.ErrConflict, "session %s already exists", session.ID)
	}
	stored := cloneSession(session)
	if stored.Transcript == nil {
		stored.Transcript = []*types.Message{}
	}
	r.sessions[session.ID] = &memorySession{session: stored, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemorySessionRepo) Get(ctx context.Context, id string) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return cloneSession(ms.session), nil
}

func (r *MemorySessionRepo) BindThread(ctx context.Context, id, threadID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	if ms.session.ThreadID == "" {
		ms.session.ThreadID = threadID
		r.touch(ms)
	}
	return ms.session.ThreadID, nil
}

func (r *MemorySessionRepo) Append(ctx context.Context, id string, msg *types.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, err := r.lookup(id)
	if err != nil {
		return err
	}
	msg.Index = len(ms.session.Transcript)
	stored := *msg
	ms.session.Transcript = append(ms.session.Transcript, &stored)
	r.touch(ms)
	return nil
}

func (r *MemorySessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// Lock 非阻塞加锁，已有轮次进行中时立即拒绝
func (r *MemorySessionRepo) Lock(ctx context.Context, id string) (func(), error) {
	r.mu.Lock()
	ms, err := r.lookup(id)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if !ms.turn.TryLock() {
		return nil, apperrors.New(apperrors.ErrChatTurnInProgress)
	}
	var once sync.Once
	return func() { once.Do(ms.turn.Unlock) }, nil
}

// lookup 调用方需持有 r.mu
func (r *MemorySessionRepo) lookup(id string) (*memorySession, error) {
	ms, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrChatSessionNotFound, id)
	}
	if r.now().After(ms.expiresAt) {
		delete(r.sessions, id)
		return nil, apperrors.New(apperrors.ErrChatSessionNotFound, id)
	}
	return ms, nil
}

func (r *MemorySessionRepo) touch(ms *memorySession) {
	now := r.now()
	ms.session.UpdatedAt = now
	ms.expiresAt = now.Add(r.ttl)
}

func cloneSession(s *types.Session) *types.Session {
	c := *s
	c.Transcript = make([]*types.Message, len(s.Transcript))
	copy(c.Transcript, s.Transcript)
	return &c
}
