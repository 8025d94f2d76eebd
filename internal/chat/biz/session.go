package biz

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"go.uber.org/zap"
)

// SessionManager mediates every turn of every session. Each session owns one
// remote thread and an append-only transcript; turns of one session are serialized.
type SessionManager struct {
	repo   SessionRepo
	api    AssistantAPI
	runner TaskRunner
	opts   Options
	logger *logger.Logger

	events   EventPublisher
	renderer Renderer
	counter  TokenCounter
	audio    AudioStore
	now      func() time.Time
}

// NewSessionManager creates a session manager
func NewSessionManager(
	repo SessionRepo,
	api AssistantAPI,
	runner TaskRunner,
	opts Options,
	log *logger.Logger,
	options ...Option,
) *SessionManager {
	if log == nil {
		log = logger.L()
	}
	m := &SessionManager{
		repo:   repo,
		api:    api,
		runner: runner,
		opts:   opts,
		logger: log.Named("chat"),
		events: NopPublisher{},
		now:    time.Now,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// VerifyCredentials retrieves the configured assistant. A rejected credential
// or unknown assistant id is returned as an AppError.
func (m *SessionManager) VerifyCredentials(ctx context.Context) error {
	if err := m.api.VerifyAssistant(ctx, m.opts.AssistantID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrChatAuthentication)
	}
	return nil
}

// Open creates an empty session. The remote thread is created on the first turn.
func (m *SessionManager) Open(ctx context.Context) (*types.Session, error) {
	now := m.now()
	session := &types.Session{
		ID:         uuid.New().String(),
		Transcript: []*types.Message{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.repo.Create(ctx, session); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to create session")
	}

	m.logger.WithContext(ctx).Info("session opened", zap.String("session_id", session.ID))
	return session, nil
}

// Get returns the session with its transcript
func (m *SessionManager) Get(ctx context.Context, id string) (*types.Session, error) {
	return m.repo.Get(ctx, id)
}

// Transcript returns the session's transcript in insertion order
func (m *SessionManager) Transcript(ctx context.Context, id string) ([]*types.Message, error) {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.Transcript, nil
}

// Close destroys the session. The remote thread is left to the service's retention.
func (m *SessionManager) Close(ctx context.Context, id string) error {
	if _, err := m.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to delete session")
	}

	m.events.Publish(id, EventSessionClose, map[string]string{"session_id": id})
	m.events.Close(id)
	m.logger.WithContext(ctx).Info("session closed", zap.String("session_id", id))
	return nil
}

// ensureThread creates the session's thread once and binds it
func (m *SessionManager) ensureThread(ctx context.Context, session *types.Session) (string, error) {
	if session.ThreadID != "" {
		return session.ThreadID, nil
	}

	threadID, err := m.api.CreateThread(ctx)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrChatSubmissionFailed, "failed to create thread")
	}

	bound, err := m.repo.BindThread(ctx, session.ID, threadID)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to bind thread")
	}
	if bound != threadID {
		m.logger.Warn("session already bound to another thread",
			zap.String("session_id", session.ID),
			zap.String("bound", bound),
			zap.String("created", threadID),
		)
	}
	session.ThreadID = bound

	m.logger.Info("thread created",
		zap.String("session_id", session.ID),
		zap.String("thread_id", bound),
	)
	return bound, nil
}
