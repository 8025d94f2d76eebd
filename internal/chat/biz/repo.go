package biz

import (
	"context"

	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
)

// SessionRepo stores sessions and their transcripts
type SessionRepo interface {
	Create(ctx context.Context, session *types.Session) error
	// Get returns ErrChatSessionNotFound when the session does not exist or has expired
	Get(ctx context.Context, id string) (*types.Session, error)
	// BindThread sets the thread id only if none is bound yet and returns the bound id
	BindThread(ctx context.Context, id, threadID string) (string, error)
	// Append assigns msg.Index and appends it to the transcript
	Append(ctx context.Context, id string, msg *types.Message) error
	Delete(ctx context.Context, id string) error
	// Lock returns ErrChatTurnInProgress when another turn holds the session
	Lock(ctx context.Context, id string) (func(), error)
}

// FilePurpose is the declared purpose of an uploaded file
type FilePurpose string

const (
	PurposeVision     FilePurpose = "vision"
	PurposeAssistants FilePurpose = "assistants"
)

// SpeechRequest describes one text-to-speech call
type SpeechRequest struct {
	Text   string
	Model  string
	Voice  string
	Format string
	Speed  float64
}

// AssistantAPI is the remote assistant service
type AssistantAPI interface {
	CreateThread(ctx context.Context) (string, error)
	UploadFile(ctx context.Context, name string, data []byte, purpose FilePurpose) (string, error)
	// AppendMessage appends a user message; file parts travel as attachments
	AppendMessage(ctx context.Context, threadID string, parts []types.ContentPart) (string, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (*types.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (*types.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	// ListRunMessages lists the messages produced for runID, in no guaranteed order
	ListRunMessages(ctx context.Context, threadID, runID string) ([]types.RemoteMessage, error)
	CreateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
	VerifyAssistant(ctx context.Context, assistantID string) error
}

// AudioStore keeps synthesized speech and hands out playback URLs
type AudioStore interface {
	Save(ctx context.Context, speech *types.Speech, format string) (string, error)
}

// EventPublisher fans turn progress out to subscribers of a session
type EventPublisher interface {
	Publish(sessionID, eventType string, data interface{})
	Close(sessionID string)
}

// TaskRunner runs tasks concurrently and returns the first error
type TaskRunner interface {
	RunAll(ctx context.Context, tasks ...func(ctx context.Context) error) error
}

// Renderer turns assistant markdown into HTML
type Renderer interface {
	Render(markdown string) (string, error)
}

// TokenCounter counts tokens of transcript text
type TokenCounter interface {
	Count(text string) int
}
