package biz

import "github.com/lk2023060901/st2u-assistant/internal/chat/types"

// session event types
const (
	EventTurnStarted  = "turn_started"
	EventUserMessage  = "user_message"
	EventRunCreated   = "run_created"
	EventRunStatus    = "run_status"
	EventReply        = "reply"
	EventDiagnostic   = "diagnostic"
	EventTurnAborted  = "turn_aborted"
	EventSessionClose = "session_closed"
)

type turnStartedEvent struct {
	SessionID string `json:"session_id"`
	HasText   bool   `json:"has_text"`
	HasImage  bool   `json:"has_image"`
	HasMedia  bool   `json:"has_media"`
}

type runEvent struct {
	RunID    string          `json:"run_id"`
	ThreadID string          `json:"thread_id"`
	Status   types.RunStatus `json:"status"`
	Attempt  int             `json:"attempt,omitempty"`
}

type abortedEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NopPublisher drops all events
type NopPublisher struct{}

func (NopPublisher) Publish(string, string, interface{}) {}
func (NopPublisher) Close(string)                        {}
