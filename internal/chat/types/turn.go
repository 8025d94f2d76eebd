package types

import (
	"io"
	"strings"
)

// AttachmentKind distinguishes the two attachment classes
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentMedia AttachmentKind = "media"
)

// Attachment is an uploaded file that has not been sent to the remote service yet
type Attachment struct {
	Kind     AttachmentKind
	FileName string
	Size     int64
	Reader   io.Reader
}

// TurnInput carries optional text plus optional image and media attachments
type TurnInput struct {
	Text  string
	Image *Attachment
	Media *Attachment
}

// IsEmpty reports whether the turn has nothing to send
func (in TurnInput) IsEmpty() bool {
	return in.Image == nil && in.Media == nil && strings.TrimSpace(in.Text) == ""
}

// TurnOutcome classifies how a turn ended
type TurnOutcome string

const (
	OutcomeReplied   TurnOutcome = "replied"
	OutcomeRunFailed TurnOutcome = "run_failed"
	OutcomeAborted   TurnOutcome = "aborted"
)

// TurnResult is what the host surface shows for one turn. Reply is either the
// assistant text or a diagnostic.
type TurnResult struct {
	SessionID        string      `json:"session_id"`
	ThreadID         string      `json:"thread_id,omitempty"`
	RunID            string      `json:"run_id,omitempty"`
	Outcome          TurnOutcome `json:"outcome"`
	Status           RunStatus   `json:"status,omitempty"`
	Reply            string      `json:"reply"`
	ErrorCode        int         `json:"error_code,omitempty"`
	UserMessage      *Message    `json:"user_message,omitempty"`
	AssistantMessage *Message    `json:"assistant_message,omitempty"`
}

// Speech is synthesized audio for one transcript entry
type Speech struct {
	SessionID   string `json:"session_id"`
	Index       int    `json:"index"`
	ContentType string `json:"content_type"`
	Audio       []byte `json:"-"`
	URL         string `json:"url,omitempty"`
}
