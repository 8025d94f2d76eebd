package types

import "time"

// Role of a transcript entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. Index is its position in the transcript.
type Message struct {
	Index      int           `json:"index"`
	Role       Role          `json:"role"`
	Content    []ContentPart `json:"content"`
	RunID      string        `json:"run_id,omitempty"`
	Diagnostic bool          `json:"diagnostic,omitempty"` // synthesized failure text, not a model reply
	HTML       string        `json:"html,omitempty"`
	TokenCount *int          `json:"token_count,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Text returns the joined text content of the message
func (m *Message) Text() string {
	return JoinText(m.Content)
}

// Session owns one remote thread and the local transcript
type Session struct {
	ID         string     `json:"id"`
	ThreadID   string     `json:"thread_id,omitempty"`
	Transcript []*Message `json:"transcript"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ReplyForRun returns the assistant entry already recorded for runID, or nil
func (s *Session) ReplyForRun(runID string) *Message {
	for _, m := range s.Transcript {
		if m.Role == RoleAssistant && m.RunID == runID {
			return m
		}
	}
	return nil
}

// Entry returns the transcript entry at index, or nil
func (s *Session) Entry(index int) *Message {
	if index < 0 || index >= len(s.Transcript) {
		return nil
	}
	return s.Transcript[index]
}
