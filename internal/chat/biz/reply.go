package biz

import (
	"errors"
	"fmt"

	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
)

var (
	errPollTimeout   = errors.New("poll timeout exceeded")
	errPollExhausted = errors.New("max poll attempts reached")
)

// SelectReply picks the newest assistant message produced by runID.
// Position in the list is never trusted; ties keep the first seen.
func SelectReply(messages []types.RemoteMessage, runID string) (types.RemoteMessage, bool) {
	var (
		best  types.RemoteMessage
		found bool
	)
	for _, msg := range messages {
		if msg.Role != types.RoleAssistant || msg.RunID != runID {
			continue
		}
		if types.JoinText(msg.Content) == "" {
			continue
		}
		if !found || msg.CreatedAt > best.CreatedAt {
			best = msg
			found = true
		}
	}
	return best, found
}

// statusDiagnostic is the transcript text for a run that ended without completing
func statusDiagnostic(run *types.Run) string {
	text := fmt.Sprintf("assistant run ended with status: %s", run.Status)
	if run.LastError != "" {
		text += " (" + run.LastError + ")"
	}
	return text
}

// pollDiagnostic is the transcript text for a run whose polling stopped early
func (m *SessionManager) pollDiagnostic(run *types.Run, err error) string {
	switch {
	case errors.Is(err, errPollTimeout):
		return fmt.Sprintf("assistant run did not finish within %s (last status: %s)", m.opts.PollTimeout, run.Status)
	case errors.Is(err, errPollExhausted):
		return fmt.Sprintf("assistant run did not finish after %d status checks (last status: %s)", m.opts.MaxPollAttempts, run.Status)
	default:
		return fmt.Sprintf("assistant run status check failed: %v (last status: %s)", err, run.Status)
	}
}
