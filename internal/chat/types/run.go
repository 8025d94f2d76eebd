package types

// RunStatus is the closed set of remote run states
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunCancelling     RunStatus = "cancelling"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
	RunIncomplete     RunStatus = "incomplete"
	// RunUnknown stands in for any wire value outside the set
	RunUnknown RunStatus = "unknown"
)

// ParseRunStatus maps a wire value onto the closed set
func ParseRunStatus(s string) RunStatus {
	switch st := RunStatus(s); st {
	case RunQueued, RunInProgress, RunCancelling, RunRequiresAction,
		RunCompleted, RunFailed, RunCancelled, RunExpired, RunIncomplete:
		return st
	default:
		return RunUnknown
	}
}

// IsPending reports whether polling should continue.
// requires_action is terminal here: no tools are served, so the run cannot progress.
func (s RunStatus) IsPending() bool {
	switch s {
	case RunQueued, RunInProgress, RunCancelling:
		return true
	case RunRequiresAction, RunCompleted, RunFailed, RunCancelled, RunExpired, RunIncomplete, RunUnknown:
		return false
	default:
		return false
	}
}

// IsTerminal is the complement of IsPending
func (s RunStatus) IsTerminal() bool {
	return !s.IsPending()
}

// Run is the ephemeral view of one remote run
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    RunStatus `json:"status"`
	LastError string    `json:"last_error,omitempty"`
}

// RemoteMessage is a thread message as listed by the remote service
type RemoteMessage struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	RunID     string        `json:"run_id,omitempty"`
	Content   []ContentPart `json:"content"`
	CreatedAt int64         `json:"created_at"`
}
