package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	"go.uber.org/zap"
)

// pollRun fetches the run status at a fixed interval until it is terminal.
// It stops with errPollTimeout after PollTimeout, errPollExhausted after
// MaxPollAttempts fetches, or the context's error when ctx ends first.
func (m *SessionManager) pollRun(ctx context.Context, sessionID string, run *types.Run) (*types.Run, error) {
	if run.Status.IsTerminal() {
		return run, nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, m.opts.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-pollCtx.Done():
			return run, m.pollStopReason(ctx)
		case <-ticker.C:
		}

		current, err := m.api.RetrieveRun(pollCtx, run.ThreadID, run.ID)
		if err != nil {
			if pollCtx.Err() != nil {
				return run, m.pollStopReason(ctx)
			}
			return run, fmt.Errorf("retrieve run: %w", err)
		}
		if current.ThreadID == "" {
			current.ThreadID = run.ThreadID
		}
		run = current

		m.events.Publish(sessionID, EventRunStatus, runEvent{
			RunID:    run.ID,
			ThreadID: run.ThreadID,
			Status:   run.Status,
			Attempt:  attempt,
		})
		m.logger.Debug("run status",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Int("attempt", attempt),
		)

		if run.Status.IsTerminal() {
			return run, nil
		}
		if attempt >= m.opts.MaxPollAttempts {
			return run, errPollExhausted
		}
	}
}

func (m *SessionManager) pollStopReason(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return errPollTimeout
}

// cancelRun asks the service to stop a run; failures are only logged
func (m *SessionManager) cancelRun(ctx context.Context, run *types.Run) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.api.CancelRun(ctx, run.ThreadID, run.ID); err != nil {
		m.logger.Warn("failed to cancel run",
			zap.String("thread_id", run.ThreadID),
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("run cancelled", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
}
