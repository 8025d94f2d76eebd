package biz

import (
	"context"
	"strings"

	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"go.uber.org/zap"
)

// SubmitTurn runs one turn of a session: upload attachments, append the user
// message, start a run, poll it and resolve the reply.
//
// Only input and lookup errors are returned (empty turn, unknown session,
// rejected attachment, busy session). Every failure after that ends in a
// TurnResult whose Reply is user-visible text.
func (m *SessionManager) SubmitTurn(ctx context.Context, sessionID string, in types.TurnInput) (*types.TurnResult, error) {
	if in.IsEmpty() {
		return nil, apperrors.New(apperrors.ErrChatEmptyTurn)
	}

	unlock, err := m.repo.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	image, err := m.prepareAttachment(in.Image)
	if err != nil {
		return nil, err
	}
	media, err := m.prepareAttachment(in.Media)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithSessionID(ctx, sessionID)
	log := m.logger.WithContext(ctx)
	result := &types.TurnResult{SessionID: sessionID, ThreadID: session.ThreadID}

	m.events.Publish(sessionID, EventTurnStarted, turnStartedEvent{
		SessionID: sessionID,
		HasText:   strings.TrimSpace(in.Text) != "",
		HasImage:  image != nil,
		HasMedia:  media != nil,
	})

	threadID, err := m.ensureThread(ctx, session)
	if err != nil {
		return m.abort(ctx, result, err), nil
	}
	result.ThreadID = threadID

	if err := m.uploadAttachments(ctx, image, media); err != nil {
		return m.abort(ctx, result, err), nil
	}

	text := m.effectiveText(in.Text, image, media)
	userMsg := m.userEntry(text, image, media)
	if err := m.repo.Append(ctx, sessionID, userMsg); err != nil {
		return m.abort(ctx, result, apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to record user message")), nil
	}
	result.UserMessage = userMsg
	m.events.Publish(sessionID, EventUserMessage, userMsg)

	if _, err := m.api.AppendMessage(ctx, threadID, m.compose(text, image, media)); err != nil {
		return m.abort(ctx, result, apperrors.Wrap(err, apperrors.ErrChatSubmissionFailed)), nil
	}

	run, err := m.api.CreateRun(ctx, threadID, m.opts.AssistantID)
	if err != nil {
		return m.abort(ctx, result, apperrors.Wrap(err, apperrors.ErrChatSubmissionFailed, "failed to start run")), nil
	}
	if run.ThreadID == "" {
		run.ThreadID = threadID
	}
	result.RunID = run.ID
	result.Status = run.Status
	m.events.Publish(sessionID, EventRunCreated, runEvent{RunID: run.ID, ThreadID: threadID, Status: run.Status})
	log.Info("run created", zap.String("thread_id", threadID), zap.String("run_id", run.ID))

	run, pollErr := m.pollRun(ctx, sessionID, run)
	return m.resolve(ctx, sessionID, run, pollErr, result), nil
}

// ResolveRun settles a run of the session that may already be recorded.
// A run with an entry in the transcript is returned as is, with no remote calls.
func (m *SessionManager) ResolveRun(ctx context.Context, sessionID, runID string) (*types.TurnResult, error) {
	unlock, err := m.repo.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ThreadID == "" {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "run %s", runID)
	}

	result := &types.TurnResult{SessionID: sessionID, ThreadID: session.ThreadID, RunID: runID}
	if entry := session.ReplyForRun(runID); entry != nil {
		return fillFromEntry(result, entry), nil
	}

	ctx = logger.WithSessionID(ctx, sessionID)
	run, err := m.api.RetrieveRun(ctx, session.ThreadID, runID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrChatRunFailed, "failed to retrieve run")
	}
	if run.ThreadID == "" {
		run.ThreadID = session.ThreadID
	}

	run, pollErr := m.pollRun(ctx, sessionID, run)
	return m.resolve(ctx, sessionID, run, pollErr, result), nil
}

// resolve maps the final run state onto the transcript
func (m *SessionManager) resolve(ctx context.Context, sessionID string, run *types.Run, pollErr error, result *types.TurnResult) *types.TurnResult {
	// the caller may be gone; the outcome is still recorded
	ctx = context.WithoutCancel(ctx)
	result.RunID = run.ID
	result.Status = run.Status

	if pollErr != nil {
		m.cancelRun(ctx, run)
		return m.recordAssistant(ctx, sessionID, run, m.pollDiagnostic(run, pollErr), true, result)
	}

	switch run.Status {
	case types.RunCompleted:
		return m.recordReply(ctx, sessionID, run, result)
	case types.RunRequiresAction:
		// tool calls are not served
		m.cancelRun(ctx, run)
		return m.recordAssistant(ctx, sessionID, run, statusDiagnostic(run), true, result)
	default:
		// failed, cancelled, expired, incomplete, unknown
		return m.recordAssistant(ctx, sessionID, run, statusDiagnostic(run), true, result)
	}
}

// recordReply fetches the run's reply and appends it
func (m *SessionManager) recordReply(ctx context.Context, sessionID string, run *types.Run, result *types.TurnResult) *types.TurnResult {
	messages, err := m.api.ListRunMessages(ctx, run.ThreadID, run.ID)
	if err != nil {
		m.logger.WithContext(ctx).Error("failed to list run messages", zap.String("run_id", run.ID), zap.Error(err))
		return m.recordAssistant(ctx, sessionID, run, "assistant run completed but its reply could not be fetched: "+err.Error(), true, result)
	}

	reply, ok := SelectReply(messages, run.ID)
	if !ok {
		return m.recordAssistant(ctx, sessionID, run, "assistant run completed without a text reply", true, result)
	}
	return m.recordAssistant(ctx, sessionID, run, types.JoinText(reply.Content), false, result)
}

// recordAssistant appends one assistant entry for the run unless it already has one
func (m *SessionManager) recordAssistant(ctx context.Context, sessionID string, run *types.Run, text string, diagnostic bool, result *types.TurnResult) *types.TurnResult {
	log := m.logger.WithContext(ctx)

	session, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		log.Error("session vanished before reply was recorded", zap.String("run_id", run.ID), zap.Error(err))
		return m.abort(ctx, result, err)
	}
	if entry := session.ReplyForRun(run.ID); entry != nil {
		return fillFromEntry(result, entry)
	}

	msg := &types.Message{
		Role:       types.RoleAssistant,
		Content:    []types.ContentPart{types.TextPart(text)},
		RunID:      run.ID,
		Diagnostic: diagnostic,
		CreatedAt:  m.now(),
	}
	if !diagnostic && m.renderer != nil {
		if html, err := m.renderer.Render(text); err != nil {
			log.Warn("failed to render reply", zap.Error(err))
		} else {
			msg.HTML = html
		}
	}
	if m.counter != nil {
		n := m.counter.Count(text)
		msg.TokenCount = &n
	}

	if err := m.repo.Append(ctx, sessionID, msg); err != nil {
		log.Error("failed to record assistant message", zap.String("run_id", run.ID), zap.Error(err))
	}

	fillFromEntry(result, msg)
	if diagnostic {
		log.Warn("assistant run did not reply",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.String("diagnostic", text),
		)
		m.events.Publish(sessionID, EventDiagnostic, msg)
	} else {
		log.Info("assistant replied", zap.String("run_id", run.ID), zap.Int("length", len(text)))
		m.events.Publish(sessionID, EventReply, msg)
	}
	return result
}

// abort ends a turn before any run outcome exists. The transcript is not touched.
func (m *SessionManager) abort(ctx context.Context, result *types.TurnResult, err error) *types.TurnResult {
	appErr := apperrors.Wrap(err, apperrors.ErrInternalServer)
	reply := appErr.UserMessage()
	if appErr.Err != nil {
		reply += ": " + appErr.Err.Error()
	}

	result.Outcome = types.OutcomeAborted
	result.Reply = reply
	result.ErrorCode = appErr.Code

	m.logger.WithContext(ctx).Warn("turn aborted", zap.Int("code", appErr.Code), zap.Error(err))
	m.events.Publish(result.SessionID, EventTurnAborted, abortedEvent{Code: appErr.Code, Message: reply})
	return result
}

func fillFromEntry(result *types.TurnResult, entry *types.Message) *types.TurnResult {
	result.AssistantMessage = entry
	result.Reply = entry.Text()
	if entry.Diagnostic {
		result.Outcome = types.OutcomeRunFailed
		result.ErrorCode = apperrors.ErrChatRunFailed
	} else {
		result.Outcome = types.OutcomeReplied
		result.ErrorCode = 0
	}
	return result
}
