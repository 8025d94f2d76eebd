package biz

import (
	"context"
	"strings"

	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"go.uber.org/zap"
)

var speechContentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/opus",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"pcm":  "audio/pcm",
}

// Speak synthesizes speech for one assistant entry of the transcript.
// Failures never touch the transcript.
func (m *SessionManager) Speak(ctx context.Context, sessionID string, index int) (*types.Speech, error) {
	session, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	entry := session.Entry(index)
	if entry == nil {
		return nil, apperrors.Newf(apperrors.ErrChatEntryNotFound, "index %d", index)
	}
	if entry.Role != types.RoleAssistant {
		return nil, apperrors.Newf(apperrors.ErrChatNotAssistantEntry, "index %d is a %s entry", index, entry.Role)
	}
	text := strings.TrimSpace(entry.Text())
	if text == "" {
		return nil, apperrors.Newf(apperrors.ErrChatPlaybackFailed, "entry %d has no text", index)
	}

	log := m.logger.WithContext(ctx).With(zap.String("session_id", sessionID), zap.Int("index", index))

	audio, err := m.api.CreateSpeech(ctx, SpeechRequest{
		Text:   text,
		Model:  m.opts.SpeechModel,
		Voice:  m.opts.SpeechVoice,
		Format: m.opts.SpeechFormat,
		Speed:  m.opts.SpeechSpeed,
	})
	if err != nil {
		log.Warn("speech synthesis failed", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrChatPlaybackFailed)
	}

	contentType, ok := speechContentTypes[m.opts.SpeechFormat]
	if !ok {
		contentType = "application/octet-stream"
	}
	speech := &types.Speech{
		SessionID:   sessionID,
		Index:       index,
		ContentType: contentType,
		Audio:       audio,
	}

	if m.audio != nil {
		url, err := m.audio.Save(ctx, speech, m.opts.SpeechFormat)
		if err != nil {
			// a storage failure still returns the audio
			log.Warn("failed to store speech", zap.Error(err))
		} else {
			speech.URL = url
		}
	}

	log.Info("speech synthesized", zap.Int("bytes", len(audio)), zap.Bool("stored", speech.URL != ""))
	return speech, nil
}
