package biz

import (
	"fmt"
	"strings"

	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
)

// effectiveText substitutes the default prompt when only attachments were sent.
// The image prompt wins when both attachments are present.
func (m *SessionManager) effectiveText(text string, image, media *preparedAttachment) string {
	text = strings.TrimSpace(text)
	switch {
	case text != "":
		return text
	case image != nil:
		return m.opts.DefaultImagePrompt
	case media != nil:
		return m.opts.DefaultMediaPrompt
	default:
		return ""
	}
}

// compose builds the message sent to the thread: text, image reference,
// transcription instruction, media reference.
func (m *SessionManager) compose(text string, image, media *preparedAttachment) []types.ContentPart {
	parts := make([]types.ContentPart, 0, 4)
	if text != "" {
		parts = append(parts, types.TextPart(text))
	}
	if image != nil {
		parts = append(parts, types.ImagePart(image.fileID, image.name, image.mimeType, m.opts.ImageDetail))
	}
	if media != nil {
		parts = append(parts,
			types.TextPart(fmt.Sprintf(m.opts.TranscriptionInstruction, media.name, media.fileID)),
			types.FilePart(media.fileID, media.name, media.mimeType, types.FileUseTranscription),
		)
	}
	return parts
}

// userEntry is what the transcript shows for the turn; the injected
// transcription instruction is not part of it.
func (m *SessionManager) userEntry(text string, image, media *preparedAttachment) *types.Message {
	parts := make([]types.ContentPart, 0, 3)
	if text != "" {
		parts = append(parts, types.TextPart(text))
	}
	if image != nil {
		parts = append(parts, types.ImagePart(image.fileID, image.name, image.mimeType, m.opts.ImageDetail))
	}
	if media != nil {
		parts = append(parts, types.FilePart(media.fileID, media.name, media.mimeType, types.FileUseTranscription))
	}

	msg := &types.Message{
		Role:      types.RoleUser,
		Content:   parts,
		CreatedAt: m.now(),
	}
	if m.counter != nil && text != "" {
		n := m.counter.Count(text)
		msg.TokenCount = &n
	}
	return msg
}
