package biz

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"go.uber.org/zap"
)

// image types accepted for vision input
var visionMimeTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// preparedAttachment is an attachment read into memory and type-checked
type preparedAttachment struct {
	kind     types.AttachmentKind
	name     string
	mimeType string
	data     []byte
	fileID   string
}

// prepareAttachment reads the attachment within its size limit and sniffs its type
func (m *SessionManager) prepareAttachment(a *types.Attachment) (*preparedAttachment, error) {
	if a == nil {
		return nil, nil
	}
	if a.Reader == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "attachment has no content")
	}

	limit := m.opts.MaxImageBytes
	if a.Kind == types.AttachmentMedia {
		limit = m.opts.MaxMediaBytes
	}
	if a.Size > limit {
		return nil, apperrors.Newf(apperrors.ErrChatAttachmentTooLarge, "%s exceeds %d bytes", a.FileName, limit)
	}

	data, err := io.ReadAll(io.LimitReader(a.Reader, limit+1))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParams, "failed to read attachment")
	}
	if int64(len(data)) > limit {
		return nil, apperrors.Newf(apperrors.ErrChatAttachmentTooLarge, "%s exceeds %d bytes", a.FileName, limit)
	}
	if len(data) == 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParams, "%s is empty", a.FileName)
	}

	detected := mimetype.Detect(data)
	if !AcceptsAttachment(a.Kind, detected) {
		return nil, apperrors.Newf(apperrors.ErrChatUnsupportedAttachment, "%s attachment of type %s", a.Kind, detected.String())
	}

	name := a.FileName
	if name == "" {
		name = string(a.Kind) + detected.Extension()
	}

	return &preparedAttachment{
		kind:     a.Kind,
		name:     name,
		mimeType: detected.String(),
		data:     data,
	}, nil
}

// AcceptsAttachment reports whether a sniffed type is allowed for the attachment kind:
// vision image formats for images, any audio or video type for media.
func AcceptsAttachment(kind types.AttachmentKind, mt *mimetype.MIME) bool {
	switch kind {
	case types.AttachmentImage:
		return mimetype.EqualsAny(mt.String(), visionMimeTypes...)
	case types.AttachmentMedia:
		for m := mt; m != nil; m = m.Parent() {
			if strings.HasPrefix(m.String(), "audio/") || strings.HasPrefix(m.String(), "video/") {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// uploadAttachments uploads all attachments of a turn concurrently.
// Any failure fails the whole set.
func (m *SessionManager) uploadAttachments(ctx context.Context, attachments ...*preparedAttachment) error {
	tasks := make([]func(ctx context.Context) error, 0, len(attachments))
	for _, att := range attachments {
		if att == nil {
			continue
		}
		att := att
		tasks = append(tasks, func(ctx context.Context) error {
			purpose := PurposeVision
			if att.kind == types.AttachmentMedia {
				purpose = PurposeAssistants
			}

			fileID, err := m.api.UploadFile(ctx, att.name, att.data, purpose)
			if err != nil {
				return fmt.Errorf("upload %s: %w", att.name, err)
			}
			att.fileID = fileID

			m.logger.Debug("attachment uploaded",
				zap.String("file_name", att.name),
				zap.String("file_id", fileID),
				zap.String("purpose", string(purpose)),
				zap.Int("size", len(att.data)),
			)
			return nil
		})
	}
	if len(tasks) == 0 {
		return nil
	}

	if err := m.runner.RunAll(ctx, tasks...); err != nil {
		return apperrors.Wrap(err, apperrors.ErrChatUploadFailed)
	}
	return nil
}
