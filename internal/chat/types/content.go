package types

import (
	"fmt"
	"strings"
)

// ContentPartType tags one unit of message content
type ContentPartType string

const (
	ContentText      ContentPartType = "text"
	ContentImageFile ContentPartType = "image_file"
	ContentFile      ContentPartType = "file"
)

// FileUse is the intended use of a referenced file
type FileUse string

const (
	FileUseVision        FileUse = "vision"
	FileUseTranscription FileUse = "transcription"
)

// ContentPart is a tagged union: Text for text parts, FileID (+Detail) for image
// references, FileID/FileName/Use for file references.
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	FileID   string          `json:"file_id,omitempty"`
	FileName string          `json:"file_name,omitempty"`
	MimeType string          `json:"mime_type,omitempty"`
	Detail   string          `json:"detail,omitempty"`
	Use      FileUse         `json:"use,omitempty"`
}

// TextPart builds a text content part
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentText, Text: text}
}

// ImagePart references an uploaded image for visual analysis
func ImagePart(fileID, fileName, mimeType, detail string) ContentPart {
	return ContentPart{
		Type:     ContentImageFile,
		FileID:   fileID,
		FileName: fileName,
		MimeType: mimeType,
		Detail:   detail,
		Use:      FileUseVision,
	}
}

// FilePart references an uploaded file with an intended use
func FilePart(fileID, fileName, mimeType string, use FileUse) ContentPart {
	return ContentPart{
		Type:     ContentFile,
		FileID:   fileID,
		FileName: fileName,
		MimeType: mimeType,
		Use:      use,
	}
}

// Validate checks that the fields required by the tag are present
func (p ContentPart) Validate() error {
	switch p.Type {
	case ContentText:
		if p.Text == "" {
			return fmt.Errorf("text part is empty")
		}
	case ContentImageFile:
		if p.FileID == "" {
			return fmt.Errorf("image part has no file id")
		}
	case ContentFile:
		if p.FileID == "" {
			return fmt.Errorf("file part has no file id")
		}
		if p.Use != FileUseVision && p.Use != FileUseTranscription {
			return fmt.Errorf("file part has unknown use %q", p.Use)
		}
	default:
		return fmt.Errorf("unknown content part type %q", p.Type)
	}
	return nil
}

// JoinText concatenates the text parts, separated by blank lines
func JoinText(parts []ContentPart) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == ContentText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}
