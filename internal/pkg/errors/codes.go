package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer = 1000
	ErrInvalidParams  = 1001
	ErrNotFound       = 1002
	ErrConflict       = 1005
	ErrServiceUnavail = 1008

	// Chat errors (6000-6999)
	ErrChatConfiguration         = 6000
	ErrChatAuthentication        = 6001
	ErrChatSessionNotFound       = 6002
	ErrChatEmptyTurn             = 6003
	ErrChatUploadFailed          = 6004
	ErrChatSubmissionFailed      = 6005
	ErrChatRunFailed             = 6006
	ErrChatPlaybackFailed        = 6007
	ErrChatTurnInProgress        = 6008
	ErrChatEntryNotFound         = 6009
	ErrChatUnsupportedAttachment = 6010
	ErrChatAttachmentTooLarge    = 6011
	ErrChatNotAssistantEntry     = 6012
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer: {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:  {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:       {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:       {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrServiceUnavail: {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrChatConfiguration:         {ErrChatConfiguration, http.StatusInternalServerError, "Assistant is not configured"},
	ErrChatAuthentication:        {ErrChatAuthentication, http.StatusBadGateway, "Assistant credential was rejected"},
	ErrChatSessionNotFound:       {ErrChatSessionNotFound, http.StatusNotFound, "Session not found"},
	ErrChatEmptyTurn:             {ErrChatEmptyTurn, http.StatusBadRequest, "A turn needs text or an attachment"},
	ErrChatUploadFailed:          {ErrChatUploadFailed, http.StatusBadGateway, "Attachment upload failed"},
	ErrChatSubmissionFailed:      {ErrChatSubmissionFailed, http.StatusBadGateway, "Message submission failed"},
	ErrChatRunFailed:             {ErrChatRunFailed, http.StatusBadGateway, "Assistant run did not complete"},
	ErrChatPlaybackFailed:        {ErrChatPlaybackFailed, http.StatusBadGateway, "Speech synthesis failed"},
	ErrChatTurnInProgress:        {ErrChatTurnInProgress, http.StatusConflict, "Another turn is still running"},
	ErrChatEntryNotFound:         {ErrChatEntryNotFound, http.StatusNotFound, "Transcript entry not found"},
	ErrChatUnsupportedAttachment: {ErrChatUnsupportedAttachment, http.StatusBadRequest, "Unsupported attachment type"},
	ErrChatAttachmentTooLarge:    {ErrChatAttachmentTooLarge, http.StatusRequestEntityTooLarge, "Attachment exceeds size limit"},
	ErrChatNotAssistantEntry:     {ErrChatNotAssistantEntry, http.StatusBadRequest, "Only assistant replies can be spoken"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
