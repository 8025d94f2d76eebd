package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrChatSessionNotFound, "abc")
	assert.Equal(t, ErrChatSessionNotFound, err.Code)
	assert.Equal(t, "Session not found", err.Message)
	assert.Equal(t, "[6002] Session not found: abc", err.Error())
	assert.Equal(t, http.StatusNotFound, GetHTTPStatus(err.Code))
	assert.Equal(t, "Session not found: abc", err.UserMessage())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrChatUploadFailed))

	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrChatUploadFailed, "image.png")
	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "Attachment upload failed: image.png", err.UserMessage())

	t.Run("keeps inner code", func(t *testing.T) {
		inner := New(ErrChatAuthentication)
		outer := Wrap(fmt.Errorf("create thread: %w", inner), ErrChatSubmissionFailed, "thread")
		assert.Equal(t, ErrChatAuthentication, outer.Code)
		assert.Equal(t, "thread", outer.Details)
		assert.Empty(t, inner.Details, "inner error must not be mutated")
	})
}

func TestIsAndExtractCode(t *testing.T) {
	err := fmt.Errorf("turn: %w", New(ErrChatTurnInProgress))
	assert.True(t, Is(err, ErrChatTurnInProgress))
	assert.False(t, Is(err, ErrChatEmptyTurn))
	assert.Equal(t, ErrChatTurnInProgress, ExtractCode(err))
	assert.Equal(t, ErrInternalServer, ExtractCode(stderrors.New("plain")))
}

func TestGetDetails(t *testing.T) {
	assert.Equal(t, "d", GetDetails(New(ErrInvalidParams, "d")))
	assert.Equal(t, "cause", GetDetails(Wrap(stderrors.New("cause"), ErrInternalServer)))
	assert.Equal(t, "plain", GetDetails(stderrors.New("plain")))
	assert.Empty(t, GetDetails(nil))
}

func TestCodes(t *testing.T) {
	tests := []struct {
		code   int
		status int
	}{
		{ErrChatEmptyTurn, http.StatusBadRequest},
		{ErrChatTurnInProgress, http.StatusConflict},
		{ErrChatAttachmentTooLarge, http.StatusRequestEntityTooLarge},
		{ErrChatPlaybackFailed, http.StatusBadGateway},
		{ErrChatConfiguration, http.StatusInternalServerError},
		{99999, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, GetHTTPStatus(tt.code))
		})
	}
	assert.Equal(t, "Invalid parameters: text", FormatError(ErrInvalidParams, "text"))
	assert.Equal(t, "Invalid parameters", FormatError(ErrInvalidParams))
}
