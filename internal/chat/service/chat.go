package service

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/st2u-assistant/internal/chat/biz"
	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/response"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/sse"
	"go.uber.org/zap"
)

// StreamOptions tunes the per-session event stream
type StreamOptions struct {
	Heartbeat  time.Duration // 0 disables heartbeats
	BufferSize int
}

// ChatService handles HTTP requests for chat sessions
type ChatService struct {
	manager *biz.SessionManager
	hub     *sse.Hub
	stream  StreamOptions
	logger  *logger.Logger
}

// NewChatService creates a new chat service
func NewChatService(manager *biz.SessionManager, hub *sse.Hub, stream StreamOptions, log *logger.Logger) *ChatService {
	if log == nil {
		log = logger.L()
	}
	if stream.BufferSize <= 0 {
		stream.BufferSize = 32
	}
	return &ChatService{
		manager: manager,
		hub:     hub,
		stream:  stream,
		logger:  log.Named("chat.http"),
	}
}

// RegisterRoutes registers chat routes
func (s *ChatService) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("", s.OpenSession)
		sessions.GET("/:id", s.GetSession)
		sessions.DELETE("/:id", s.CloseSession)
		sessions.POST("/:id/turns", s.SubmitTurn)
		sessions.POST("/:id/runs/:run_id/resolve", s.ResolveRun)
		sessions.GET("/:id/transcript", s.GetTranscript)
		sessions.POST("/:id/transcript/:index/speech", s.Speak)
		sessions.GET("/:id/events", s.StreamEvents)
	}
}

// OpenSession creates an empty session
// @Summary Open session
// @Tags chat
// @Produce json
// @Success 201 {object} types.Session
// @Router /api/v1/sessions [post]
func (s *ChatService) OpenSession(c *gin.Context) {
	session, err := s.manager.Open(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Created(c, session)
}

// GetSession returns a session with its transcript
// @Summary Get session
// @Tags chat
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} types.Session
// @Router /api/v1/sessions/{id} [get]
func (s *ChatService) GetSession(c *gin.Context) {
	session, err := s.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, session)
}

// CloseSession destroys a session
// @Summary Close session
// @Tags chat
// @Param id path string true "Session ID"
// @Success 204
// @Router /api/v1/sessions/{id} [delete]
func (s *ChatService) CloseSession(c *gin.Context) {
	if err := s.manager.Close(c.Request.Context(), c.Param("id")); err != nil {
		response.HandleError(c, err)
		return
	}
	response.NoContent(c)
}

// SubmitTurn sends one turn and blocks until the run resolves
// @Summary Submit turn
// @Tags chat
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param text formData string false "Message text"
// @Param image formData file false "Chart image"
// @Param media formData file false "Audio or video recording"
// @Success 200 {object} types.TurnResult
// @Router /api/v1/sessions/{id}/turns [post]
func (s *ChatService) SubmitTurn(c *gin.Context) {
	sessionID := c.Param("id")
	in := types.TurnInput{Text: c.PostForm("text")}

	image, closeImage, err := formAttachment(c, "image", types.AttachmentImage)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	defer closeImage()
	media, closeMedia, err := formAttachment(c, "media", types.AttachmentMedia)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	defer closeMedia()
	in.Image, in.Media = image, media

	ctx := logger.WithSessionID(c.Request.Context(), sessionID)
	result, err := s.manager.SubmitTurn(ctx, sessionID, in)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	if result.Outcome != types.OutcomeReplied {
		logger.FromContext(ctx).Info("turn ended without reply",
			zap.String("outcome", string(result.Outcome)),
			zap.Int("error_code", result.ErrorCode))
	}
	response.Success(c, result)
}

// ResolveRun finishes a run whose turn was interrupted
// @Summary Resolve run
// @Tags chat
// @Produce json
// @Param id path string true "Session ID"
// @Param run_id path string true "Run ID"
// @Success 200 {object} types.TurnResult
// @Router /api/v1/sessions/{id}/runs/{run_id}/resolve [post]
func (s *ChatService) ResolveRun(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := logger.WithSessionID(c.Request.Context(), sessionID)

	result, err := s.manager.ResolveRun(ctx, sessionID, c.Param("run_id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, result)
}

// GetTranscript returns the transcript in insertion order
// @Summary Get transcript
// @Tags chat
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} types.Message
// @Router /api/v1/sessions/{id}/transcript [get]
func (s *ChatService) GetTranscript(c *gin.Context) {
	transcript, err := s.manager.Transcript(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, transcript)
}

// Speak synthesizes one assistant entry. The audio is returned as the body
// unless ?mode=url is given and a playback URL is available.
// @Summary Speak transcript entry
// @Tags chat
// @Produce audio/mpeg
// @Param id path string true "Session ID"
// @Param index path int true "Transcript index"
// @Param mode query string false "url"
// @Router /api/v1/sessions/{id}/transcript/{index}/speech [post]
func (s *ChatService) Speak(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.BadRequest(c, "index must be a number")
		return
	}

	speech, err := s.manager.Speak(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	if speech.URL != "" {
		if c.Query("mode") == "url" {
			response.Success(c, speech)
			return
		}
		c.Header("X-Speech-URL", speech.URL)
	}
	c.Data(http.StatusOK, speech.ContentType, speech.Audio)
}

// StreamEvents streams turn progress of a session
// @Summary Session events
// @Tags chat
// @Produce text/event-stream
// @Param id path string true "Session ID"
// @Router /api/v1/sessions/{id}/events [get]
func (s *ChatService) StreamEvents(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.manager.Get(c.Request.Context(), sessionID); err != nil {
		response.HandleError(c, err)
		return
	}

	resource := sessionResource(sessionID)
	log := s.logger.With(zap.String("session_id", sessionID))
	var clientID string
	stream := sse.NewStream(c, s.hub).
		WithResource(resource).
		WithHeartbeat(s.stream.Heartbeat).
		WithBufferSize(s.stream.BufferSize).
		OnConnect(func() {
			log.Debug("sse subscriber connected",
				zap.String("client_id", clientID),
				zap.Int("subscribers", s.hub.GetClientCount(resource)))
		}).
		OnDisconnect(func() {
			log.Debug("sse subscriber disconnected",
				zap.String("client_id", clientID),
				zap.Int("subscribers", s.hub.GetClientCount(resource)))
		}).
		OnError(func(err error) {
			log.Debug("sse write failed", zap.String("client_id", clientID), zap.Error(err))
		}).
		Build()
	clientID = stream.ClientID()

	stream.StartStreaming()
}

// formAttachment reads an optional multipart file field
func formAttachment(c *gin.Context, field string, kind types.AttachmentKind) (*types.Attachment, func(), error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, apperrors.Wrapf(err, apperrors.ErrInvalidParams, "invalid %s upload", field)
	}

	file, err := header.Open()
	if err != nil {
		return nil, func() {}, apperrors.Wrapf(err, apperrors.ErrInvalidParams, "failed to open %s", field)
	}

	return &types.Attachment{
		Kind:     kind,
		FileName: header.Filename,
		Size:     header.Size,
		Reader:   file,
	}, closer(file), nil
}

func closer(f multipart.File) func() {
	return func() { _ = f.Close() }
}
