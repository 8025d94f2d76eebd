package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/st2u-assistant/internal/chat/biz"
	"github.com/lk2023060901/st2u-assistant/internal/chat/data"
	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/sse"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

// stubAPI completes every run on the first status check
type stubAPI struct {
	mu      sync.Mutex
	runs    int
	uploads []string
	status  types.RunStatus
	speech  []byte
	parts   [][]types.ContentPart
}

func (s *stubAPI) CreateThread(ctx context.Context) (string, error) { return "thread_1", nil }

func (s *stubAPI) UploadFile(ctx context.Context, name string, data []byte, purpose biz.FilePurpose) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, name)
	return fmt.Sprintf("file_%d", len(s.uploads)), nil
}

func (s *stubAPI) AppendMessage(ctx context.Context, threadID string, parts []types.ContentPart) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts = append(s.parts, parts)
	return "msg_user", nil
}

func (s *stubAPI) CreateRun(ctx context.Context, threadID, assistantID string) (*types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	return &types.Run{ID: fmt.Sprintf("run_%d", s.runs), ThreadID: threadID, Status: types.RunQueued}, nil
}

func (s *stubAPI) RetrieveRun(ctx context.Context, threadID, runID string) (*types.Run, error) {
	status := s.status
	if status == "" {
		status = types.RunCompleted
	}
	return &types.Run{ID: runID, ThreadID: threadID, Status: status}, nil
}

func (s *stubAPI) CancelRun(ctx context.Context, threadID, runID string) error { return nil }

func (s *stubAPI) ListRunMessages(ctx context.Context, threadID, runID string) ([]types.RemoteMessage, error) {
	return []types.RemoteMessage{{
		ID:      "msg_" + runID,
		Role:    types.RoleAssistant,
		RunID:   runID,
		Content: []types.ContentPart{types.TextPart("**Hold** for now.")},
	}}, nil
}

func (s *stubAPI) CreateSpeech(ctx context.Context, req biz.SpeechRequest) ([]byte, error) {
	if s.speech == nil {
		return nil, fmt.Errorf("tts unavailable")
	}
	return s.speech, nil
}

func (s *stubAPI) VerifyAssistant(ctx context.Context, assistantID string) error { return nil }

type staticAudioStore struct{}

func (staticAudioStore) Save(ctx context.Context, speech *types.Speech, format string) (string, error) {
	return "https://cdn.example/" + speech.SessionID + "." + format, nil
}

type testServer struct {
	*httptest.Server
	api *stubAPI
	hub *sse.Hub
}

func newTestServer(t *testing.T, api *stubAPI, extra ...biz.Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, err := workerpool.New(&workerpool.Config{Workers: 2, ExpiryDuration: time.Minute}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Shutdown(time.Second) })

	opts := biz.DefaultOptions()
	opts.AssistantID = "asst_1"
	opts.PollInterval = time.Millisecond
	opts.PollTimeout = 2 * time.Second

	hub := sse.NewHub()
	options := append([]biz.Option{biz.WithPublisher(NewHubPublisher(hub))}, extra...)
	manager := biz.NewSessionManager(data.NewMemorySessionRepo(time.Hour), api, pool, opts, logger.NewNop(), options...)

	svc := NewChatService(manager, hub, StreamOptions{BufferSize: 16}, logger.NewNop())
	r := gin.New()
	svc.RegisterRoutes(r.Group("/api/v1"))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, api: api, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) (int, gjson.Result, http.Header) {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, gjson.ParseBytes(buf.Bytes()), resp.Header
}

func (s *testServer) open(t *testing.T) string {
	t.Helper()
	status, body, _ := s.do(t, http.MethodPost, "/api/v1/sessions", nil, "")
	require.Equal(t, http.StatusCreated, status)
	id := body.Get("data.id").String()
	require.NotEmpty(t, id)
	return id
}

func turnForm(t *testing.T, text string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if text != "" {
		require.NoError(t, w.WriteField("text", text))
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "chart.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func (s *testServer) submit(t *testing.T, sessionID, text string, image []byte) (int, gjson.Result) {
	t.Helper()
	body, ct := turnForm(t, text, image)
	status, resp, _ := s.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/turns", body, ct)
	return status, resp
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, &stubAPI{})
	id := srv.open(t)

	status, body, _ := srv.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body.Get("data.id").String())
	assert.Empty(t, body.Get("data.thread_id").String())
	assert.Zero(t, body.Get("data.transcript.#").Int())

	status, _, _ = srv.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, body, _ = srv.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.EqualValues(t, apperrors.ErrChatSessionNotFound, body.Get("code").Int())
}

func TestSubmitTurn_TextReply(t *testing.T) {
	srv := newTestServer(t, &stubAPI{})
	id := srv.open(t)

	status, body := srv.submit(t, id, "What is the outlook?", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(types.OutcomeReplied), body.Get("data.outcome").String())
	assert.Equal(t, "**Hold** for now.", body.Get("data.reply").String())
	assert.Equal(t, "run_1", body.Get("data.run_id").String())
	assert.Equal(t, "thread_1", body.Get("data.thread_id").String())

	status, body, _ = srv.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/transcript", nil, "")
	require.Equal(t, http.StatusOK, status)
	entries := body.Get("data").Array()
	require.Len(t, entries, 2)
	assert.Equal(t, "user", entries[0].Get("role").String())
	assert.Equal(t, "What is the outlook?", entries[0].Get("content.0.text").String())
	assert.Equal(t, "assistant", entries[1].Get("role").String())
	assert.EqualValues(t, 1, entries[1].Get("index").Int())
}

func TestSubmitTurn_ImageOnly(t *testing.T) {
	api := &stubAPI{}
	srv := newTestServer(t, api)
	id := srv.open(t)

	status, body := srv.submit(t, id, "", pngBytes)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(types.OutcomeReplied), body.Get("data.outcome").String())
	assert.Equal(t, []string{"chart.png"}, api.uploads)

	require.Len(t, api.parts, 1)
	require.Len(t, api.parts[0], 2)
	assert.Equal(t, biz.DefaultOptions().DefaultImagePrompt, api.parts[0][0].Text)
	assert.Equal(t, types.ContentImageFile, api.parts[0][1].Type)
}

func TestSubmitTurn_InputErrors(t *testing.T) {
	srv := newTestServer(t, &stubAPI{})
	id := srv.open(t)

	status, body := srv.submit(t, id, "   ", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.EqualValues(t, apperrors.ErrChatEmptyTurn, body.Get("code").Int())

	status, body = srv.submit(t, id, "look", []byte("plain text, not an image"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.EqualValues(t, apperrors.ErrChatUnsupportedAttachment, body.Get("code").Int())

	status, body = srv.submit(t, "missing", "hello", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.EqualValues(t, apperrors.ErrChatSessionNotFound, body.Get("code").Int())
}

func TestSubmitTurn_RunFailed(t *testing.T) {
	srv := newTestServer(t, &stubAPI{status: types.RunFailed})
	id := srv.open(t)

	status, body := srv.submit(t, id, "hello", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(types.OutcomeRunFailed), body.Get("data.outcome").String())
	assert.Contains(t, body.Get("data.reply").String(), "failed")
	assert.EqualValues(t, apperrors.ErrChatRunFailed, body.Get("data.error_code").Int())
}

func TestResolveRun(t *testing.T) {
	srv := newTestServer(t, &stubAPI{})
	id := srv.open(t)

	_, first := srv.submit(t, id, "hello", nil)
	runID := first.Get("data.run_id").String()

	status, body, _ := srv.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/runs/"+runID+"/resolve", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first.Get("data.reply").String(), body.Get("data.reply").String())

	_, transcript, _ := srv.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/transcript", nil, "")
	assert.EqualValues(t, 2, transcript.Get("data.#").Int())
}

func TestSpeak(t *testing.T) {
	audio := []byte("ID3-audio")
	srv := newTestServer(t, &stubAPI{speech: audio})
	id := srv.open(t)
	srv.submit(t, id, "hello", nil)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sessions/"+id+"/transcript/1/speech", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	var got bytes.Buffer
	_, _ = got.ReadFrom(resp.Body)
	assert.Equal(t, audio, got.Bytes())

	status, body, _ := srv.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/transcript/0/speech", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.EqualValues(t, apperrors.ErrChatNotAssistantEntry, body.Get("code").Int())

	status, body, _ = srv.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/transcript/9/speech", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.EqualValues(t, apperrors.ErrChatEntryNotFound, body.Get("code").Int())

	status, body, _ = srv.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/transcript/x/speech", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.EqualValues(t, apperrors.ErrInvalidParams, body.Get("code").Int())
}

func TestSpeak_URLMode(t *testing.T) {
	srv := newTestServer(t, &stubAPI{speech: []byte("ID3")}, biz.WithAudioStore(staticAudioStore{}))
	id := srv.open(t)
	srv.submit(t, id, "hello", nil)

	status, body, _ := srv.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/transcript/1/speech?mode=url", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://cdn.example/"+id+".mp3", body.Get("data.url").String())
	assert.Equal(t, "audio/mpeg", body.Get("data.content_type").String())

	status, _, header := srv.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/transcript/1/speech", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://cdn.example/"+id+".mp3", header.Get("X-Speech-URL"))
}

func TestSpeak_Failure(t *testing.T) {
	srv := newTestServer(t, &stubAPI{})
	id := srv.open(t)
	srv.submit(t, id, "hello", nil)

	status, body, _ := srv.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/transcript/1/speech", nil, "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.EqualValues(t, apperrors.ErrChatPlaybackFailed, body.Get("code").Int())

	_, transcript, _ := srv.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/transcript", nil, "")
	assert.EqualValues(t, 2, transcript.Get("data.#").Int())
}

func TestStreamEvents(t *testing.T) {
	srv := newTestServer(t, &stubAPI{})
	id := srv.open(t)

	status, _, _ := srv.do(t, http.MethodGet, "/api/v1/sessions/missing/events", nil, "")
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool {
		return srv.hub.GetClientCount(sessionResource(id)) == 1
	}, time.Second, 5*time.Millisecond)

	body, ct := turnForm(t, "hello", nil)
	go func() {
		resp, err := http.Post(srv.URL+"/api/v1/sessions/"+id+"/turns", ct, body)
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	var seen []string
	reader := bufio.NewReader(resp.Body)
	deadline := time.After(3 * time.Second)
	for {
		lineCh := make(chan string, 1)
		go func() {
			line, _ := reader.ReadString('\n')
			lineCh <- line
		}()
		var line string
		select {
		case line = <-lineCh:
		case <-deadline:
			t.Fatalf("no reply event, saw %v", seen)
		}
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		event := strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		seen = append(seen, event)
		if event == biz.EventReply {
			break
		}
	}

	assert.Equal(t, []string{
		"connected",
		biz.EventTurnStarted,
		biz.EventUserMessage,
		biz.EventRunCreated,
		biz.EventRunStatus,
		biz.EventReply,
	}, seen)
}
