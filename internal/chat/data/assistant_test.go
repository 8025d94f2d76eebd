package data

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/lk2023060901/st2u-assistant/internal/chat/biz"
	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	"github.com/lk2023060901/st2u-assistant/internal/conf"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOpenAI 记录请求并返回预置响应
type fakeOpenAI struct {
	mu            sync.Mutex
	uploads       map[string]string // 文件名 -> 用途
	appended      map[string]interface{}
	betaHeader    string
	listRunID     string
	speechRequest map[string]interface{}
}

func newFakeOpenAI(t *testing.T) (*fakeOpenAI, *AssistantClient) {
	t.Helper()
	f := &fakeOpenAI{uploads: map[string]string{}}

	writeJSON := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"thread_1","object":"thread"}`)
	})
	mux.HandleFunc("POST /v1/files", func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.uploads[header.Filename] = r.FormValue("purpose")
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, `{"id":"file-`+header.Filename+`","object":"file","purpose":"`+r.FormValue("purpose")+`"}`)
	})
	mux.HandleFunc("POST /v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.appended = body
		f.betaHeader = r.Header.Get("OpenAI-Beta")
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, `{"id":"msg_user","object":"thread.message","role":"user"}`)
	})
	mux.HandleFunc("POST /v1/threads/thread_bad/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error":{"message":"Invalid file id","type":"invalid_request_error","code":null}}`)
	})
	mux.HandleFunc("POST /v1/threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"run_1","object":"thread.run","thread_id":"thread_1","status":"queued"}`)
	})
	mux.HandleFunc("GET /v1/threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"run_1","thread_id":"thread_1","status":"failed","last_error":{"code":"rate_limit_exceeded","message":"quota"}}`)
	})
	mux.HandleFunc("GET /v1/threads/thread_1/runs/run_2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"run_2","thread_id":"thread_1","status":"something_new"}`)
	})
	mux.HandleFunc("POST /v1/threads/thread_1/runs/run_1/cancel", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"run_1","thread_id":"thread_1","status":"cancelling"}`)
	})
	mux.HandleFunc("GET /v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.listRunID = r.URL.Query().Get("run_id")
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, `{"object":"list","data":[
			{"id":"msg_2","role":"assistant","run_id":"run_1","created_at":20,"content":[{"type":"text","text":{"value":"second","annotations":[]}}]},
			{"id":"msg_1","role":"assistant","run_id":"run_1","created_at":10,"content":[{"type":"image_file","image_file":{"file_id":"file-chart"}},{"type":"text","text":{"value":"first","annotations":[]}}]}
		],"has_more":false}`)
	})
	mux.HandleFunc("POST /v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.speechRequest = body
		f.mu.Unlock()
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	})
	mux.HandleFunc("GET /v1/assistants/asst_ok", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"asst_ok","object":"assistant","model":"gpt-4o"}`)
	})
	mux.HandleFunc("GET /v1/assistants/asst_denied", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewAssistantClient(&conf.AssistantConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1/",
	}, logger.NewNop())
	require.NoError(t, err)
	return f, client
}

func TestNewAssistantClient_RequiresKey(t *testing.T) {
	_, err := NewAssistantClient(&conf.AssistantConfig{}, logger.NewNop())
	assert.True(t, apperrors.Is(err, apperrors.ErrChatConfiguration))
}

func TestAssistantClient_ThreadAndUpload(t *testing.T) {
	f, client := newFakeOpenAI(t)
	ctx := context.Background()

	threadID, err := client.CreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", threadID)

	fileID, err := client.UploadFile(ctx, "chart.png", []byte("png-bytes"), biz.PurposeVision)
	require.NoError(t, err)
	assert.Equal(t, "file-chart.png", fileID)
	assert.Equal(t, "vision", f.uploads["chart.png"])
}

func TestAssistantClient_AppendMessage(t *testing.T) {
	f, client := newFakeOpenAI(t)

	parts := []types.ContentPart{
		types.TextPart("what is in this chart?"),
		types.ImagePart("file-img", "chart.png", "image/png", "high"),
		types.TextPart("transcribe call.mp3"),
		types.FilePart("file-audio", "call.mp3", "audio/mpeg", types.FileUseTranscription),
	}
	id, err := client.AppendMessage(context.Background(), "thread_1", parts)
	require.NoError(t, err)
	assert.Equal(t, "msg_user", id)
	assert.Equal(t, "assistants=v2", f.betaHeader)

	assert.Equal(t, "user", f.appended["role"])
	content := f.appended["content"].([]interface{})
	require.Len(t, content, 3)
	assert.Equal(t, "text", content[0].(map[string]interface{})["type"])
	image := content[1].(map[string]interface{})
	assert.Equal(t, "image_file", image["type"])
	assert.Equal(t, "file-img", image["image_file"].(map[string]interface{})["file_id"])
	assert.Equal(t, "high", image["image_file"].(map[string]interface{})["detail"])
	assert.Equal(t, "transcribe call.mp3", content[2].(map[string]interface{})["text"])

	attachments := f.appended["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	attachment := attachments[0].(map[string]interface{})
	assert.Equal(t, "file-audio", attachment["file_id"])
	assert.Equal(t, "code_interpreter", attachment["tools"].([]interface{})[0].(map[string]interface{})["type"])
}

func TestAssistantClient_AppendMessageErrors(t *testing.T) {
	_, client := newFakeOpenAI(t)
	ctx := context.Background()

	_, err := client.AppendMessage(ctx, "thread_bad", []types.ContentPart{types.TextPart("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid file id")
	assert.False(t, apperrors.Is(err, apperrors.ErrChatAuthentication))

	_, err = client.AppendMessage(ctx, "thread_1", []types.ContentPart{
		types.FilePart("file-audio", "call.mp3", "audio/mpeg", types.FileUseTranscription),
	})
	assert.Error(t, err)

	_, err = client.AppendMessage(ctx, "thread_1", []types.ContentPart{types.TextPart("")})
	assert.Error(t, err)
}

func TestAssistantClient_Runs(t *testing.T) {
	f, client := newFakeOpenAI(t)
	ctx := context.Background()

	run, err := client.CreateRun(ctx, "thread_1", "asst_ok")
	require.NoError(t, err)
	assert.Equal(t, "run_1", run.ID)
	assert.Equal(t, types.RunQueued, run.Status)

	run, err = client.RetrieveRun(ctx, "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Equal(t, "rate_limit_exceeded: quota", run.LastError)

	run, err = client.RetrieveRun(ctx, "thread_1", "run_2")
	require.NoError(t, err)
	assert.Equal(t, types.RunUnknown, run.Status)

	require.NoError(t, client.CancelRun(ctx, "thread_1", "run_1"))

	messages, err := client.ListRunMessages(ctx, "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, "run_1", f.listRunID)
	require.Len(t, messages, 2)
	assert.Equal(t, types.RoleAssistant, messages[0].Role)
	assert.Equal(t, "run_1", messages[0].RunID)
	assert.Equal(t, int64(20), messages[0].CreatedAt)
	assert.Equal(t, "first", types.JoinText(messages[1].Content))
	assert.Equal(t, types.ContentImageFile, messages[1].Content[0].Type)

	reply, ok := biz.SelectReply(messages, "run_1")
	require.True(t, ok)
	assert.Equal(t, "msg_2", reply.ID)
}

func TestAssistantClient_Speech(t *testing.T) {
	f, client := newFakeOpenAI(t)

	audio, err := client.CreateSpeech(context.Background(), biz.SpeechRequest{
		Text:   "hello",
		Model:  "tts-1",
		Voice:  "alloy",
		Format: "mp3",
		Speed:  1.25,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-audio"), audio)
	assert.Equal(t, "hello", f.speechRequest["input"])
	assert.Equal(t, "alloy", f.speechRequest["voice"])
	assert.Equal(t, 1.25, f.speechRequest["speed"])
}

func TestAssistantClient_VerifyAssistant(t *testing.T) {
	_, client := newFakeOpenAI(t)
	ctx := context.Background()

	require.NoError(t, client.VerifyAssistant(ctx, "asst_ok"))

	err := client.VerifyAssistant(ctx, "asst_denied")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrChatAuthentication))
}
