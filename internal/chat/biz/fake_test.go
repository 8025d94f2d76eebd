package biz_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/st2u-assistant/internal/chat/biz"
	"github.com/lk2023060901/st2u-assistant/internal/chat/data"
	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/workerpool"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	mp3Bytes = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x0f"), make([]byte, 64)...)
)

type uploadCall struct {
	name    string
	purpose biz.FilePurpose
}

// fakeAPI is a scripted remote assistant service
type fakeAPI struct {
	mu sync.Mutex

	threadErr error
	uploadErr error
	appendErr error
	runErr    error
	listErr   error
	speechErr error
	verifyErr error

	// statuses returned by successive RetrieveRun calls; the last one repeats
	statuses     []types.RunStatus
	createStatus types.RunStatus
	lastError    string
	// replies overrides the messages listed for a run
	replies func(runID string) []types.RemoteMessage

	threads       int
	runs          int
	retrieveCalls int
	uploads       []uploadCall
	appended      [][]types.ContentPart
	cancelled     []string
	speechReqs    []biz.SpeechRequest
}

func (f *fakeAPI) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.threadErr != nil {
		return "", f.threadErr
	}
	f.threads++
	return fmt.Sprintf("thread_%d", f.threads), nil
}

func (f *fakeAPI) UploadFile(ctx context.Context, name string, data []byte, purpose biz.FilePurpose) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, uploadCall{name: name, purpose: purpose})
	return "file-" + name, nil
}

func (f *fakeAPI) AppendMessage(ctx context.Context, threadID string, parts []types.ContentPart) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.appended = append(f.appended, parts)
	return fmt.Sprintf("msg_user_%d", len(f.appended)), nil
}

func (f *fakeAPI) CreateRun(ctx context.Context, threadID, assistantID string) (*types.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runErr != nil {
		return nil, f.runErr
	}
	f.runs++
	status := f.createStatus
	if status == "" {
		status = types.RunQueued
	}
	return &types.Run{ID: fmt.Sprintf("run_%d", f.runs), ThreadID: threadID, Status: status}, nil
}

func (f *fakeAPI) RetrieveRun(ctx context.Context, threadID, runID string) (*types.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveCalls++

	status := types.RunCompleted
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	run := &types.Run{ID: runID, ThreadID: threadID, Status: status}
	if status != types.RunCompleted {
		run.LastError = f.lastError
	}
	return run, nil
}

func (f *fakeAPI) CancelRun(ctx context.Context, threadID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeAPI) ListRunMessages(ctx context.Context, threadID, runID string) ([]types.RemoteMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.replies != nil {
		return f.replies(runID), nil
	}
	return []types.RemoteMessage{{
		ID:        "msg_" + runID,
		Role:      types.RoleAssistant,
		RunID:     runID,
		Content:   []types.ContentPart{types.TextPart("reply to " + runID)},
		CreatedAt: time.Now().Unix(),
	}}, nil
}

func (f *fakeAPI) CreateSpeech(ctx context.Context, req biz.SpeechRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speechReqs = append(f.speechReqs, req)
	if f.speechErr != nil {
		return nil, f.speechErr
	}
	return []byte("ID3-speech"), nil
}

func (f *fakeAPI) VerifyAssistant(ctx context.Context, assistantID string) error {
	return f.verifyErr
}

type recordedEvent struct {
	session string
	typ     string
	data    interface{}
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	closed []string
}

func (p *recordingPublisher) Publish(sessionID, eventType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{session: sessionID, typ: eventType, data: data})
}

func (p *recordingPublisher) Close(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, sessionID)
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.typ)
	}
	return out
}

type harness struct {
	manager *biz.SessionManager
	api     *fakeAPI
	repo    *data.MemorySessionRepo
	events  *recordingPublisher
	opts    biz.Options
}

func testOptions() biz.Options {
	opts := biz.DefaultOptions()
	opts.AssistantID = "asst_1"
	opts.PollInterval = time.Millisecond
	opts.PollTimeout = 2 * time.Second
	opts.MaxPollAttempts = 50
	return opts
}

func newHarness(t *testing.T, api *fakeAPI, mutate func(*biz.Options), extra ...biz.Option) *harness {
	t.Helper()
	if api == nil {
		api = &fakeAPI{}
	}
	opts := testOptions()
	if mutate != nil {
		mutate(&opts)
	}

	pool, err := workerpool.New(&workerpool.Config{Workers: 4, ExpiryDuration: time.Minute}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Shutdown(time.Second) })

	repo := data.NewMemorySessionRepo(time.Hour)
	events := &recordingPublisher{}
	options := append([]biz.Option{biz.WithPublisher(events)}, extra...)

	return &harness{
		manager: biz.NewSessionManager(repo, api, pool, opts, logger.NewNop(), options...),
		api:     api,
		repo:    repo,
		events:  events,
		opts:    opts,
	}
}

func (h *harness) open(t *testing.T) string {
	t.Helper()
	session, err := h.manager.Open(context.Background())
	require.NoError(t, err)
	return session.ID
}

func (h *harness) transcript(t *testing.T, sessionID string) []*types.Message {
	t.Helper()
	transcript, err := h.manager.Transcript(context.Background(), sessionID)
	require.NoError(t, err)
	return transcript
}
