package biz

import "time"

// Options configures the session manager
type Options struct {
	AssistantID string

	PollInterval    time.Duration
	PollTimeout     time.Duration
	MaxPollAttempts int

	DefaultImagePrompt       string
	DefaultMediaPrompt       string
	TranscriptionInstruction string // two %s: file name, file id
	ImageDetail              string

	MaxImageBytes int64
	MaxMediaBytes int64

	SpeechModel  string
	SpeechVoice  string
	SpeechFormat string
	SpeechSpeed  float64
}

// DefaultOptions mirrors the config defaults
func DefaultOptions() Options {
	return Options{
		PollInterval:             time.Second,
		PollTimeout:              3 * time.Minute,
		MaxPollAttempts:          180,
		DefaultImagePrompt:       "Analyze this uploaded chart using the defined strategy framework.",
		DefaultMediaPrompt:       "Analyze the attached recording using the defined strategy framework.",
		TranscriptionInstruction: "The attached file %s (file id %s) is an audio/video recording. Transcribe it first, then answer using the transcript.",
		ImageDetail:              "auto",
		MaxImageBytes:            20 << 20,
		MaxMediaBytes:            512 << 20,
		SpeechModel:              "tts-1",
		SpeechVoice:              "alloy",
		SpeechFormat:             "mp3",
		SpeechSpeed:              1.0,
	}
}

// Option customizes a SessionManager
type Option func(*SessionManager)

// WithRenderer renders assistant replies to HTML
func WithRenderer(r Renderer) Option {
	return func(m *SessionManager) { m.renderer = r }
}

// WithTokenCounter annotates transcript entries with token counts
func WithTokenCounter(c TokenCounter) Option {
	return func(m *SessionManager) { m.counter = c }
}

// WithAudioStore stores synthesized speech and returns playback URLs
func WithAudioStore(s AudioStore) Option {
	return func(m *SessionManager) { m.audio = s }
}

// WithPublisher sets the event publisher
func WithPublisher(p EventPublisher) Option {
	return func(m *SessionManager) {
		if p != nil {
			m.events = p
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) { m.now = now }
}
