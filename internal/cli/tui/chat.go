package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/gabriel-vasile/mimetype"
	"github.com/lk2023060901/st2u-assistant/internal/chat/biz"
	"github.com/lk2023060901/st2u-assistant/internal/chat/types"
	"github.com/lk2023060901/st2u-assistant/internal/cli/ui"
	apperrors "github.com/lk2023060901/st2u-assistant/internal/pkg/errors"
)

// UI configuration constants
const (
	defaultWidth          = 100
	defaultViewportHeight = 30
	inputCharLimit        = 4000
	chromeHeight          = 4 // status, input, help and a spacer
	minContentHeight      = 5
)

// Assistant is the slice of the session manager the chat drives
type Assistant interface {
	Open(ctx context.Context) (*types.Session, error)
	SubmitTurn(ctx context.Context, sessionID string, in types.TurnInput) (*types.TurnResult, error)
	Transcript(ctx context.Context, sessionID string) ([]*types.Message, error)
	Speak(ctx context.Context, sessionID string, index int) (*types.Speech, error)
	Close(ctx context.Context, sessionID string) error
}

// Options configures the chat UI
type Options struct {
	Width    int    // reply word wrap width
	Style    string // glamour style, detected from the terminal when empty
	AudioDir string // where synthesized audio is written
}

// ChatProgram runs the chat UI over one session
type ChatProgram struct {
	assistant   Assistant
	opts        Options
	programOpts []tea.ProgramOption
}

// NewChatProgram creates a chat program. Extra program options are appended
// after the defaults.
func NewChatProgram(assistant Assistant, opts Options, programOpts ...tea.ProgramOption) *ChatProgram {
	return &ChatProgram{assistant: assistant, opts: opts, programOpts: programOpts}
}

// Run opens a session, runs the UI until the user quits or ctx ends, then
// closes the session.
func (p *ChatProgram) Run(ctx context.Context) error {
	session, err := p.assistant.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		_ = p.assistant.Close(context.WithoutCancel(ctx), session.ID)
	}()

	model, err := newChatModel(ctx, p.assistant, session.ID, p.opts)
	if err != nil {
		return err
	}
	defer model.cancel()

	opts := append([]tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	}, p.programOpts...)
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

// chatModel is the Bubble Tea model of the chat screen
type chatModel struct {
	// Dependencies
	ctx       context.Context
	cancel    context.CancelFunc
	assistant Assistant
	sessionID string
	opts      Options
	renderer  *glamour.TermRenderer

	// UI components
	input       textinput.Model
	contentView viewport.Model
	spinner     spinner.Model

	// Turn state
	busy     bool
	busyText string
	image    string
	media    string
	quitting bool

	content *strings.Builder // pointer so model copies share the transcript
}

// Message type definitions
type (
	turnDoneMsg struct {
		result *types.TurnResult
		err    error
	}
	transcriptMsg struct {
		messages []*types.Message
		err      error
	}
	speechMsg struct {
		path string
		url  string
		err  error
	}
)

func newChatModel(ctx context.Context, assistant Assistant, sessionID string, opts Options) (chatModel, error) {
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.AudioDir == "" {
		opts.AudioDir = os.TempDir()
	}

	rendererOpts := []glamour.TermRendererOption{glamour.WithWordWrap(opts.Width)}
	if opts.Style != "" {
		rendererOpts = append(rendererOpts, glamour.WithStandardStyle(opts.Style))
	} else {
		rendererOpts = append(rendererOpts, glamour.WithAutoStyle())
	}
	renderer, err := glamour.NewTermRenderer(rendererOpts...)
	if err != nil {
		return chatModel{}, fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	input := textinput.New()
	input.Placeholder = "ask about a chart, or /help"
	input.CharLimit = inputCharLimit
	input.Width = opts.Width - 3
	input.Prompt = ""
	input.Cursor.SetMode(cursor.CursorStatic)
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.BotStyle

	ctx, cancel := context.WithCancel(ctx)
	m := chatModel{
		ctx:         ctx,
		cancel:      cancel,
		assistant:   assistant,
		sessionID:   sessionID,
		opts:        opts,
		renderer:    renderer,
		input:       input,
		contentView: viewport.New(opts.Width, defaultViewportHeight),
		spinner:     sp,
		content:     &strings.Builder{},
	}
	m.content.WriteString(ui.Banner(sessionID))
	m.content.WriteString("\n")
	m.refresh()
	return m, nil
}

// Init initializes the model (Bubble Tea interface)
func (m chatModel) Init() tea.Cmd {
	return nil
}

// Update processes messages and updates the model (Bubble Tea interface)
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			// cancel any running turn before quitting
			m.cancel()
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			cmd := m.handleLine(line)
			return m, cmd
		case tea.KeyUp:
			m.contentView.LineUp(1)
			return m, nil
		case tea.KeyDown:
			m.contentView.LineDown(1)
			return m, nil
		case tea.KeyPgUp:
			m.contentView.ViewUp()
			return m, nil
		case tea.KeyPgDown:
			m.contentView.ViewDown()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.resize(msg)
		return m, nil

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.contentView, cmd = m.contentView.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case turnDoneMsg:
		m.finishTurn(msg)
		return m, nil

	case transcriptMsg:
		m.showTranscript(msg)
		return m, nil

	case speechMsg:
		m.finishSpeech(msg)
		return m, nil
	}

	// input is frozen while a turn runs
	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

const helpText = `/image <path>   attach a chart image to the next message
/media <path>   attach an audio or video recording to the next message
/clear          drop staged attachments
/send [text]    send staged attachments, with optional text
/speak [n]      read transcript entry n aloud (default: latest reply)
/history        show the transcript
/quit           close the session`

func (m *chatModel) handleLine(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return m.submit(line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		m.cancel()
		m.quitting = true
		return tea.Quit
	case "/image":
		m.stage(&m.image, arg, types.AttachmentImage)
	case "/media":
		m.stage(&m.media, arg, types.AttachmentMedia)
	case "/clear":
		m.image, m.media = "", ""
		m.writeInfo("staged attachments cleared")
	case "/send":
		return m.submit(arg)
	case "/history":
		return loadTranscript(m.ctx, m.assistant, m.sessionID)
	case "/speak":
		return m.speak(arg)
	case "/help":
		m.write(ui.HelpStyle.Render(helpText))
	default:
		m.writeError("unknown command %s, try /help", cmd)
	}
	return nil
}

// stage checks the file type up front so a rejected file never reaches a turn
func (m *chatModel) stage(slot *string, path string, kind types.AttachmentKind) {
	if path == "" {
		m.writeError("usage: /%s <path>", kind)
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		m.writeError("%v", err)
		return
	}
	if info.IsDir() {
		m.writeError("%s is a directory", path)
		return
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		m.writeError("%v", err)
		return
	}
	if !biz.AcceptsAttachment(kind, mt) {
		m.writeError("%s", describe(apperrors.Newf(apperrors.ErrChatUnsupportedAttachment,
			"%s attachment of type %s", kind, mt.String())))
		return
	}

	*slot = path
	m.writeInfo("%s staged: %s (%s, %d bytes)", kind, filepath.Base(path), mt.String(), info.Size())
}

func (m *chatModel) submit(text string) tea.Cmd {
	m.write(ui.UserStyle.Render("You"))
	if text != "" {
		m.write(text)
	}
	for _, path := range []string{m.image, m.media} {
		if path != "" {
			m.writeInfo("  (attached %s)", filepath.Base(path))
		}
	}

	m.busy = true
	m.busyText = "waiting for the assistant..."
	m.refresh()
	return tea.Batch(m.spinner.Tick, submitTurn(m.ctx, m.assistant, m.sessionID, text, m.image, m.media))
}

func submitTurn(ctx context.Context, assistant Assistant, sessionID, text, image, media string) tea.Cmd {
	return func() tea.Msg {
		in := types.TurnInput{Text: text}

		var closers []io.Closer
		defer func() {
			for _, c := range closers {
				_ = c.Close()
			}
		}()
		if image != "" {
			a, f, err := openAttachment(image, types.AttachmentImage)
			if err != nil {
				return turnDoneMsg{err: err}
			}
			closers = append(closers, f)
			in.Image = a
		}
		if media != "" {
			a, f, err := openAttachment(media, types.AttachmentMedia)
			if err != nil {
				return turnDoneMsg{err: err}
			}
			closers = append(closers, f)
			in.Media = a
		}

		result, err := assistant.SubmitTurn(ctx, sessionID, in)
		return turnDoneMsg{result: result, err: err}
	}
}

func (m *chatModel) finishTurn(msg turnDoneMsg) {
	m.busy = false
	m.busyText = ""

	switch {
	case msg.err == nil:
		m.image, m.media = "", ""
		m.write(ui.BotStyle.Render("Assistant"))
		if msg.result.Outcome != types.OutcomeReplied {
			m.writeError("%s", msg.result.Reply)
		} else {
			m.write(m.render(msg.result.Reply))
		}
	case rejectsAttachment(msg.err):
		m.image, m.media = "", ""
		m.writeError("%s (staged attachments cleared)", describe(msg.err))
	default:
		m.writeError("%s", describe(msg.err))
	}
	m.refresh()
}

// rejectsAttachment reports errors that resending the same files cannot fix
func rejectsAttachment(err error) bool {
	return apperrors.Is(err, apperrors.ErrChatUnsupportedAttachment) ||
		apperrors.Is(err, apperrors.ErrChatAttachmentTooLarge) ||
		errors.Is(err, fs.ErrNotExist)
}

func loadTranscript(ctx context.Context, assistant Assistant, sessionID string) tea.Cmd {
	return func() tea.Msg {
		messages, err := assistant.Transcript(ctx, sessionID)
		return transcriptMsg{messages: messages, err: err}
	}
}

func (m *chatModel) showTranscript(msg transcriptMsg) {
	defer m.refresh()
	if msg.err != nil {
		m.writeError("%s", describe(msg.err))
		return
	}
	if len(msg.messages) == 0 {
		m.writeInfo("no messages yet")
		return
	}

	for _, entry := range msg.messages {
		label := ui.UserStyle.Render(fmt.Sprintf("[%d] you", entry.Index))
		if entry.Role == types.RoleAssistant {
			label = ui.BotStyle.Render(fmt.Sprintf("[%d] assistant", entry.Index))
		}
		m.write(label)
		for _, part := range entry.Content {
			if part.Type != types.ContentText {
				m.writeInfo("  (%s %s)", part.Type, part.FileName)
			}
		}
		if entry.Diagnostic {
			m.writeError("%s", entry.Text())
			continue
		}
		m.write(m.render(entry.Text()))
	}
}

func (m *chatModel) speak(arg string) tea.Cmd {
	index := -1
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			m.writeError("usage: /speak [index]")
			return nil
		}
		index = n
	}

	m.busy = true
	m.busyText = "synthesizing speech..."
	m.refresh()
	return tea.Batch(m.spinner.Tick, synthesize(m.ctx, m.assistant, m.sessionID, index, m.opts.AudioDir))
}

// synthesize speaks entry index, or the latest assistant reply when index is negative
func synthesize(ctx context.Context, assistant Assistant, sessionID string, index int, audioDir string) tea.Cmd {
	return func() tea.Msg {
		if index < 0 {
			transcript, err := assistant.Transcript(ctx, sessionID)
			if err != nil {
				return speechMsg{err: err}
			}
			for i := len(transcript) - 1; i >= 0; i-- {
				if transcript[i].Role == types.RoleAssistant && !transcript[i].Diagnostic {
					index = transcript[i].Index
					break
				}
			}
			if index < 0 {
				return speechMsg{err: errors.New("no assistant reply to speak yet")}
			}
		}

		speech, err := assistant.Speak(ctx, sessionID, index)
		if err != nil {
			return speechMsg{err: err}
		}

		ext := ".audio"
		if mt := mimetype.Lookup(speech.ContentType); mt != nil {
			ext = mt.Extension()
		}
		path := filepath.Join(audioDir, fmt.Sprintf("st2u-%s-%d%s", shortID(sessionID), index, ext))
		if err := os.WriteFile(path, speech.Audio, 0o644); err != nil {
			return speechMsg{err: fmt.Errorf("failed to write audio: %w", err)}
		}
		return speechMsg{path: path, url: speech.URL}
	}
}

func (m *chatModel) finishSpeech(msg speechMsg) {
	m.busy = false
	m.busyText = ""
	defer m.refresh()

	if msg.err != nil {
		m.writeError("%s", describe(msg.err))
		return
	}
	m.write(ui.SuccessText.Render("✓ audio saved to " + msg.path))
	if msg.url != "" {
		m.writeInfo("playback url: %s", msg.url)
	}
}

func (m *chatModel) resize(msg tea.WindowSizeMsg) {
	height := msg.Height - chromeHeight
	if height < minContentHeight {
		height = minContentHeight
	}
	m.contentView.Width = msg.Width
	m.contentView.Height = height
	m.input.Width = msg.Width - 3
	m.refresh()
}

func (m *chatModel) write(s string) {
	m.content.WriteString(strings.TrimRight(s, "\n"))
	m.content.WriteString("\n")
	m.refresh()
}

func (m *chatModel) writeInfo(format string, args ...interface{}) {
	m.write(ui.MutedText.Render(fmt.Sprintf(format, args...)))
}

func (m *chatModel) writeError(format string, args ...interface{}) {
	m.write(ui.ErrorStyle.Render("✗ " + fmt.Sprintf(format, args...)))
}

// refresh refreshes the display content
func (m *chatModel) refresh() {
	m.contentView.SetContent(m.content.String())
	m.contentView.GotoBottom()
}

func (m *chatModel) render(markdown string) string {
	out, err := m.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

// View renders the UI (Bubble Tea interface)
func (m chatModel) View() string {
	if m.quitting {
		return ""
	}

	status := ui.MutedText.Render("session " + shortID(m.sessionID))
	var staged []string
	for _, path := range []string{m.image, m.media} {
		if path != "" {
			staged = append(staged, filepath.Base(path))
		}
	}
	if len(staged) > 0 {
		status += ui.MutedText.Render(" • staged: " + strings.Join(staged, ", "))
	}

	inputView := ui.UserStyle.Render("› ") + m.input.View()
	help := ui.HelpStyle.Render("Enter send • ↑↓ scroll • /help • Esc quit")
	if m.busy {
		inputView = m.spinner.View() + " " + ui.MutedText.Render(m.busyText)
		help = ui.HelpStyle.Render("Ctrl+C cancel and quit")
	}

	return lipgloss.JoinVertical(lipgloss.Left, status, m.contentView.View(), inputView, help)
}

func openAttachment(path string, kind types.AttachmentKind) (*types.Attachment, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return &types.Attachment{
		Kind:     kind,
		FileName: filepath.Base(path),
		Size:     info.Size(),
		Reader:   f,
	}, f, nil
}

// describe prefers the user-facing message of an AppError
func describe(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.UserMessage()
	}
	return err.Error()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
