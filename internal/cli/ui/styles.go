package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Title is the product name shown in the banner
const Title = "ST2U V10 Pro Assistant"

// Caption is shown under the title on every session
const Caption = "For educational purposes only. Not investment advice."

var (
	accent = lipgloss.AdaptiveColor{Light: "#2D5BFF", Dark: "#7AA2F7"}
	subtle = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}

	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	HelpStyle   = lipgloss.NewStyle().Foreground(subtle)
	UserStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	BotStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	ErrorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444"))
	SuccessText = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	MutedText   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	bannerBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)

// Banner renders the title box with a command hint
func Banner(sessionID string) string {
	body := TitleStyle.Render(Title) + "\n" +
		HelpStyle.Render(Caption) + "\n" +
		HelpStyle.Render("session "+shortID(sessionID)) + "\n" +
		HelpStyle.Render("/image <path>  /media <path>  /clear  /send  /speak [n]  /history  /help  /quit")
	return bannerBox.Render(body)
}

// PrintError writes an error line
func PrintError(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
