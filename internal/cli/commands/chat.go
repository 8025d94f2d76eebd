package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/lk2023060901/st2u-assistant/internal/cli/tui"
	"github.com/lk2023060901/st2u-assistant/internal/cli/ui"
	"github.com/lk2023060901/st2u-assistant/internal/conf"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/injector"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	audioDir string
	width    int
	style    string
)

// chatCmd is the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "start an interactive chat session",
	Long: `Start an interactive chat session with the assistant.

Plain lines are sent as messages. Commands:
  /image <path>   attach a chart image to the next message
  /media <path>   attach an audio or video recording
  /clear          drop staged attachments
  /send [text]    send staged attachments
  /speak [n]      synthesize a reply as audio
  /history        show the transcript
  /help           list commands
  /quit           exit

Up/Down and PgUp/PgDown scroll the transcript. Ctrl+C or Esc quits.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.SilenceUsage = true
	chatCmd.Flags().StringVar(&audioDir, "audio-dir", "", "directory for synthesized audio (default: system temp dir)")
	chatCmd.Flags().IntVar(&width, "width", 100, "reply word wrap width")
	chatCmd.Flags().StringVar(&style, "style", "", "glamour style (dark, light, notty); detected when empty")
}

func runChat(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// a missing .env is fine
	_ = godotenv.Load(envFile)

	config, err := conf.LoadConfig(configFile)
	if err != nil {
		ui.PrintError(out, "failed to load config: %v", err)
		return err
	}
	if err := config.Validate(); err != nil {
		ui.PrintError(out, "%v", err)
		return err
	}

	// the terminal belongs to the chat UI, logs go to file
	config.Log.Output = "file"
	log, err := logger.New(&config.Log)
	if err != nil {
		ui.PrintError(out, "failed to initialize logger: %v", err)
		return err
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	app, cleanup, err := injector.InitializeApp(config, log)
	if err != nil {
		ui.PrintError(out, "failed to initialize: %v", err)
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.Assistant.VerifyOnStart {
		verifyCtx, cancel := context.WithTimeout(ctx, config.Assistant.RequestTimeout)
		err := app.Sessions.VerifyCredentials(verifyCtx)
		cancel()
		if err != nil {
			ui.PrintError(out, "%v", err)
			return err
		}
	}

	program := tui.NewChatProgram(app.Sessions, tui.Options{
		Width:    width,
		Style:    style,
		AudioDir: audioDir,
	}, tea.WithInput(cmd.InOrStdin()), tea.WithOutput(out))
	return program.Run(ctx)
}
