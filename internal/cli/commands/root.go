package commands

import (
	"fmt"

	"github.com/lk2023060901/st2u-assistant/internal/cli/ui"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	configFile string
	envFile    string
)

// rootCmd is the root command
var rootCmd = &cobra.Command{
	Use:     "st2u",
	Short:   ui.Title + " CLI",
	Version: version,
	Long: `A terminal front end for the ST2U strategy assistant. Send text, chart images
and recordings to the assistant, read replies rendered as markdown, and play
them back as speech.`,
	Example: `  # Start an interactive chat (reads OPENAI_API_KEY and ASSISTANT_ID)
  $ st2u chat

  # Use a config file and a custom dotenv file
  $ st2u chat --config configs/config.yaml --env .env.local`,
}

// Execute executes the root command
func Execute() error {
	rootCmd.SetVersionTemplate(fmt.Sprintf("st2u version %s\n", version))
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before config")

	rootCmd.AddCommand(chatCmd)
}
