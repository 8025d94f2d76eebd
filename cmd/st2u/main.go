package main

import (
	"os"

	"github.com/lk2023060901/st2u-assistant/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
