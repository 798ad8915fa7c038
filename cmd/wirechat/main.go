package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "wirechat",
		Short:         "Chat client and relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the yaml config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newRelayCommand(), newChatCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wirechat:", err)
		os.Exit(1)
	}
}
