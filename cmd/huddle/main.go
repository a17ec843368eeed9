package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dothash/huddle/internal/logging"
	"github.com/dothash/huddle/internal/ui"
)

func main() {
	var (
		serverAddr string
		nickname   string
		logFile    string
		logLevel   string
	)

	root := &cobra.Command{
		Use:          "huddle",
		Short:        "Terminal chat client",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logging to stdout would corrupt the TUI, so without a log
			// file everything is discarded.
			backend := logging.Discard()
			if logFile != "" {
				var err error
				backend, err = logging.New(logFile, logLevel, false)
				if err != nil {
					return fmt.Errorf("failed to initialize logging: %w", err)
				}
			}

			ui.Start(serverAddr, nickname, backend)
			return nil
		},
	}

	root.Flags().StringVarP(&serverAddr, "server", "s", "localhost:5000", "address of the chat server")
	root.Flags().StringVarP(&nickname, "nickname", "n", "", "display name to register (prompted when empty)")
	root.Flags().StringVar(&logFile, "log-file", "", "log file path (logging disabled when empty)")
	root.Flags().StringVar(&logLevel, "log-level", "INFO", "log level (ERROR, WARNING, NOTICE, INFO, DEBUG)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
