package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dothash/huddle/internal/config"
	"github.com/dothash/huddle/internal/logging"
	"github.com/dothash/huddle/internal/server"
)

func main() {
	var (
		configPath     string
		address        string
		metricsAddress string
		logFile        string
		logLevel       string
	)

	root := &cobra.Command{
		Use:          "huddle-server",
		Short:        "Chat relay server with presence, private messaging and encrypted file transfer",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.LoadFile(configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg = loaded
			}

			// Flags override the config file.
			if cmd.Flags().Changed("address") {
				cfg.Address = address
			}
			if cmd.Flags().Changed("metrics-address") {
				cfg.MetricsAddress = metricsAddress
			}
			if cmd.Flags().Changed("log-file") {
				cfg.Logging.File = logFile
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if err := cfg.FixupAndValidate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			backend, err := logging.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}

			listener, err := net.Listen("tcp", cfg.Address)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Address, err)
			}

			srv := server.New(cfg, backend)
			srv.Start(listener)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			srv.Halt()
			return nil
		},
	}

	root.Flags().StringVarP(&configPath, "config", "f", "", "path to a TOML config file")
	root.Flags().StringVarP(&address, "address", "a", ":5000", "address to listen on")
	root.Flags().StringVar(&metricsAddress, "metrics-address", "", "address for the Prometheus metrics endpoint (disabled when empty)")
	root.Flags().StringVar(&logFile, "log-file", "", "log file path (stdout when empty)")
	root.Flags().StringVar(&logLevel, "log-level", "INFO", "log level (ERROR, WARNING, NOTICE, INFO, DEBUG)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
