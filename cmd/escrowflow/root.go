package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "escrowflow",
		Short:         "Workflow-driven escrow tooling",
		Long:          `escrowflow compiles BPMN choreographies into task graphs and drives escrow contracts through them.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringP("config", "c", "", "YAML or JSON configuration file")

	root.AddCommand(
		newTasksCmd(),
		newHashCmd(),
		newNodeStateCmd(),
		newDatumCmd(),
		newServeCmd(),
		newSimulateCmd(),
		newVersionCmd(),
	)
	return root
}

// loadSettings reads --config and the ESCROWFLOW_ environment.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, os.Environ())
	if err != nil {
		return config.Settings{}, err
	}
	return config.LoadSettings(cfg)
}

func newLogger(w io.Writer, s config.LogSettings) (*slog.Logger, error) {
	level, err := s.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch s.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", s.Format)
	}
}
