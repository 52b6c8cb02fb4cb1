package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/escrow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/server"
)

// compileFile parses and compiles a BPMN document without logging.
func compileFile(path string) (datum.ProcessHash, *escrowflow.TaskGraph, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return datum.ProcessHash{}, nil, err
	}
	g, err := escrowflow.Parse(bytes.NewReader(doc), escrowflow.WithLogger(nil))
	if err != nil {
		return datum.ProcessHash{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	tg, err := g.Compile()
	if err != nil {
		return datum.ProcessHash{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return datum.HashProcess(doc), tg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTasksCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tasks <file.bpmn>",
		Short: "List the tasks of a workflow",
		Long:  `Compiles a BPMN document and prints every task with its previous and next tasks.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, tg, err := compileFile(args[0])
			if err != nil {
				return err
			}
			view := server.NewWorkflowView(hash, tg)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, view)
			}

			fmt.Fprintf(out, "process %s\n", view.ProcessHash)
			if view.FirstTask != "" {
				fmt.Fprintf(out, "first   %s\n", view.FirstTask)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\nTASK\tKIND\tPREVIOUS\tNEXT")
			for _, t := range view.Tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Kind, list(t.Previous), list(t.Next))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, w := range view.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func list(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ",")
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file.bpmn>...",
		Short: "Print process hashes",
		Long:  `Prints the process hash an escrow datum carries for each BPMN document.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				doc, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", datum.HashProcess(doc), path)
			}
			return nil
		},
	}
}

func newNodeStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodestate <file.bpmn> <task>",
		Short: "Print the on-chain position of a task",
		Long:  `Derives the NodeState of a task from its workflow and prints it with its CBOR encoding.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, tg, err := compileFile(args[0])
			if err != nil {
				return err
			}
			ns, err := escrow.PositionAt(tg, args[1])
			if err != nil {
				return err
			}
			view, err := server.NewNodeStateView(ns)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newDatumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datum",
		Short: "Work with escrow datums",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "decode <cbor-hex>",
		Short: "Decode an escrow datum",
		Long:  `Decodes a hex CBOR escrow datum, "-" reads it from stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if input == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				input = string(raw)
			}
			view, err := server.DecodeDatumHex(strings.TrimSpace(input))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	})
	return cmd
}
