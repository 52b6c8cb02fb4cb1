package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/escrow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/ledger"
)

type simulation struct {
	path       []string
	price      int64
	funds      int64
	compensate bool
	buyerSeed  string
	sellerSeed string
}

func newSimulateCmd() *cobra.Command {
	var sim simulation
	cmd := &cobra.Command{
		Use:   "simulate <file.bpmn>",
		Short: "Run an escrow through a workflow on an in-memory ledger",
		Long: `Lists an escrow for the workflow, starts it, runs it through the given
task path and closes it, printing every transaction and the final balances.
Without --path the first next task is taken at every step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			settings.Store.Driver = "memory"
			settings.Redis.Addr = ""
			logger, err := newLogger(cmd.ErrOrStderr(), settings.Log)
			if err != nil {
				return err
			}

			a, err := newApp(settings, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			hash, tg, err := a.addWorkflow(args[0])
			if err != nil {
				return err
			}
			return sim.run(cmd.Context(), cmd.OutOrStdout(), a, hash, tg)
		},
	}
	cmd.Flags().StringSliceVar(&sim.path, "path", nil, "tasks to run after the first, in order")
	cmd.Flags().Int64Var(&sim.price, "price", 3_000_000, "lovelace the buyer offers on start")
	cmd.Flags().Int64Var(&sim.funds, "funds", 100_000_000, "lovelace each party starts with")
	cmd.Flags().BoolVar(&sim.compensate, "compensate", false, "close with compensate instead of complete")
	cmd.Flags().StringVar(&sim.buyerSeed, "buyer-seed", "buyer", "seed of the buyer's signing key")
	cmd.Flags().StringVar(&sim.sellerSeed, "seller-seed", "seller", "seed of the seller's signing key")
	return cmd
}

func (s simulation) run(ctx context.Context, out io.Writer, a *app, hash datum.ProcessHash, tg *escrowflow.TaskGraph) error {
	buyer := ledger.KeySignerFromSeed(s.buyerSeed)
	seller := ledger.KeySignerFromSeed(s.sellerSeed)
	a.ledger.Fund(buyer.PubKeyHash(), s.funds)
	a.ledger.Fund(seller.PubKeyHash(), s.funds)

	path, err := s.taskPath(tg)
	if err != nil {
		return err
	}

	var (
		id    = uuid.NewString()
		both  = []ledger.Signer{buyer, seller}
		steps []*escrow.Result
	)
	step := func(res *escrow.Result, err error) error {
		if err != nil {
			return err
		}
		steps = append(steps, res)
		a.logger.Debug("simulated transition",
			slog.String("escrow_id", res.EscrowID),
			slog.String("tx_hash", res.TxHash),
			slog.String("status", res.Status.String()),
		)
		return nil
	}

	if err := step(a.runner.List(ctx, id, escrow.ListParams{
		Buyer:       buyer.PubKeyHash(),
		Seller:      seller.PubKeyHash(),
		ProcessHash: hash,
	}, []ledger.Signer{seller})); err != nil {
		return err
	}
	if err := step(a.runner.Start(ctx, id, ledger.Ref{}, escrow.StartParams{Price: s.price}, []ledger.Signer{buyer})); err != nil {
		return err
	}
	for _, task := range path {
		if err := step(a.runner.RunTask(ctx, id, ledger.Ref{}, escrow.RunTaskParams{Task: task}, both)); err != nil {
			return err
		}
	}
	if s.compensate {
		err = step(a.runner.Compensate(ctx, id, ledger.Ref{}, both))
	} else {
		err = step(a.runner.Complete(ctx, id, ledger.Ref{}, both))
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "escrow %s\n\n", id)
	fmt.Fprintln(tw, "TRANSITION\tSTATUS\tTASK\tLOVELACE\tTX")
	for _, res := range steps {
		task, value := "-", "-"
		if res.Escrow != nil {
			task = res.Escrow.Position().Current
			value = fmt.Sprint(res.Escrow.UTxO.Lovelace)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", res.Spec.Transition, res.Status, task, value, res.TxHash)
	}
	fmt.Fprintf(tw, "\nbuyer\t%d\n", a.ledger.Balance(buyer.PubKeyHash()))
	fmt.Fprintf(tw, "seller\t%d\n", a.ledger.Balance(seller.PubKeyHash()))
	return tw.Flush()
}

// taskPath validates --path, or walks the lexicographically first next task
// from the first task until a task without successors.
func (s simulation) taskPath(tg *escrowflow.TaskGraph) ([]string, error) {
	first, ok := tg.FirstTask()
	if !ok {
		return nil, escrowflow.ErrNoTasksFound
	}
	if len(s.path) > 0 {
		prev := first.ID
		for _, id := range s.path {
			if !tg.HasEdge(prev, id) {
				return nil, fmt.Errorf("%w: %s does not follow %s", escrow.ErrUnknownTask, id, prev)
			}
			prev = id
		}
		return s.path, nil
	}

	var path []string
	current := first.ID
	for range tg.Len() {
		next := tg.NextTasks(current)
		if len(next) == 0 {
			return path, nil
		}
		ids := make([]string, len(next))
		for i, t := range next {
			ids[i] = t.ID
		}
		slices.Sort(ids)
		current = ids[0]
		path = append(path, current)
	}
	return nil, errors.New("workflow loops without reaching a final task, pass --path")
}
