// Package escrow drives escrow instances through their lifecycle.
//
// An escrow is a single output at the validator script address whose datum
// records the parties, the agreed workflow (by process hash), and the
// current task. Each transition spends that output and either recreates it
// with an updated datum or closes the escrow with payouts:
//
//	list                        -> Listed
//	start       Listed          -> Started
//	run_task    Started|Running -> Running
//	compensate  Running         -> Compensated
//	complete    Running         -> Uncompensated
//	cancel      any live state  -> Cancelled
//
// Engine is pure: it checks signers, state, custody, value and workflow
// edges against a snapshot and returns a ledger.TxSpec. Runner wraps an
// Engine with the ledger ports to build, sign and submit proposals,
// retrying when a concurrent proposer spent the output first, and journals
// each applied transaction to a checkpoint.Store so later calls can find
// the escrow's current output by id.
//
// Basic usage:
//
//	workflows := registry.NewWorkflows()
//	hash, _, err := workflows.Add(bpmn)
//
//	engine := escrow.New(
//	    escrow.WithWorkflows(workflows),
//	    escrow.WithScriptAddress(addr),
//	)
//	runner := escrow.NewRunner(engine, chain, chain, chain,
//	    escrow.WithJournal(checkpoint.NewMemoryStore()),
//	)
//
//	res, err := runner.List(ctx, "", escrow.ListParams{
//	    Buyer: buyer, Seller: seller, ProcessHash: hash,
//	}, []ledger.Signer{sellerKey})
package escrow
