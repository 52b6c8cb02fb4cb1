// Package registry holds compiled workflows and other shared lookup tables.
//
// Registry is a generic map guarded by a sync.RWMutex, tuned for the
// read-heavy pattern of an escrow service: workflows are compiled once and
// then looked up on every transition.
//
// # Workflows
//
// Workflows keys compiled task graphs by the process hash committed in the
// escrow datum, so a datum read from the ledger can be matched to the
// diagram it was created from:
//
//	wf := registry.NewWorkflows(escrowflow.WithLogger(logger))
//	hash, graph, err := wf.Add(document)
//	if err != nil {
//	    return err
//	}
//
//	nav, ok := wf.Workflow(d.Common().ProcessHash)
//
// Adding the same document twice compiles it once.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Range iterates over a snapshot,
// so the callback may register or delete entries.
package registry
