/*
Package escrowflow compiles BPMN choreographies into task graphs that drive
on-chain escrow workflows.

# Overview

A buyer and a seller agree on a business process drawn as a BPMN
choreography. Each task of the process is one step of a blockchain escrow:
the payment stays locked in a script output and every step moves it forward
with a transaction both parties sign. This package turns the process
document into something the escrow layer can walk:

  - Parse builds an ElementGraph: every start event, end event, task,
    exclusive gateway and choreography task, plus the sequence flows between
    them.
  - Compile reduces the ElementGraph to a TaskGraph. Events and gateways
    are flattened away; each task knows the nearest tasks before and after
    it.
  - TaskGraph implements Navigator, the read-only query surface used to
    pick the next step and to validate proposed steps.

# Basic Usage

	f, err := os.Open("purchase.bpmn")
	if err != nil {
	    log.Fatal(err)
	}
	defer f.Close()

	g, err := escrowflow.Parse(f)
	if err != nil {
	    log.Fatal(err) // *MalformedDocumentError
	}

	tasks, err := g.Compile()
	if errors.Is(err, escrowflow.ErrNoTasksFound) {
	    log.Fatal("process has no tasks")
	}

	first, ok := tasks.FirstTask()
	for _, next := range tasks.NextTasks(first.ID) {
	    fmt.Println(first.ID, "->", next.ID)
	}

# Diagnostics

Documents are parsed leniently. A flow from an unknown element is dropped,
a flow to an unknown element is kept as a dead end, a duplicate id keeps its
first declaration, and BPMN nodes without a counterpart here are skipped.
Each case is recorded as a Warning, returned by Warnings on both graphs and
logged at WARN through the logger given with WithLogger.

# Reduction Rules

For every task, a breadth-first walk follows outgoing flows. Tasks stop the
walk and become next tasks. Events and gateways are walked through.
Unknown ids end the walk. The walk keeps a visited set, so cycles through
gateways terminate. Edges are recorded on both ends in the same pass, so
for any tasks A and B, B is a next task of A exactly when A is a previous
task of B.

The first task is the first task reached from the first start event. If
that finds nothing, the task without predecessors that has the
lexicographically smallest id is chosen.

# Thread Safety

  - ElementGraph is safe for concurrent use; build it before compiling.
  - TaskGraph is immutable and safe for concurrent use.
  - Returned Elements and Tasks are copies.

# Subpackages

  - datum: Plutus data codec, NodeState, escrow datums and redeemers
  - escrow: transition engine and the runner that submits transitions
  - ledger: ledger capability ports and an in-memory ledger
  - errors: error categories and retry policy
  - checkpoint: escrow journal stores (memory, SQLite)
  - registry: compiled workflows by process hash
  - lock: proposer locks (memory, Redis)
  - observability: logging, metrics, tracing helpers
  - config: configuration loading
  - server: HTTP API
*/
package escrowflow
