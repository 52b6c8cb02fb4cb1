package registry

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
)

// Workflows holds compiled task graphs keyed by process hash.
type Workflows struct {
	graphs *Registry[datum.ProcessHash, *escrowflow.TaskGraph]
	opts   []escrowflow.BuildOption
}

// NewWorkflows creates an empty workflow registry. opts apply to every
// document added.
func NewWorkflows(opts ...escrowflow.BuildOption) *Workflows {
	return &Workflows{
		graphs: New[datum.ProcessHash, *escrowflow.TaskGraph](),
		opts:   opts,
	}
}

// Add parses and compiles a BPMN document and registers it under its
// process hash. A document already registered is not compiled again.
func (w *Workflows) Add(document []byte) (datum.ProcessHash, *escrowflow.TaskGraph, error) {
	hash := datum.HashProcess(document)
	if tg, ok := w.graphs.Get(hash); ok {
		return hash, tg, nil
	}

	g, err := escrowflow.Parse(bytes.NewReader(document), w.opts...)
	if err != nil {
		return hash, nil, fmt.Errorf("parse workflow %s: %w", hash, err)
	}
	tg, err := g.Compile()
	if err != nil {
		return hash, nil, fmt.Errorf("compile workflow %s: %w", hash, err)
	}

	tg, _ = w.graphs.RegisterIfAbsent(hash, tg)
	return hash, tg, nil
}

// Register stores an already compiled graph under hash.
func (w *Workflows) Register(hash datum.ProcessHash, tg *escrowflow.TaskGraph) {
	w.graphs.Register(hash, tg)
}

// Workflow returns the navigator for a process hash.
func (w *Workflows) Workflow(hash datum.ProcessHash) (escrowflow.Navigator, bool) {
	tg, ok := w.graphs.Get(hash)
	if !ok {
		return nil, false
	}
	return tg, true
}

// Graph returns the compiled graph for a process hash.
func (w *Workflows) Graph(hash datum.ProcessHash) (*escrowflow.TaskGraph, bool) {
	return w.graphs.Get(hash)
}

// Hashes returns the registered process hashes in byte order.
func (w *Workflows) Hashes() []datum.ProcessHash {
	hashes := w.graphs.Keys()
	slices.SortFunc(hashes, func(a, b datum.ProcessHash) int {
		return bytes.Compare(a[:], b[:])
	})
	return hashes
}

// Remove forgets a workflow.
func (w *Workflows) Remove(hash datum.ProcessHash) {
	w.graphs.Delete(hash)
}

// Len returns the number of registered workflows.
func (w *Workflows) Len() int {
	return w.graphs.Len()
}
