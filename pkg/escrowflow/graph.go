package escrowflow

import (
	"slices"
	"sync"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/observability"
)

// ElementGraph is the raw process graph: every recognized flow node and the
// sequence flows between them, before any reduction.
//
// Build one with Parse, or programmatically by chaining AddElement and
// AddFlow. Elements must be added before the flows that reference them, the
// same order a process document uses. Neither method panics: problems are
// recorded as Warnings and the offending input is dropped or kept as a dead
// end.
//
// Example:
//
//	g := escrowflow.NewElementGraph().
//	    AddElement("S", escrowflow.KindStart, "").
//	    AddElement("T1", escrowflow.KindTask, "Ship goods").
//	    AddElement("E", escrowflow.KindEnd, "").
//	    AddFlow("S", "T1").
//	    AddFlow("T1", "E")
//
//	tasks, err := g.Compile()
type ElementGraph struct {
	mu       sync.RWMutex
	elements map[string]*Element
	order    []string
	warnings []Warning
	cfg      buildConfig
}

// NewElementGraph creates an empty element graph.
func NewElementGraph(opts ...BuildOption) *ElementGraph {
	cfg := defaultBuildConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ElementGraph{
		elements: make(map[string]*Element),
		cfg:      cfg,
	}
}

// AddElement adds a flow node. A duplicate id keeps the first declaration and
// records WarnDuplicateElement. Returns the graph for method chaining.
func (g *ElementGraph) AddElement(id string, kind ElementKind, name string) *ElementGraph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id == "" {
		g.warnLocked(Warning{Kind: WarnMissingID, Ref: kind.String()})
		return g
	}
	if _, exists := g.elements[id]; exists {
		g.warnLocked(Warning{Kind: WarnDuplicateElement, ElementID: id})
		return g
	}

	g.elements[id] = &Element{ID: id, Kind: kind, Name: name}
	g.order = append(g.order, id)
	return g
}

// AddFlow appends target to the outgoing edges of source.
// Flows from an unknown source are dropped with WarnUnknownSource. Flows to an
// unknown target are kept with WarnDanglingTarget.
// Returns the graph for method chaining.
func (g *ElementGraph) AddFlow(source, target string) *ElementGraph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if source == "" || target == "" {
		g.warnLocked(Warning{Kind: WarnMissingID, ElementID: source, Ref: "sequenceFlow"})
		return g
	}
	from, ok := g.elements[source]
	if !ok {
		g.warnLocked(Warning{Kind: WarnUnknownSource, ElementID: source, Ref: target})
		return g
	}
	if _, ok := g.elements[target]; !ok {
		g.warnLocked(Warning{Kind: WarnDanglingTarget, ElementID: source, Ref: target})
	}

	from.Outgoing = append(from.Outgoing, target)
	return g
}

// warn records a diagnostic that is not tied to AddElement or AddFlow, such as
// an unsupported tag found by the parser.
func (g *ElementGraph) warn(w Warning) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.warnLocked(w)
}

func (g *ElementGraph) warnLocked(w Warning) {
	g.warnings = append(g.warnings, w)
	observability.LogBuildWarning(g.cfg.logger, w.Kind.String(), w.ElementID, w.String())
}

// Element returns a copy of the element with the given id.
func (g *ElementGraph) Element(id string) (Element, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.elements[id]
	if !ok {
		return Element{}, false
	}
	return e.clone(), true
}

// Elements returns copies of all elements in declaration order.
func (g *ElementGraph) Elements() []Element {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Element, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.elements[id].clone())
	}
	return out
}

// Start returns the first start event in declaration order. Documents with
// several start events are not rejected; the first one wins.
func (g *ElementGraph) Start() (Element, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		if e := g.elements[id]; e.Kind == KindStart {
			return e.clone(), true
		}
	}
	return Element{}, false
}

// Len returns the number of elements.
func (g *ElementGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Warnings returns the diagnostics recorded so far.
func (g *ElementGraph) Warnings() []Warning {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.warnings)
}
