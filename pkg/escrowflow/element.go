package escrowflow

import "slices"

// ElementKind classifies a flow node of a process document.
type ElementKind int

const (
	// KindStart is a start event.
	KindStart ElementKind = iota
	// KindEnd is an end event.
	KindEnd
	// KindTask is a plain task.
	KindTask
	// KindGateway is an exclusive gateway.
	KindGateway
	// KindChoreographyTask is a choreography task between participants.
	KindChoreographyTask
)

// String returns the BPMN tag name of the kind.
func (k ElementKind) String() string {
	switch k {
	case KindStart:
		return "startEvent"
	case KindEnd:
		return "endEvent"
	case KindTask:
		return "task"
	case KindGateway:
		return "exclusiveGateway"
	case KindChoreographyTask:
		return "choreographyTask"
	default:
		return "unknown"
	}
}

// IsTask reports whether elements of this kind are task-graph nodes.
// Every other kind is routing that the reducer flattens away.
func (k ElementKind) IsTask() bool {
	return k == KindTask || k == KindChoreographyTask
}

// kindByTag maps BPMN local tag names to element kinds.
var kindByTag = map[string]ElementKind{
	"startEvent":       KindStart,
	"endEvent":         KindEnd,
	"task":             KindTask,
	"exclusiveGateway": KindGateway,
	"choreographyTask": KindChoreographyTask,
}

// unsupportedTags are BPMN flow nodes that exist in the standard but carry no
// element here. Edges into or out of them are lost, so the builder reports them.
var unsupportedTags = map[string]bool{
	"parallelGateway":        true,
	"inclusiveGateway":       true,
	"eventBasedGateway":      true,
	"complexGateway":         true,
	"intermediateCatchEvent": true,
	"intermediateThrowEvent": true,
	"boundaryEvent":          true,
	"subProcess":             true,
	"subChoreography":        true,
	"callActivity":           true,
	"callChoreography":       true,
	"userTask":               true,
	"serviceTask":            true,
	"scriptTask":             true,
	"sendTask":               true,
	"receiveTask":            true,
	"manualTask":             true,
	"businessRuleTask":       true,
}

// Element is a node of the raw process graph.
type Element struct {
	ID   string
	Kind ElementKind
	Name string
	// Outgoing holds sequence-flow targets in document order. Targets may
	// reference ids that are not part of the graph.
	Outgoing []string
}

func (e Element) clone() Element {
	e.Outgoing = slices.Clone(e.Outgoing)
	return e
}
