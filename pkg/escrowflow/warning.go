package escrowflow

import "fmt"

// WarningKind classifies a non-fatal problem found while building or
// reducing a process graph.
type WarningKind int

const (
	// WarnUnknownSource means a sequence flow left an element that does not
	// exist. The edge was dropped.
	WarnUnknownSource WarningKind = iota
	// WarnDanglingTarget means a sequence flow points at an element that does
	// not exist. The edge was kept and acts as a dead end.
	WarnDanglingTarget
	// WarnDuplicateElement means an id was declared twice. The first
	// declaration was kept.
	WarnDuplicateElement
	// WarnUnsupportedElement means a BPMN flow node has no counterpart here.
	// Flows through it are lost.
	WarnUnsupportedElement
	// WarnMissingID means an element or flow carried no id or reference.
	WarnMissingID
	// WarnNoEntryTask means no first task could be determined.
	WarnNoEntryTask
)

// String returns a stable identifier for the kind.
func (k WarningKind) String() string {
	switch k {
	case WarnUnknownSource:
		return "unknown_source"
	case WarnDanglingTarget:
		return "dangling_target"
	case WarnDuplicateElement:
		return "duplicate_element"
	case WarnUnsupportedElement:
		return "unsupported_element"
	case WarnMissingID:
		return "missing_id"
	case WarnNoEntryTask:
		return "no_entry_task"
	default:
		return "unknown"
	}
}

// Warning is a build diagnostic. Warnings are returned as data so callers can
// assert on data loss instead of scraping logs.
type Warning struct {
	Kind WarningKind
	// ElementID is the element the warning is about, if any.
	ElementID string
	// Ref is the other end of an edge, or the BPMN tag of an unsupported node.
	Ref string
}

// String renders the warning for logs and CLI output.
func (w Warning) String() string {
	switch w.Kind {
	case WarnUnknownSource:
		return fmt.Sprintf("flow %s -> %s dropped: unknown source", w.ElementID, w.Ref)
	case WarnDanglingTarget:
		return fmt.Sprintf("flow %s -> %s kept as dead end: unknown target", w.ElementID, w.Ref)
	case WarnDuplicateElement:
		return fmt.Sprintf("element %s declared twice, first kept", w.ElementID)
	case WarnUnsupportedElement:
		return fmt.Sprintf("element %s ignored: unsupported kind %s", w.ElementID, w.Ref)
	case WarnMissingID:
		return fmt.Sprintf("%s ignored: missing id", w.Ref)
	case WarnNoEntryTask:
		return "no first task: no start event reaches a task and every task has a predecessor"
	default:
		return fmt.Sprintf("%s: %s %s", w.Kind, w.ElementID, w.Ref)
	}
}
