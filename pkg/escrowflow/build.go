package escrowflow

import (
	"bytes"
	"encoding/xml"
	"io"
)

// xmlNode is a generic element tree. Matching is done on local names so the
// bpmn2:, bpmn: and default-namespace spellings all parse the same way.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []xmlNode  `xml:",any"`
}

func (n xmlNode) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (n xmlNode) firstChild(local string) (xmlNode, bool) {
	for _, c := range n.Nodes {
		if c.XMLName.Local == local {
			return c, true
		}
	}
	return xmlNode{}, false
}

// Parse reads a BPMN 2.0 document and builds its element graph.
//
// The document root must be definitions. The first choreography container is
// used; if there is none, the first process container is used. Anything else
// fails with *MalformedDocumentError.
//
// Within the container, startEvent, endEvent, task, exclusiveGateway and
// choreographyTask become elements. All elements are created before any
// sequenceFlow is applied, so flow order in the document does not matter.
// Other BPMN flow nodes produce WarnUnsupportedElement; unrelated tags are
// ignored.
func Parse(r io.Reader, opts ...BuildOption) (*ElementGraph, error) {
	var root xmlNode
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		return nil, &MalformedDocumentError{Reason: "not well-formed XML", Err: err}
	}
	if root.XMLName.Local != "definitions" {
		return nil, &MalformedDocumentError{Reason: "root element is " + root.XMLName.Local + ", want definitions"}
	}

	container, ok := root.firstChild("choreography")
	if !ok {
		container, ok = root.firstChild("process")
	}
	if !ok {
		return nil, &MalformedDocumentError{Reason: "no choreography or process container"}
	}

	g := NewElementGraph(opts...)

	type flow struct{ source, target string }
	var flows []flow

	for _, child := range container.Nodes {
		tag := child.XMLName.Local
		if kind, ok := kindByTag[tag]; ok {
			g.AddElement(child.attr("id"), kind, child.attr("name"))
			continue
		}
		switch {
		case tag == "sequenceFlow":
			flows = append(flows, flow{source: child.attr("sourceRef"), target: child.attr("targetRef")})
		case unsupportedTags[tag]:
			g.warn(Warning{Kind: WarnUnsupportedElement, ElementID: child.attr("id"), Ref: tag})
		}
	}

	for _, f := range flows {
		g.AddFlow(f.source, f.target)
	}

	return g, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(document []byte, opts ...BuildOption) (*ElementGraph, error) {
	return Parse(bytes.NewReader(document), opts...)
}
