// Package segmenter partitions a normalized document body into contiguous
// segments, each anchored to one substantive element, with ignorable
// elements absorbed into the preceding segment and prefix markers absorbed
// into the following one. Desegment is the exact structural inverse.
package segmenter

import (
	"strconv"

	"github.com/FocuswithJustin/JuniperApparatus/core/errors"
	"github.com/FocuswithJustin/JuniperApparatus/core/xml"
)

// position is the state value the segmentation transducer assigns to each
// node of the body stream.
type position int

const (
	// posPrev marks ignorable content absorbed into the current segment.
	posPrev position = -1
	// posCurrent marks a substantive element that anchors a segment.
	posCurrent position = 0
	// posNext marks a prefix marker that attaches to the segment that
	// follows it rather than the one that precedes it.
	posNext position = 1
)

// prefixTags are the ignorable tags that attach forward instead of
// backward: division markers open the unit they introduce.
var prefixTags = map[string]bool{
	"divGen": true,
}

// boundary decides whether a new segment opens before a node with
// position next, given the previous node's position. A boundary opens
// when the position value rises, or between two substantive elements,
// which each need their own segment.
func boundary(prev, next position) bool {
	return next > prev || (next == posCurrent && prev == posCurrent)
}

// Segmenter groups a body's elements into segments according to an
// ignored-tag set.
type Segmenter struct {
	ignoredTags map[string]bool
}

// New returns a Segmenter that treats the given tags as ignorable.
func New(ignoredTags []string) *Segmenter {
	tags := make(map[string]bool, len(ignoredTags))
	for _, tag := range ignoredTags {
		tags[tag] = true
	}
	return &Segmenter{ignoredTags: tags}
}

// classify assigns the transducer position for one node.
func (s *Segmenter) classify(n *xml.Node) position {
	if !n.IsElement() {
		return posPrev
	}
	tag := n.Name()
	if !s.ignoredTags[tag] {
		return posCurrent
	}
	if prefixTags[tag] {
		return posNext
	}
	return posPrev
}

// Segment returns a copy of the document whose body is rewritten as a
// flat list of seg elements, each tagged with the tag and running ordinal
// of its substantive anchor. A segment holding only prefix markers not yet
// followed by a substantive element is left untyped. The input document
// is not modified.
func (s *Segmenter) Segment(doc *xml.Document) (*xml.Document, error) {
	out := doc.Clone()
	body, err := findBody(out)
	if err != nil {
		return nil, err
	}
	segmented := xml.NewElement("body")
	ordinals := map[string]int{}
	var queue []*xml.Node
	segType := ""
	segN := ""
	pos := posNext
	seal := func() {
		seg := xml.NewElement("seg")
		seg.SetAttr("type", segType)
		seg.SetAttr("n", segN)
		for _, queued := range queue {
			seg.AppendChild(queued)
		}
		segmented.AppendChild(seg)
		queue = nil
	}
	for _, child := range body.Nodes() {
		childPos := s.classify(child)
		tag := child.Name()
		if childPos == posCurrent {
			if _, seen := ordinals[tag]; seen {
				ordinals[tag]++
			} else {
				ordinals[tag] = 0
			}
			if segType == "" {
				segType = tag
				segN = strconv.Itoa(ordinals[tag])
			}
		}
		if boundary(pos, childPos) {
			seal()
			if childPos == posCurrent {
				segType = tag
				segN = strconv.Itoa(ordinals[tag])
			} else {
				segType = ""
				segN = ""
			}
		}
		queue = append(queue, child)
		pos = childPos
	}
	if len(queue) > 0 {
		seal()
	}
	return replaceBody(out, body, segmented)
}

// Desegment splices every segment's children back into the body in their
// original relative order and discards the seg wrappers. For any body B
// and ignored-tag set T, Desegment(Segment(B, T)) is structurally
// identical to B.
func (s *Segmenter) Desegment(doc *xml.Document) (*xml.Document, error) {
	out := doc.Clone()
	body, err := findBody(out)
	if err != nil {
		return nil, err
	}
	desegmented := xml.NewElement("body")
	for _, child := range body.Nodes() {
		if child.Name() == "seg" {
			for _, inner := range child.Nodes() {
				desegmented.AppendChild(inner)
			}
			continue
		}
		desegmented.AppendChild(child)
	}
	return replaceBody(out, body, desegmented)
}

// findBody locates the body element under the document's text element.
func findBody(doc *xml.Document) (*xml.Node, error) {
	text, err := doc.XPathFirst("//text")
	if err != nil {
		return nil, err
	}
	if text == nil {
		return nil, errors.NewStructural("text", "document has no text element")
	}
	body, err := text.QueryFirst(".//body")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.NewStructural("body", "text element has no body")
	}
	return body, nil
}

// replaceBody swaps the old body for the rewritten one in place and
// returns the document.
func replaceBody(doc *xml.Document, oldBody, newBody *xml.Node) (*xml.Document, error) {
	parent := oldBody.Parent()
	if parent == nil {
		return nil, errors.NewStructural("body", "body element has no parent")
	}
	oldBody.InsertAfter(newBody)
	oldBody.Detach()
	return doc, nil
}
