// Package collation derives lemma and witness projections of an apparatus
// document, validates resegmentations, and corrects apparatus boundaries
// to the finest granularity the segment markers support. It also hosts the
// collator that prepares witness token lists for the external alignment
// engine and folds the engine's output back into the lemma document.
package collation

import (
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/JuniperApparatus/core/errors"
	"github.com/FocuswithJustin/JuniperApparatus/core/xml"
)

// segMarkerXPath matches the division markers that delimit segments
// inside readings.
const segMarkerXPath = ".//divGen[@type='seg']"

// Editor validates and resegments collation documents. An Editor holds no
// state; every operation is a pure function from one document to another.
type Editor struct{}

// NewEditor returns an Editor.
func NewEditor() *Editor {
	return &Editor{}
}

// Validate checks that in every apparatus, every reading contains the same
// number of segment division markers as the lemma reading. The scan always
// covers the whole document; all mismatches are accumulated and returned
// together as a single ResegmentationError. A nil return means the
// resegmentation is structurally consistent.
func (e *Editor) Validate(doc *xml.Document) error {
	apps, err := doc.XPath("//app")
	if err != nil {
		return err
	}
	var mismatches []errors.Mismatch
	for _, app := range apps {
		lem, err := app.QueryFirst(".//lem")
		if err != nil {
			return err
		}
		if lem == nil {
			return errors.NewStructural("app", "apparatus has no lem reading")
		}
		lemMarkers, err := lem.Query(segMarkerXPath)
		if err != nil {
			return err
		}
		rdgs, err := app.Query(".//rdg")
		if err != nil {
			return err
		}
		for _, rdg := range rdgs {
			rdgMarkers, err := rdg.Query(segMarkerXPath)
			if err != nil {
				return err
			}
			if len(rdgMarkers) != len(lemMarkers) {
				mismatches = append(mismatches, errors.Mismatch{
					Apparatus: app.Attr("n"),
					Lemma:     len(lemMarkers),
					Reading:   len(rdgMarkers),
				})
			}
		}
	}
	if len(mismatches) > 0 {
		return &errors.ResegmentationError{Mismatches: mismatches}
	}
	return nil
}

// Witnesses returns the witness sigla recorded in the document's listWit
// element, in document order.
func (e *Editor) Witnesses(doc *xml.Document) ([]string, error) {
	listWit, err := doc.XPathFirst("//listWit")
	if err != nil {
		return nil, err
	}
	if listWit == nil {
		return nil, errors.NewStructural("listWit", "document has no witness list")
	}
	entries, err := listWit.Query(".//witness")
	if err != nil {
		return nil, err
	}
	witnesses := make([]string, 0, len(entries))
	for _, entry := range entries {
		if id := entry.Attr("id"); id != "" {
			witnesses = append(witnesses, id)
		}
	}
	return witnesses, nil
}

// LemmaDocument extracts a document containing, at each apparatus, only
// the lem reading's content. All other structure is copied verbatim.
func (e *Editor) LemmaDocument(doc *xml.Document) (*xml.Document, error) {
	return e.project(doc, func(app *xml.Node) ([]*xml.Node, error) {
		lem, err := app.QueryFirst(".//lem")
		if err != nil {
			return nil, err
		}
		if lem == nil {
			return nil, errors.NewStructural("app", "apparatus has no lem reading")
		}
		return lem.Nodes(), nil
	})
}

// WitnessDocument extracts a document containing, at each apparatus, the
// content of the first reading whose witness set contains wit. Every
// witness is required to appear in some reading of every apparatus; a
// miss is a WitnessError, not an empty projection.
func (e *Editor) WitnessDocument(doc *xml.Document, wit string) (*xml.Document, error) {
	ref := "#" + wit
	return e.project(doc, func(app *xml.Node) ([]*xml.Node, error) {
		rdgs, err := app.Query(".//rdg")
		if err != nil {
			return nil, err
		}
		for _, rdg := range rdgs {
			if hasWitnessRef(rdg, ref) {
				return rdg.Nodes(), nil
			}
		}
		return nil, errors.NewWitness(wit, app.Attr("n"))
	})
}

// project builds a new document whose body copies the source body, with
// each apparatus replaced by the nodes the selector picks from it.
func (e *Editor) project(doc *xml.Document, pick func(app *xml.Node) ([]*xml.Node, error)) (*xml.Document, error) {
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

	outRoot := xml.NewElement("TEI")
	outText := xml.NewElement("text")
	for name, value := range text.Attributes() {
		outText.SetAttr(name, value)
	}
	outRoot.AppendChild(outText)
	outBody := xml.NewElement("body")
	outText.AppendChild(outBody)

	for _, child := range body.Nodes() {
		if child.Name() == "app" {
			selected, err := pick(child)
			if err != nil {
				return nil, err
			}
			for _, node := range selected {
				outBody.AppendChild(node.Clone())
			}
			continue
		}
		outBody.AppendChild(child.Clone())
	}
	return xml.NewDocument(outRoot), nil
}

// hasWitnessRef reports whether the reading's space-separated wit
// reference list contains ref.
func hasWitnessRef(rdg *xml.Node, ref string) bool {
	for _, candidate := range splitRefs(rdg.Attr("wit")) {
		if candidate == ref {
			return true
		}
	}
	return false
}

// segmentAtMarkers rewrites the document body as seg elements split at
// divGen[type=seg] markers. The markers themselves are consumed; a body
// with k markers yields k+1 segments.
func (e *Editor) segmentAtMarkers(doc *xml.Document) (*xml.Document, error) {
	out := doc.Clone()
	text, err := out.XPathFirst("//text")
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
	segmented := xml.NewElement("body")
	seg := xml.NewElement("seg")
	for _, child := range body.Nodes() {
		if child.Name() == "divGen" && child.Attr("type") == "seg" {
			segmented.AppendChild(seg)
			seg = xml.NewElement("seg")
			continue
		}
		seg.AppendChild(child)
	}
	segmented.AppendChild(seg)
	body.InsertAfter(segmented)
	body.Detach()
	return out, nil
}

// UpdateBoundaries corrects the apparatus boundaries of a validated
// document. The lemma projection and every witness projection are
// segmented at the seg markers independently; at each segment index the
// witnesses are grouped by identical serialized content. One group means
// no variation: the lemma segment's content is copied through. Several
// groups become a new apparatus with a lem reading from the lemma segment
// and one rdg per group, in group-discovery order. Returns a new document;
// the input is not modified.
func (e *Editor) UpdateBoundaries(doc *xml.Document) (*xml.Document, error) {
	witnesses, err := e.Witnesses(doc)
	if err != nil {
		return nil, err
	}
	lemmaDoc, err := e.LemmaDocument(doc)
	if err != nil {
		return nil, err
	}
	lemmaDoc, err = e.segmentAtMarkers(lemmaDoc)
	if err != nil {
		return nil, err
	}
	lemSegs, err := lemmaDoc.XPath("//seg")
	if err != nil {
		return nil, err
	}

	segsByWitness := make(map[string][]*xml.Node, len(witnesses))
	for _, wit := range witnesses {
		witnessDoc, err := e.WitnessDocument(doc, wit)
		if err != nil {
			return nil, err
		}
		witnessDoc, err = e.segmentAtMarkers(witnessDoc)
		if err != nil {
			return nil, err
		}
		segs, err := witnessDoc.XPath("//seg")
		if err != nil {
			return nil, err
		}
		if len(segs) != len(lemSegs) {
			return nil, errors.NewStructural("seg",
				fmt.Sprintf("witness %s has %d segments, lemma has %d; run validation first",
					wit, len(segs), len(lemSegs)))
		}
		segsByWitness[wit] = segs
	}

	updatedBody := xml.NewElement("body")
	for i, lemSeg := range lemSegs {
		groups := groupWitnesses(witnesses, segsByWitness, i)
		if len(groups) == 1 {
			for _, child := range lemSeg.Nodes() {
				updatedBody.AppendChild(child)
			}
			continue
		}
		app := xml.NewElement("app")
		lem := xml.NewElement("lem")
		for _, child := range lemSeg.Nodes() {
			lem.AppendChild(child)
		}
		app.AppendChild(lem)
		for _, group := range groups {
			rdg := xml.NewElement("rdg")
			rdg.SetAttr("wit", joinRefs(group.witnesses))
			for _, child := range group.seg.Nodes() {
				rdg.AppendChild(child)
			}
			app.AppendChild(rdg)
		}
		updatedBody.AppendChild(app)
	}
	return e.replaceBody(doc, updatedBody)
}

// readingGroup is one equivalence class of witnesses whose segment
// content is identical at some segment index.
type readingGroup struct {
	seg       *xml.Node // representative segment (first witness encountered)
	witnesses []string  // supporting witnesses in discovery order
}

// groupWitnesses partitions the witness set by identical serialization of
// their segment at index i. The serialized content is keyed by BLAKE3
// digest; group order follows first encounter.
func groupWitnesses(witnesses []string, segsByWitness map[string][]*xml.Node, i int) []*readingGroup {
	var groups []*readingGroup
	byDigest := make(map[[32]byte]*readingGroup)
	for _, wit := range witnesses {
		seg := segsByWitness[wit][i]
		digest := blake3.Sum256([]byte(seg.InnerXML()))
		group, ok := byDigest[digest]
		if !ok {
			group = &readingGroup{seg: seg}
			byDigest[digest] = group
			groups = append(groups, group)
		}
		group.witnesses = append(group.witnesses, wit)
	}
	return groups
}

// replaceBody returns a copy of doc with its body swapped for newBody.
func (e *Editor) replaceBody(doc *xml.Document, newBody *xml.Node) (*xml.Document, error) {
	out := doc.Clone()
	text, err := out.XPathFirst("//text")
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
	body.InsertAfter(newBody)
	body.Detach()
	return out, nil
}
