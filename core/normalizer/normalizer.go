// Package normalizer rewrites a raw transcription tree into the canonical
// tokenizable form the rest of the pipeline works on: accentuation
// conditionally stripped, division containers flattened to standalone
// markers, ignored elements and punctuation removed, and (optionally) one
// reading type selected wherever the source already records alternatives.
package normalizer

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/JuniperApparatus/core/errors"
	"github.com/FocuswithJustin/JuniperApparatus/core/hebrew"
	"github.com/FocuswithJustin/JuniperApparatus/core/xml"
)

// structuralTags are the tags a configuration may never ignore: dropping
// one of these would eliminate the document itself.
var structuralTags = []string{"TEI", "text", "body"}

// Config selects what normalization removes or collapses.
type Config struct {
	// IgnoredAccents lists the accent classes stripped from all text.
	IgnoredAccents []hebrew.AccentClass

	// IgnoredPunctuation lists punctuation texts whose pc elements are dropped.
	IgnoredPunctuation []string

	// PreferredReadingType, when set, collapses every apparatus to the
	// children of the reading carrying this type (e.g., "ketiv").
	PreferredReadingType string

	// IgnoredTags lists element tags dropped from the output.
	IgnoredTags []string
}

// Normalizer applies one normalization configuration to documents.
// A Normalizer is stateless after construction and safe to reuse.
type Normalizer struct {
	cfg         Config
	ignoredPunc map[string]bool
	ignoredTags map[string]bool
}

// New validates the configuration and returns a Normalizer. A configuration
// that would eliminate required structural information is rejected here,
// before any tree transformation begins.
func New(cfg Config) (*Normalizer, error) {
	tags := make(map[string]bool, len(cfg.IgnoredTags))
	for _, tag := range cfg.IgnoredTags {
		for _, structural := range structuralTags {
			if tag == structural {
				return nil, errors.NewConfig("ignored-tags",
					fmt.Sprintf("tag %q is structural and cannot be ignored", tag))
			}
		}
		tags[tag] = true
	}
	punc := make(map[string]bool, len(cfg.IgnoredPunctuation))
	for _, p := range cfg.IgnoredPunctuation {
		punc[p] = true
	}
	return &Normalizer{cfg: cfg, ignoredPunc: punc, ignoredTags: tags}, nil
}

// FormatText strips the configured accent classes from s.
func (n *Normalizer) FormatText(s string) string {
	return hebrew.Strip(s, n.cfg.IgnoredAccents)
}

// Document normalizes a whole document, returning a new tree. The input
// document is left untouched.
func (n *Normalizer) Document(doc *xml.Document) (*xml.Document, error) {
	root := doc.Root()
	if root == nil {
		return nil, errors.NewStructural("", "document has no root element")
	}
	out, err := n.Element(root)
	if err != nil {
		return nil, err
	}
	return xml.NewDocument(out), nil
}

// Element recursively normalizes one element, returning a new detached
// subtree. Sequential scanning of the result sees a flat stream of
// division markers and tokens where the input had nested containers.
func (n *Normalizer) Element(el *xml.Node) (*xml.Node, error) {
	tag := el.Name()
	sourceTag := tag
	if tag == "div" || tag == "ab" {
		tag = "divGen"
	}
	out := xml.NewElement(tag)
	if sourceTag == "ab" {
		out.SetAttr("type", "verse")
	}
	for name, value := range el.Attributes() {
		out.SetAttr(name, value)
	}
	for _, child := range el.Nodes() {
		if child.IsText() {
			out.AppendChild(xml.NewText(n.FormatText(child.Text())))
			continue
		}
		childTag := child.Name()
		// Dropping an element never drops the inter-element text after
		// it: that text is a sibling node and is handled by this same
		// loop, so nothing is lost.
		if n.ignoredTags[childTag] {
			continue
		}
		if childTag == "pc" && n.ignoredPunc[child.Text()] {
			continue
		}
		outChild, err := n.Element(child)
		if err != nil {
			return nil, err
		}
		switch outChild.Name() {
		case "app":
			if n.cfg.PreferredReadingType != "" {
				preferred, err := n.preferredReading(outChild)
				if err != nil {
					return nil, err
				}
				for _, grandchild := range preferred.Nodes() {
					out.AppendChild(grandchild)
				}
			} else {
				out.AppendChild(outChild)
			}
		case "divGen":
			// A flattened container becomes a standalone marker with its
			// former children as following siblings.
			hoisted := outChild.Nodes()
			out.AppendChild(outChild)
			for _, grandchild := range hoisted {
				if grandchild.IsText() && strings.TrimSpace(grandchild.Text()) == "" {
					grandchild.Detach()
					continue
				}
				out.AppendChild(grandchild)
			}
		default:
			out.AppendChild(outChild)
		}
	}
	return out, nil
}

// preferredReading returns the rdg child of app whose type matches the
// configured preferred reading type.
func (n *Normalizer) preferredReading(app *xml.Node) (*xml.Node, error) {
	for _, child := range app.Children() {
		if child.Name() == "rdg" && child.Attr("type") == n.cfg.PreferredReadingType {
			return child, nil
		}
	}
	return nil, errors.NewStructural("app",
		fmt.Sprintf("no reading with type %q", n.cfg.PreferredReadingType))
}
