package labeler

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/JuniperApparatus/core/errors"
	"github.com/FocuswithJustin/JuniperApparatus/core/xml"
)

// divAbbreviations maps division types to their citation abbreviations.
// Incipits and explicits keep their own names.
var divAbbreviations = map[string]string{
	"book":     "B",
	"incipit":  "incipit",
	"explicit": "explicit",
	"chapter":  "K",
	"verse":    "V",
	"w":        "U",
}

// wordStep is the word index increment per word. Counting by two leaves
// odd positions free for later insertions between existing words.
const wordStep = 2

// indexContext is the traversal state of the citation pass: the division
// hierarchy in the top-down order levels were first encountered, and the
// current index at each level. It is threaded explicitly through the
// recursion; a fresh context makes every pass independent.
type indexContext struct {
	hierarchy []string
	indices   map[string]string
}

func newIndexContext() *indexContext {
	return &indexContext{indices: make(map[string]string)}
}

// snapshot copies the current indices.
func (c *indexContext) snapshot() map[string]string {
	out := make(map[string]string, len(c.indices))
	for level, index := range c.indices {
		out[level] = index
	}
	return out
}

func (c *indexContext) levelAt(level string) int {
	for i, known := range c.hierarchy {
		if known == level {
			return i
		}
	}
	return -1
}

// enterDivision records a division marker: the level's index is updated
// and every lower level's index resets to zero.
func (c *indexContext) enterDivision(divType, divN string) {
	abbrev := divAbbreviations[divType]
	switch divType {
	case "incipit", "explicit":
		// Incipits and explicits take the chapter's slot in the
		// hierarchy while active.
		divN = ""
		if i := c.levelAt("chapter"); i >= 0 {
			c.hierarchy[i] = divType
		}
	default:
		if divType == "chapter" {
			if i := c.levelAt("incipit"); i >= 0 {
				c.hierarchy[i] = "chapter"
			} else if i := c.levelAt("explicit"); i >= 0 {
				c.hierarchy[i] = "chapter"
			}
		}
		// A division's n attribute may carry the full citation prefix;
		// keep only this level's own number.
		if i := strings.Index(divN, abbrev); i >= 0 {
			divN = divN[i+len(abbrev):]
		}
	}
	if c.levelAt(divType) < 0 {
		c.hierarchy = append(c.hierarchy, divType)
	}
	c.indices[divType] = divN
	for _, lower := range c.hierarchy[c.levelAt(divType)+1:] {
		c.indices[lower] = "0"
	}
}

// ensureWordLevel registers the word level the first time a word or an
// apparatus is seen.
func (c *indexContext) ensureWordLevel() {
	if c.levelAt("w") < 0 {
		c.hierarchy = append(c.hierarchy, "w")
		c.indices["w"] = "0"
	}
}

// enterWord advances the word index.
func (c *indexContext) enterWord() {
	c.ensureWordLevel()
	c.indices["w"] = bumpIndex(c.indices["w"], wordStep)
}

// inParatext reports whether an incipit or explicit is the active
// chapter-level division.
func (c *indexContext) inParatext() bool {
	return c.levelAt("incipit") >= 0 || c.levelAt("explicit") >= 0
}

// citation renders indices as a citation label over the hierarchy,
// starting at hierarchy level from. The verse component is suppressed
// inside incipits and explicits, which have no verses of their own.
func (c *indexContext) citation(indices map[string]string, from int) string {
	var sb strings.Builder
	for _, level := range c.hierarchy[from:] {
		if c.inParatext() && level == "verse" {
			continue
		}
		sb.WriteString(divAbbreviations[level])
		sb.WriteString(indices[level])
	}
	return sb.String()
}

func bumpIndex(index string, step int) string {
	n, err := strconv.Atoi(index)
	if err != nil {
		n = 0
	}
	return strconv.Itoa(n + step)
}

func equalIndices(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for level, index := range a {
		if b[level] != index {
			return false
		}
	}
	return true
}

// AddIndices returns a copy of the document with every apparatus carrying
// an n citation label derived from its position in the division and word
// stream.
func (l *Labeler) AddIndices(doc *xml.Document) (*xml.Document, error) {
	out := doc.Clone()
	if err := l.addIndices(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Labeler) addIndices(doc *xml.Document) error {
	root := doc.Root()
	if root == nil {
		return errors.NewStructural("", "document has no root element")
	}
	return l.index(root, newIndexContext())
}

// index is the single left-to-right pass: division markers and words
// advance the context, apparatuses consume it to produce their labels,
// everything else recurses.
func (l *Labeler) index(el *xml.Node, ctx *indexContext) error {
	switch el.Name() {
	case "divGen":
		if divType := el.Attr("type"); divType != "" {
			ctx.enterDivision(divType, el.Attr("n"))
		}
		return nil
	case "milestone":
		// Collated documents mark divisions with milestone elements
		// whose unit names the level.
		if unit := el.Attr("unit"); unit != "" {
			ctx.enterDivision(unit, el.Attr("n"))
		}
		return nil
	case "w":
		ctx.enterWord()
		return nil
	case "app":
		return l.indexApparatus(el, ctx)
	}
	for _, child := range el.Children() {
		if err := l.index(child, ctx); err != nil {
			return err
		}
	}
	return nil
}

// indexApparatus labels one apparatus. The context is snapshotted before
// and after replaying the lemma reading's children; the pair of
// snapshots determines whether the label is a point or a range.
func (l *Labeler) indexApparatus(app *xml.Node, ctx *indexContext) error {
	ctx.ensureWordLevel()
	lem, err := app.QueryFirst(".//lem")
	if err != nil {
		return err
	}
	if lem == nil {
		return errors.NewStructural("app", "apparatus has no lem reading")
	}
	start := ctx.snapshot()
	for _, child := range lem.Children() {
		if err := l.index(child, ctx); err != nil {
			return err
		}
	}
	end := ctx.snapshot()

	if equalIndices(start, end) {
		// The lemma moved nothing: either a purely structural variation
		// or a lemma omission at a single word position.
		words, err := app.Query(".//w")
		if err != nil {
			return err
		}
		if len(words) > 0 {
			start["w"] = bumpIndex(start["w"], 1)
		}
		app.SetAttr("n", ctx.citation(start, 0))
		return nil
	}

	// The lemma contains at least one word: its first word sits one step
	// past the starting index.
	start["w"] = bumpIndex(start["w"], wordStep)
	if equalIndices(start, end) {
		app.SetAttr("n", ctx.citation(start, 0))
		return nil
	}
	differing := 0
	for i, level := range ctx.hierarchy {
		if start[level] != end[level] {
			differing = i
			break
		}
	}
	label := ctx.citation(start, 0) + "-" + ctx.citation(end, differing)
	app.SetAttr("n", label)
	return nil
}
