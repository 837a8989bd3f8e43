package collation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/JuniperApparatus/core/errors"
	"github.com/FocuswithJustin/JuniperApparatus/core/hebrew"
	"github.com/FocuswithJustin/JuniperApparatus/core/normalizer"
	"github.com/FocuswithJustin/JuniperApparatus/core/segmenter"
	"github.com/FocuswithJustin/JuniperApparatus/core/token"
	"github.com/FocuswithJustin/JuniperApparatus/core/xml"
	"github.com/FocuswithJustin/JuniperApparatus/internal/logging"
)

// Engine is the external alignment engine. It receives the token lists of
// every witness extant at one textual unit and returns an apparatus
// fragment for that unit. The fragment may contain markup-escaped angle
// brackets and quotes, which the collator unescapes before parsing.
type Engine interface {
	Align(ctx context.Context, collation *token.Collation) (string, error)
}

// Config controls witness ingestion and collation chunking.
type Config struct {
	// Level is the division level tokens are grouped at for alignment
	// ("book", "chapter", or "verse"). Incipits and explicits always
	// chunk alongside the configured level.
	Level string

	// IgnoredAccents are stripped from the formatted side of each token.
	// The normalized side is always fully stripped.
	IgnoredAccents []hebrew.AccentClass

	// IgnoredTags are dropped during witness normalization.
	IgnoredTags []string
}

// Collator ingests witness transcriptions, hands their token lists to the
// alignment engine one division at a time, and folds the resulting
// apparatus fragments into the lemma witness's document.
type Collator struct {
	cfg Config

	lemma     string        // siglum of the lemma witness (first witness read)
	lemmaDoc  *xml.Document // lemma transcription, normalized for augmentation
	witnesses []string      // witness sigla in ingestion order

	// primaryToSecondary maps a dual-tradition witness to the derived
	// witnesses created for each of its reading types.
	primaryToSecondary map[string][]string

	// tokensByWitness maps siglum -> division index -> token list.
	tokensByWitness map[string]map[string]token.List
}

// NewCollator returns a Collator with the given configuration. An empty
// Level defaults to verse-level chunking.
func NewCollator(cfg Config) *Collator {
	if cfg.Level == "" {
		cfg.Level = "verse"
	}
	return &Collator{
		cfg:                cfg,
		primaryToSecondary: make(map[string][]string),
		tokensByWitness:    make(map[string]map[string]token.List),
	}
}

// Witnesses returns the ingested witness sigla in order.
func (c *Collator) Witnesses() []string {
	return c.witnesses
}

// Lemma returns the siglum of the lemma witness.
func (c *Collator) Lemma() string {
	return c.lemma
}

// SecondaryWitnesses returns the derived witnesses of a dual-tradition
// primary witness, if any.
func (c *Collator) SecondaryWitnesses(primary string) []string {
	return c.primaryToSecondary[primary]
}

// Divisions returns the division identifiers of the lemma witness, in
// document order.
func (c *Collator) Divisions() ([]string, error) {
	if c.lemmaDoc == nil {
		return nil, errors.NewStructural("TEI", "no witness has been read")
	}
	expr := fmt.Sprintf("//milestone[@unit='%s' or @unit='incipit' or @unit='explicit']", c.cfg.Level)
	divs, err := c.lemmaDoc.XPath(expr)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, div := range divs {
		if n := div.Attr("n"); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// Division assembles the alignment-engine input for one division: the
// token lists of every witness extant there, in witness order.
func (c *Collator) Division(divN string) *token.Collation {
	collation := &token.Collation{}
	for _, wit := range c.witnesses {
		if tokens, extant := c.tokensByWitness[wit][divN]; extant {
			collation.Add(wit, tokens)
		}
	}
	return collation
}

// witnessIngest is the result of ingesting one transcription document.
type witnessIngest struct {
	primary   string
	secondary []string                    // derived witness sigla, empty for single-tradition
	tokens    map[string]map[string]token.List // siglum -> division -> tokens
	lemmaDoc  *xml.Document               // candidate lemma document
}

// ReadWitness ingests one witness transcription. The first witness read
// becomes the lemma. A witness whose source already contains typed
// alternative readings (ketiv/qere) is split into one derived witness per
// reading type.
func (c *Collator) ReadWitness(doc *xml.Document) error {
	ingest, err := c.ingest(doc)
	if err != nil {
		return err
	}
	c.merge(ingest)
	return nil
}

// ReadAll ingests several witness transcriptions. Each witness's
// normalization and tokenization is independent, so ingestion runs
// concurrently; results are merged in input order, which keeps the
// witness order (and therefore the lemma choice) deterministic.
func (c *Collator) ReadAll(ctx context.Context, docs []*xml.Document) error {
	results := make([]*witnessIngest, len(docs))
	g, _ := errgroup.WithContext(ctx)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			ingest, err := c.ingest(doc)
			if err != nil {
				return err
			}
			results[i] = ingest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, ingest := range results {
		c.merge(ingest)
	}
	return nil
}

// merge folds one ingestion result into the collator. The first result
// merged supplies the lemma.
func (c *Collator) merge(ingest *witnessIngest) {
	if len(ingest.secondary) == 0 {
		c.witnesses = append(c.witnesses, ingest.primary)
	} else {
		c.primaryToSecondary[ingest.primary] = ingest.secondary
		c.witnesses = append(c.witnesses, ingest.secondary...)
	}
	for siglum, tokens := range ingest.tokens {
		c.tokensByWitness[siglum] = tokens
		logging.WitnessIngested(siglum, len(tokens))
	}
	if c.lemma == "" {
		c.lemma = ingest.primary
		c.lemmaDoc = ingest.lemmaDoc
	}
}

// ingest normalizes one transcription twice (formatted and fully
// normalized) per reading type and extracts its per-division token lists.
func (c *Collator) ingest(doc *xml.Document) (*witnessIngest, error) {
	id, err := witnessName(doc)
	if err != nil {
		return nil, err
	}
	types, err := readingTypes(doc)
	if err != nil {
		return nil, err
	}
	result := &witnessIngest{
		primary: id,
		tokens:  make(map[string]map[string]token.List),
	}
	if len(types) == 0 {
		lists, err := c.tokenize(doc, "")
		if err != nil {
			return nil, errors.Wrapf(err, "witness %s", id)
		}
		result.tokens[id] = lists
		result.lemmaDoc = doc.Clone()
		return result, nil
	}
	for i, readingType := range types {
		siglum := id + "-" + readingType
		result.secondary = append(result.secondary, siglum)
		lists, err := c.tokenize(doc, readingType)
		if err != nil {
			return nil, errors.Wrapf(err, "witness %s", siglum)
		}
		result.tokens[siglum] = lists
		if i == 0 {
			lemmaNorm, err := normalizer.New(normalizer.Config{PreferredReadingType: readingType})
			if err != nil {
				return nil, err
			}
			result.lemmaDoc, err = lemmaNorm.Document(doc)
			if err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// tokenize produces the per-division token lists for one reading of one
// witness: a formatted pass (configured accents kept out, the rest kept)
// and a fully-normalized pass, walked in lockstep.
func (c *Collator) tokenize(doc *xml.Document, readingType string) (map[string]token.List, error) {
	formattedNorm, err := normalizer.New(normalizer.Config{
		IgnoredAccents:       c.cfg.IgnoredAccents,
		PreferredReadingType: readingType,
		IgnoredTags:          c.cfg.IgnoredTags,
	})
	if err != nil {
		return nil, err
	}
	fullNorm, err := normalizer.New(normalizer.Config{
		IgnoredAccents:       hebrew.AllAccentClasses,
		PreferredReadingType: readingType,
		IgnoredTags:          c.cfg.IgnoredTags,
	})
	if err != nil {
		return nil, err
	}
	formatted, err := formattedNorm.Document(doc)
	if err != nil {
		return nil, err
	}
	normalized, err := fullNorm.Document(doc)
	if err != nil {
		return nil, err
	}
	return c.tokensByDivision(formatted, normalized)
}

// tokensByDivision walks the formatted and normalized bodies in lockstep
// and groups tokens by the index of the enclosing division at the
// configured level. Division markers themselves become tokens of the unit
// they open. A division that closes without any token yields exactly one
// omit sentinel token.
func (c *Collator) tokensByDivision(formatted, normalized *xml.Document) (map[string]token.List, error) {
	fBody, err := formatted.XPathFirst("//body")
	if err != nil {
		return nil, err
	}
	nBody, err := normalized.XPathFirst("//body")
	if err != nil {
		return nil, err
	}
	if fBody == nil || nBody == nil {
		return nil, errors.NewStructural("body", "normalized witness has no body")
	}
	fElements := fBody.Children()
	nElements := nBody.Children()
	if len(fElements) != len(nElements) {
		return nil, errors.NewStructural("body",
			fmt.Sprintf("formatted and normalized passes disagree: %d vs %d elements",
				len(fElements), len(nElements)))
	}

	byDivision := make(map[string]token.List)
	division := ""
	var tokens token.List
	flush := func() {
		if division == "" {
			return
		}
		if len(tokens) == 0 {
			tokens = token.List{token.Omit()}
		}
		byDivision[division] = tokens
		tokens = nil
	}
	for i, fEl := range fElements {
		nEl := nElements[i]
		if fEl.Name() == "milestone" && c.atLevel(fEl.Attr("unit")) && fEl.Attr("n") != "" {
			flush()
			division = fEl.Attr("n")
		}
		normalizedForm := nEl.Text()
		if normalizedForm == "" {
			normalizedForm = nEl.Name()
		}
		tokens = append(tokens, token.Token{
			Formatted:  strings.TrimSpace(fEl.OuterXML()),
			Normalized: normalizedForm,
		})
	}
	flush()
	return byDivision, nil
}

// atLevel reports whether a milestone unit chunks at the configured
// division level. Incipits and explicits substitute for the chapter level
// and always chunk.
func (c *Collator) atLevel(unit string) bool {
	return unit == c.cfg.Level || unit == "incipit" || unit == "explicit"
}

// Collate aligns all ingested witnesses division by division and returns
// the assembled collation document. After alignment, coverage is
// completed: every apparatus gains an empty reading carrying the
// witnesses that are extant at that division but appear in none of the
// engine's readings, so the union of witness sets always equals the
// extant set.
func (c *Collator) Collate(ctx context.Context, engine Engine) (*xml.Document, error) {
	if c.lemmaDoc == nil {
		return nil, errors.NewStructural("TEI", "no witness has been read")
	}
	root := xml.NewElement("TEI")
	expr := fmt.Sprintf("//milestone[@unit='%s' or @unit='incipit' or @unit='explicit']", c.cfg.Level)
	divs, err := c.lemmaDoc.XPath(expr)
	if err != nil {
		return nil, err
	}
	for _, div := range divs {
		divN := div.Attr("n")
		if divN == "" {
			continue
		}
		collation := c.Division(divN)
		if len(collation.Witnesses) == 0 {
			continue
		}
		logging.Debug("aligning division",
			"n", divN,
			"witnesses", len(collation.Witnesses),
			"tokens", collation.Fingerprint())
		fragment, err := engine.Align(ctx, collation)
		if err != nil {
			return nil, errors.Wrapf(err, "aligning division %s", divN)
		}
		parsed, err := xml.ParseString(token.UnescapeEngineOutput(fragment))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing engine output for division %s", divN)
		}
		fragmentRoot := parsed.Root()
		if fragmentRoot == nil {
			return nil, errors.NewStructural("app", "engine returned no content for division "+divN)
		}
		for _, child := range fragmentRoot.Nodes() {
			root.AppendChild(child)
		}
	}
	doc := xml.NewDocument(root)
	if err := c.completeCoverage(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// completeCoverage inserts an empty rdg for extant-but-uncovered
// witnesses into every apparatus of the collation document. When the
// lemma witness itself omits, the empty reading becomes the apparatus's
// first child so downstream lem selection picks it up.
func (c *Collator) completeCoverage(doc *xml.Document) error {
	root := doc.Root()
	var extant []string
	for _, child := range root.Children() {
		if child.Name() == "milestone" && c.atLevel(child.Attr("unit")) && child.Attr("n") != "" {
			divN := child.Attr("n")
			extant = extant[:0]
			for _, wit := range c.witnesses {
				if _, ok := c.tokensByWitness[wit][divN]; ok {
					extant = append(extant, wit)
				}
			}
			continue
		}
		if child.Name() != "app" {
			continue
		}
		uncovered := make(map[string]bool, len(extant))
		for _, wit := range extant {
			uncovered[wit] = true
		}
		rdgs, err := child.Query(".//rdg")
		if err != nil {
			return err
		}
		for _, rdg := range rdgs {
			for _, ref := range splitRefs(rdg.Attr("wit")) {
				delete(uncovered, strings.TrimPrefix(ref, "#"))
			}
		}
		if len(uncovered) == 0 {
			continue
		}
		var omitted []string
		for _, wit := range c.witnesses {
			if uncovered[wit] {
				omitted = append(omitted, wit)
			}
		}
		omitRdg := xml.NewElement("rdg")
		omitRdg.SetAttr("wit", joinRefs(omitted))
		if uncovered[c.lemma] {
			child.PrependChild(omitRdg)
		} else {
			child.AppendChild(omitRdg)
		}
	}
	return nil
}

// AugmentLemma merges a collation document into the lemma witness's
// document: each apparatus is inserted at the position of the lemma
// segment it follows, given a lem reading filled from the lemma's own
// segments, and the segmentation is undone again. Returns the augmented
// lemma document; neither input is modified.
func (c *Collator) AugmentLemma(collationDoc *xml.Document) (*xml.Document, error) {
	if c.lemmaDoc == nil {
		return nil, errors.NewStructural("TEI", "no witness has been read")
	}
	collationRoot := collationDoc.Root()
	if collationRoot == nil {
		return nil, errors.NewStructural("TEI", "collation document has no root")
	}
	working := c.lemmaDoc.Clone()

	sourceDesc, err := working.XPathFirst("//sourceDesc")
	if err != nil {
		return nil, err
	}
	if sourceDesc == nil {
		return nil, errors.NewStructural("sourceDesc", "lemma document has no source description")
	}
	listWit := xml.NewElement("listWit")
	for _, wit := range c.witnesses {
		witness := xml.NewElement("witness")
		witness.SetAttr("id", wit)
		listWit.AppendChild(witness)
	}
	sourceDesc.AppendChild(listWit)

	seg := segmenter.New(c.cfg.IgnoredTags)
	segmented, err := seg.Segment(working)
	if err != nil {
		return nil, err
	}

	// Replay the collation stream against the segmented lemma: ordinal
	// counters here mirror the segmenter's, so seg[type, n] lookups land
	// on the segment produced for the same substantive element.
	ordinals := map[string]int{}
	segType, segN := "", ""
	bump := func(tag string) {
		if _, seen := ordinals[tag]; seen {
			ordinals[tag]++
		} else {
			ordinals[tag] = 0
		}
		segType = tag
		segN = strconv.Itoa(ordinals[tag])
	}
	for _, child := range collationRoot.Children() {
		tag := child.Name()
		if tag != "app" {
			bump(tag)
			continue
		}
		app := child.Clone()
		if segType == "app" {
			apps, err := segmented.XPath("//app")
			if err != nil {
				return nil, err
			}
			apps[len(apps)-1].InsertAfter(app)
		} else {
			target, err := segmented.XPathFirst(
				fmt.Sprintf("//seg[@type='%s' and @n='%s']", segType, segN))
			if err != nil {
				return nil, err
			}
			if target == nil {
				return nil, errors.NewStructural("seg",
					fmt.Sprintf("no lemma segment for %s[%s]", segType, segN))
			}
			target.InsertAfter(app)
		}
		bump("app")
		lemmaRdg, err := c.lemmaReading(app)
		if err != nil {
			return nil, err
		}
		for _, rdgChild := range lemmaRdg.Children() {
			bump(rdgChild.Name())
		}
	}

	// Fill in lem readings: each inserted apparatus absorbs as many
	// following lemma segments as its lemma reading has elements.
	apps, err := segmented.XPath("//app")
	if err != nil {
		return nil, err
	}
	for _, app := range apps {
		lemmaRdg, err := c.lemmaReading(app)
		if err != nil {
			return nil, err
		}
		lem := xml.NewElement("lem")
		remaining := len(lemmaRdg.Children())
		sibling := app.NextElementSibling()
		for remaining > 0 && sibling != nil {
			if sibling.Name() != "seg" {
				sibling = sibling.NextElementSibling()
				continue
			}
			for _, content := range sibling.Nodes() {
				lem.AppendChild(content)
			}
			remaining--
			sibling = sibling.NextElementSibling()
		}
		app.PrependChild(lem)
	}

	return seg.Desegment(segmented)
}

// lemmaReading returns the first reading of app whose witness set
// contains the lemma witness.
func (c *Collator) lemmaReading(app *xml.Node) (*xml.Node, error) {
	ref := "#" + c.lemma
	rdgs, err := app.Query(".//rdg")
	if err != nil {
		return nil, err
	}
	for _, rdg := range rdgs {
		if hasWitnessRef(rdg, ref) {
			return rdg, nil
		}
	}
	return nil, errors.NewWitness(c.lemma, app.Attr("n"))
}

// witnessName derives the witness siglum from the header: the second
// title element carries it, in its n attribute or its text.
func witnessName(doc *xml.Document) (string, error) {
	titles, err := doc.XPath("//title")
	if err != nil {
		return "", err
	}
	if len(titles) < 2 {
		return "", errors.NewStructural("title", "witness header has no document title")
	}
	title := titles[1]
	if n := title.Attr("n"); n != "" {
		return n, nil
	}
	name := strings.TrimSpace(title.Text())
	if name == "" {
		return "", errors.NewStructural("title", "document title names no witness")
	}
	return name, nil
}

// readingTypes returns the distinct rdg types of a transcription in
// document order. Untyped readings are skipped; a source with no typed
// readings is a single-tradition witness.
func readingTypes(doc *xml.Document) ([]string, error) {
	rdgs, err := doc.XPath("//rdg")
	if err != nil {
		return nil, err
	}
	var types []string
	seen := make(map[string]bool)
	for _, rdg := range rdgs {
		readingType := rdg.Attr("type")
		if readingType == "" || seen[readingType] {
			continue
		}
		seen[readingType] = true
		types = append(types, readingType)
	}
	return types, nil
}

// splitRefs splits a space-separated witness reference list.
func splitRefs(refs string) []string {
	return strings.Fields(refs)
}

// joinRefs renders witness sigla as a space-separated reference list.
func joinRefs(witnesses []string) string {
	refs := make([]string, len(witnesses))
	for i, wit := range witnesses {
		refs[i] = "#" + wit
	}
	return strings.Join(refs, " ")
}
