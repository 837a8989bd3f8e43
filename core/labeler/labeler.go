// Package labeler annotates the apparatuses of a finished collation
// document: each variation point receives a type classifying the kind of
// variation it records and an n attribute carrying its hierarchical
// citation label.
package labeler

import (
	"sort"
	"strings"

	"github.com/FocuswithJustin/JuniperApparatus/core/cache"
	"github.com/FocuswithJustin/JuniperApparatus/core/errors"
	"github.com/FocuswithJustin/JuniperApparatus/core/hebrew"
	"github.com/FocuswithJustin/JuniperApparatus/core/xml"
)

// VariationType classifies one apparatus.
type VariationType string

const (
	// Vocalic variation disappears entirely under full accent stripping.
	Vocalic VariationType = "vocalic"
	// Orthographic variation disappears under plene reduction.
	Orthographic VariationType = "orthographic"
	// Transposition has the same words in a different order.
	Transposition VariationType = "transposition"
	// Addition has an empty lemma against non-empty variants.
	Addition VariationType = "addition"
	// Omission has a non-empty lemma against empty variants.
	Omission VariationType = "omission"
	// Substitution is the fallback: different words altogether.
	Substitution VariationType = "substitution"
)

// Labeler annotates apparatus elements. The embedded memo caches reduced
// serializations across apparatuses, since the same readings recur often
// in large collations.
type Labeler struct {
	memo *cache.ReductionCache
}

// New returns a Labeler.
func New() *Labeler {
	return &Labeler{memo: cache.NewReductionCache(1 << 20)}
}

// Label returns a copy of the document with every apparatus carrying a
// type and an n attribute. The input document is not modified. Labeling
// is deterministic: relabeling an already labeled document reproduces
// the same values.
func (l *Labeler) Label(doc *xml.Document) (*xml.Document, error) {
	out := doc.Clone()
	if err := l.addTypes(out); err != nil {
		return nil, err
	}
	if err := l.addIndices(out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddTypes returns a copy of the document with every apparatus typed.
func (l *Labeler) AddTypes(doc *xml.Document) (*xml.Document, error) {
	out := doc.Clone()
	if err := l.addTypes(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Labeler) addTypes(doc *xml.Document) error {
	apps, err := doc.XPath("//app")
	if err != nil {
		return err
	}
	for _, app := range apps {
		variationType, err := l.classify(app)
		if err != nil {
			return err
		}
		app.SetAttr("type", string(variationType))
	}
	return nil
}

// classify runs the classification chain on one apparatus. The first
// matching rule wins; every rule compares the lemma reading against all
// variant readings at some normalization strength.
func (l *Labeler) classify(app *xml.Node) (VariationType, error) {
	lem, err := app.QueryFirst(".//lem")
	if err != nil {
		return "", err
	}
	if lem == nil {
		return "", errors.NewStructural("app", "apparatus has no lem reading")
	}
	lemma := serializeReading(lem)
	rdgs, err := app.Query(".//rdg")
	if err != nil {
		return "", err
	}
	variants := make([]string, 0, len(rdgs))
	for _, rdg := range rdgs {
		variants = append(variants, serializeReading(rdg))
	}

	if l.allEqual(lemma, variants, l.normalized) {
		return Vocalic, nil
	}
	if l.allEqual(lemma, variants, l.pleneReduced) {
		return Orthographic, nil
	}
	if l.allEqualMultisets(lemma, variants) {
		return Transposition, nil
	}
	if len(strings.Fields(lemma)) == 0 {
		allAdd := true
		for _, variant := range variants {
			if len(strings.Fields(variant)) == 0 {
				allAdd = false
				break
			}
		}
		if allAdd {
			return Addition, nil
		}
	} else {
		allOmit := true
		for _, variant := range variants {
			if len(strings.Fields(variant)) > 0 {
				allOmit = false
				break
			}
		}
		if allOmit {
			return Omission, nil
		}
	}
	return Substitution, nil
}

// allEqual reports whether every variant equals the lemma under reduce.
func (l *Labeler) allEqual(lemma string, variants []string, reduce func(string) string) bool {
	reduced := reduce(lemma)
	for _, variant := range variants {
		if reduce(variant) != reduced {
			return false
		}
	}
	return true
}

// allEqualMultisets reports whether every variant has the same normalized
// word multiset as the lemma. Repeated words count: "A A B" does not
// match "A B B".
func (l *Labeler) allEqualMultisets(lemma string, variants []string) bool {
	key := multisetKey(l.normalized(lemma))
	for _, variant := range variants {
		if multisetKey(l.normalized(variant)) != key {
			return false
		}
	}
	return true
}

func (l *Labeler) normalized(s string) string {
	return l.memo.Reduce(s, hebrew.StripAll)
}

const pleneKeyPrefix = "plene\x00"

func (l *Labeler) pleneReduced(s string) string {
	return l.memo.Reduce(pleneKeyPrefix+s, func(key string) string {
		return hebrew.StripAll(hebrew.ReducePlene(strings.TrimPrefix(key, pleneKeyPrefix)))
	})
}

// multisetKey returns a canonical order-insensitive key for the words of s.
func multisetKey(s string) string {
	words := strings.Fields(s)
	sort.Strings(words)
	return strings.Join(words, "\x00")
}

// serializeReading flattens one reading to a comparison string: each child
// element contributes its text, or its tag name when it has none, so
// structural elements (breaks, markers) still participate in equality.
func serializeReading(rdg *xml.Node) string {
	var parts []string
	for _, el := range rdg.Children() {
		if text := el.Text(); text != "" {
			parts = append(parts, text)
		} else {
			parts = append(parts, el.Name())
		}
	}
	return strings.Join(parts, " ")
}
