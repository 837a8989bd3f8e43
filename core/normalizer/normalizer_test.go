package normalizer

import (
	"strings"
	"testing"

	"github.com/FocuswithJustin/JuniperApparatus/core/errors"
	"github.com/FocuswithJustin/JuniperApparatus/core/hebrew"
	"github.com/FocuswithJustin/JuniperApparatus/core/xml"
)

func mustParse(t *testing.T, s string) *xml.Document {
	t.Helper()
	doc, err := xml.ParseString(s)
	if err != nil {
		t.Fatalf("parsing test document: %v", err)
	}
	return doc
}

func mustNormalizer(t *testing.T, cfg Config) *Normalizer {
	t.Helper()
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return n
}

func TestConfigRejectsStructuralTags(t *testing.T) {
	for _, tag := range []string{"TEI", "text", "body"} {
		t.Run(tag, func(t *testing.T) {
			_, err := New(Config{IgnoredTags: []string{"note", tag}})
			if err == nil {
				t.Fatalf("ignoring %q should be rejected", tag)
			}
			if !errors.Is(err, errors.ErrConfig) {
				t.Errorf("error should be a configuration conflict, got %v", err)
			}
		})
	}
}

func TestFormatText(t *testing.T) {
	n := mustNormalizer(t, Config{IgnoredAccents: hebrew.AllAccentClasses})
	if got := n.FormatText("מֶלֶךְ"); got != "מלך" {
		t.Errorf("FormatText = %q, want %q", got, "מלך")
	}
}

func TestDocumentFlattensDivisions(t *testing.T) {
	doc := mustParse(t, `<TEI><text><body><div type="chapter" n="1"><ab n="2"><w>a</w></ab></div></body></text></TEI>`)
	n := mustNormalizer(t, Config{})

	out, err := n.Document(doc)
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}

	body, err := out.XPathFirst("//body")
	if err != nil || body == nil {
		t.Fatalf("no body in output: %v", err)
	}
	children := body.Children()
	if len(children) != 3 {
		t.Fatalf("body has %d element children, want 3 (chapter marker, verse marker, word)", len(children))
	}
	if children[0].Name() != "divGen" || children[0].Attr("type") != "chapter" {
		t.Errorf("first child should be the chapter marker, got %s[%s]", children[0].Name(), children[0].Attr("type"))
	}
	if children[1].Name() != "divGen" || children[1].Attr("type") != "verse" || children[1].Attr("n") != "2" {
		t.Errorf("second child should be the verse marker, got %s[%s]", children[1].Name(), children[1].Attr("type"))
	}
	if children[2].Name() != "w" || children[2].Text() != "a" {
		t.Errorf("word did not survive flattening")
	}

	// The input tree is untouched.
	if orig, _ := doc.XPathFirst("//div"); orig == nil {
		t.Error("input document was mutated")
	}
}

func TestDocumentDropsIgnoredTagKeepsTail(t *testing.T) {
	doc := mustParse(t, `<TEI><text><body><w>a</w><note>gone</note> tail<w>b</w></body></text></TEI>`)
	n := mustNormalizer(t, Config{IgnoredTags: []string{"note"}})

	out, err := n.Document(doc)
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	if note, _ := out.XPathFirst("//note"); note != nil {
		t.Error("ignored tag survived")
	}
	body, _ := out.XPathFirst("//body")
	var sawTail bool
	for _, node := range body.Nodes() {
		if node.IsText() && strings.Contains(node.Text(), "tail") {
			sawTail = true
		}
	}
	if !sawTail {
		t.Error("text following a dropped element must be kept")
	}
}

func TestDocumentDropsIgnoredPunctuation(t *testing.T) {
	doc := mustParse(t, `<TEI><text><body><w>a</w><pc>׃</pc><pc>,</pc></body></text></TEI>`)
	n := mustNormalizer(t, Config{IgnoredPunctuation: []string{"׃"}})

	out, err := n.Document(doc)
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	pcs, err := out.XPath("//pc")
	if err != nil {
		t.Fatal(err)
	}
	if len(pcs) != 1 || pcs[0].Text() != "," {
		t.Errorf("only the configured punctuation should be dropped, got %d pc nodes", len(pcs))
	}
}

func TestDocumentCollapsesPreferredReading(t *testing.T) {
	source := `<TEI><text><body><app><rdg type="ketiv"><w>k</w></rdg><rdg type="qere"><w>q</w></rdg></app></body></text></TEI>`

	t.Run("preferred type collapses", func(t *testing.T) {
		n := mustNormalizer(t, Config{PreferredReadingType: "qere"})
		out, err := n.Document(mustParse(t, source))
		if err != nil {
			t.Fatalf("Document failed: %v", err)
		}
		if app, _ := out.XPathFirst("//app"); app != nil {
			t.Error("apparatus should be collapsed")
		}
		words, _ := out.XPath("//w")
		if len(words) != 1 || words[0].Text() != "q" {
			t.Errorf("expected only the qere word, got %d words", len(words))
		}
	})

	t.Run("no preference keeps apparatus", func(t *testing.T) {
		n := mustNormalizer(t, Config{})
		out, err := n.Document(mustParse(t, source))
		if err != nil {
			t.Fatalf("Document failed: %v", err)
		}
		if app, _ := out.XPathFirst("//app"); app == nil {
			t.Error("apparatus should be kept when no reading type is preferred")
		}
	})

	t.Run("missing preferred type is structural", func(t *testing.T) {
		n := mustNormalizer(t, Config{PreferredReadingType: "sebirin"})
		_, err := n.Document(mustParse(t, source))
		if !errors.Is(err, errors.ErrStructure) {
			t.Errorf("want structural violation, got %v", err)
		}
	})
}

func TestDocumentStripsConfiguredAccents(t *testing.T) {
	doc := mustParse(t, `<TEI><text><body><w>מֶלֶ֑ךְ</w></body></text></TEI>`)
	n := mustNormalizer(t, Config{IgnoredAccents: []hebrew.AccentClass{hebrew.Cantillation}})

	out, err := n.Document(doc)
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	w, _ := out.XPathFirst("//w")
	if w == nil {
		t.Fatal("word lost")
	}
	if strings.ContainsRune(w.Text(), 0x0591) {
		t.Error("cantillation mark survived stripping")
	}
	if !strings.ContainsRune(w.Text(), 0x05B6) {
		t.Error("vowel points should be kept when only cantillation is ignored")
	}
}

func TestDocumentNoRoot(t *testing.T) {
	doc := xml.NewDocument(nil)
	n := mustNormalizer(t, Config{})
	if _, err := n.Document(doc); !errors.Is(err, errors.ErrStructure) {
		t.Errorf("empty document should be a structural violation, got %v", err)
	}
}
