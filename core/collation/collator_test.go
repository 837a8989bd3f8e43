package collation

import (
	"context"
	"strings"
	"testing"

	"github.com/FocuswithJustin/JuniperApparatus/core/errors"
	"github.com/FocuswithJustin/JuniperApparatus/core/token"
	"github.com/FocuswithJustin/JuniperApparatus/core/xml"
)

// witnessDoc builds a minimal transcription for one witness with a single
// verse division.
func witnessDoc(siglum, body string) string {
	return `<TEI><teiHeader><fileDesc><titleStmt>` +
		`<title>Collation</title><title n="` + siglum + `"/>` +
		`</titleStmt><sourceDesc/></fileDesc></teiHeader>` +
		`<text><body>` + body + `</body></text></TEI>`
}

func TestWitnessName(t *testing.T) {
	t.Run("from n attribute", func(t *testing.T) {
		doc := mustParse(t, witnessDoc("L", ""))
		name, err := witnessName(doc)
		if err != nil {
			t.Fatalf("witnessName failed: %v", err)
		}
		if name != "L" {
			t.Errorf("name = %q, want L", name)
		}
	})

	t.Run("from title text", func(t *testing.T) {
		doc := mustParse(t, `<TEI><teiHeader><titleStmt><title>Collation</title><title> Aleppo </title></titleStmt></teiHeader><text><body/></text></TEI>`)
		name, err := witnessName(doc)
		if err != nil {
			t.Fatalf("witnessName failed: %v", err)
		}
		if name != "Aleppo" {
			t.Errorf("name = %q, want Aleppo", name)
		}
	})

	t.Run("missing second title", func(t *testing.T) {
		doc := mustParse(t, `<TEI><teiHeader><titleStmt><title>Collation</title></titleStmt></teiHeader><text><body/></text></TEI>`)
		if _, err := witnessName(doc); !errors.Is(err, errors.ErrStructure) {
			t.Errorf("want structural violation, got %v", err)
		}
	})
}

func TestReadingTypes(t *testing.T) {
	doc := mustParse(t, witnessDoc("L",
		`<app><rdg type="ketiv"><w>k</w></rdg><rdg type="qere"><w>q</w></rdg></app>`+
			`<app><rdg type="qere"><w>q2</w></rdg><rdg><w>untyped</w></rdg></app>`))
	types, err := readingTypes(doc)
	if err != nil {
		t.Fatalf("readingTypes failed: %v", err)
	}
	if len(types) != 2 || types[0] != "ketiv" || types[1] != "qere" {
		t.Errorf("types = %v, want [ketiv qere]", types)
	}

	plain := mustParse(t, witnessDoc("L", `<w>a</w>`))
	types, err = readingTypes(plain)
	if err != nil || len(types) != 0 {
		t.Errorf("single-tradition witness should have no reading types, got %v", types)
	}
}

func TestReadWitnessTokens(t *testing.T) {
	c := NewCollator(Config{})
	doc := mustParse(t, witnessDoc("L",
		`<milestone unit="verse" n="V1"/><w>דָּוִד</w><milestone unit="verse" n="V2"/><w>b</w>`))
	if err := c.ReadWitness(doc); err != nil {
		t.Fatalf("ReadWitness failed: %v", err)
	}

	if c.Lemma() != "L" {
		t.Errorf("lemma = %q, want L", c.Lemma())
	}
	divisions, err := c.Divisions()
	if err != nil {
		t.Fatalf("Divisions failed: %v", err)
	}
	if len(divisions) != 2 || divisions[0] != "V1" || divisions[1] != "V2" {
		t.Errorf("divisions = %v, want [V1 V2]", divisions)
	}

	v1 := c.Division("V1")
	if len(v1.Witnesses) != 1 || v1.Witnesses[0].ID != "L" {
		t.Fatalf("division V1 has wrong witnesses: %v", v1.IDs())
	}
	tokens := v1.Witnesses[0].Tokens
	if len(tokens) != 2 {
		t.Fatalf("division V1 has %d tokens, want 2 (milestone + word)", len(tokens))
	}
	if tokens[0].Normalized != "milestone" {
		t.Errorf("structural token normalized = %q, want the tag name", tokens[0].Normalized)
	}
	if !strings.HasPrefix(tokens[0].Formatted, "<milestone") {
		t.Errorf("structural token formatted = %q", tokens[0].Formatted)
	}
	if tokens[1].Normalized != "דוד" {
		t.Errorf("word token normalized = %q, want fully stripped form", tokens[1].Normalized)
	}
	if !strings.Contains(tokens[1].Formatted, "<w>") {
		t.Errorf("word token formatted should be serialized markup, got %q", tokens[1].Formatted)
	}
}

func TestReadWitnessDualTradition(t *testing.T) {
	c := NewCollator(Config{})
	doc := mustParse(t, witnessDoc("L",
		`<milestone unit="verse" n="V1"/>`+
			`<app><rdg type="ketiv"><w>כתיב</w></rdg><rdg type="qere"><w>קרי</w></rdg></app>`))
	if err := c.ReadWitness(doc); err != nil {
		t.Fatalf("ReadWitness failed: %v", err)
	}

	witnesses := c.Witnesses()
	if len(witnesses) != 2 || witnesses[0] != "L-ketiv" || witnesses[1] != "L-qere" {
		t.Fatalf("witnesses = %v, want [L-ketiv L-qere]", witnesses)
	}
	if got := c.SecondaryWitnesses("L"); len(got) != 2 {
		t.Errorf("SecondaryWitnesses = %v", got)
	}

	v1 := c.Division("V1")
	if len(v1.Witnesses) != 2 {
		t.Fatalf("both traditions should be extant at V1, got %v", v1.IDs())
	}
	ketiv := v1.Witnesses[0].Tokens
	qere := v1.Witnesses[1].Tokens
	if ketiv[len(ketiv)-1].Normalized == qere[len(qere)-1].Normalized {
		t.Error("the two traditions should carry their own readings")
	}
}

func TestReadAllPreservesInputOrder(t *testing.T) {
	c := NewCollator(Config{})
	docs := []*xml.Document{
		mustParse(t, witnessDoc("L", `<milestone unit="verse" n="V1"/><w>a</w>`)),
		mustParse(t, witnessDoc("A", `<milestone unit="verse" n="V1"/><w>b</w>`)),
		mustParse(t, witnessDoc("B", `<milestone unit="verse" n="V1"/><w>c</w>`)),
	}
	if err := c.ReadAll(context.Background(), docs); err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	witnesses := c.Witnesses()
	if len(witnesses) != 3 || witnesses[0] != "L" || witnesses[1] != "A" || witnesses[2] != "B" {
		t.Errorf("witnesses = %v, want [L A B]", witnesses)
	}
	if c.Lemma() != "L" {
		t.Errorf("lemma = %q, want the first input witness", c.Lemma())
	}
}

// stubEngine returns a fixed fragment and records what it was given.
type stubEngine struct {
	fragment string
	seen     []*token.Collation
}

func (e *stubEngine) Align(ctx context.Context, c *token.Collation) (string, error) {
	e.seen = append(e.seen, c)
	return e.fragment, nil
}

func TestCollateCompletesCoverage(t *testing.T) {
	c := NewCollator(Config{})
	docs := []*xml.Document{
		mustParse(t, witnessDoc("L", `<milestone unit="verse" n="V1"/><w>a</w>`)),
		mustParse(t, witnessDoc("A", `<milestone unit="verse" n="V1"/><w>a</w>`)),
	}
	if err := c.ReadAll(context.Background(), docs); err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	// The engine's output covers only the lemma witness; witness A is
	// extant at V1 but unmentioned.
	engine := &stubEngine{fragment: `<result>` +
		`<milestone unit="verse" n="V1"/>` +
		`<app><rdg wit="#L"><w>a</w></rdg></app>` +
		`</result>`}
	out, err := c.Collate(context.Background(), engine)
	if err != nil {
		t.Fatalf("Collate failed: %v", err)
	}

	if len(engine.seen) != 1 || len(engine.seen[0].Witnesses) != 2 {
		t.Fatalf("engine should see one division with both witnesses")
	}

	app, err := out.XPathFirst("//app")
	if err != nil || app == nil {
		t.Fatal("collated document lost its apparatus")
	}
	rdgs, _ := app.Query(".//rdg")
	if len(rdgs) != 2 {
		t.Fatalf("coverage completion should add a reading, got %d", len(rdgs))
	}
	added := rdgs[1]
	if added.Attr("wit") != "#A" {
		t.Errorf("added reading wit = %q, want #A", added.Attr("wit"))
	}
	if len(added.Nodes()) != 0 {
		t.Error("added reading must be empty (an omission)")
	}
}

func TestCollateCoverageForLemmaGoesFirst(t *testing.T) {
	c := NewCollator(Config{})
	docs := []*xml.Document{
		mustParse(t, witnessDoc("L", `<milestone unit="verse" n="V1"/><w>a</w>`)),
		mustParse(t, witnessDoc("A", `<milestone unit="verse" n="V1"/><w>a</w>`)),
	}
	if err := c.ReadAll(context.Background(), docs); err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	engine := &stubEngine{fragment: `<result>` +
		`<milestone unit="verse" n="V1"/>` +
		`<app><rdg wit="#A"><w>a</w></rdg></app>` +
		`</result>`}
	out, err := c.Collate(context.Background(), engine)
	if err != nil {
		t.Fatalf("Collate failed: %v", err)
	}
	app, _ := out.XPathFirst("//app")
	rdgs, _ := app.Query(".//rdg")
	if len(rdgs) != 2 {
		t.Fatalf("got %d readings, want 2", len(rdgs))
	}
	if rdgs[0].Attr("wit") != "#L" {
		t.Errorf("lemma omission must be the first reading, got %q first", rdgs[0].Attr("wit"))
	}
}

func TestCollateUnescapesEngineOutput(t *testing.T) {
	c := NewCollator(Config{})
	doc := mustParse(t, witnessDoc("L", `<milestone unit="verse" n="V1"/><w>a</w>`))
	if err := c.ReadWitness(doc); err != nil {
		t.Fatalf("ReadWitness failed: %v", err)
	}

	engine := &stubEngine{fragment: `<result>` +
		`<milestone unit="verse" n="V1"/>` +
		`<app><rdg wit="#L">&lt;w&gt;a&lt;/w&gt;</rdg></app>` +
		`</result>`}
	out, err := c.Collate(context.Background(), engine)
	if err != nil {
		t.Fatalf("Collate failed: %v", err)
	}
	w, err := out.XPathFirst("//rdg/w")
	if err != nil || w == nil {
		t.Fatal("escaped markup in engine output was not restored to elements")
	}
}

func TestAugmentLemma(t *testing.T) {
	c := NewCollator(Config{})
	docs := []*xml.Document{
		mustParse(t, witnessDoc("L", `<milestone unit="verse" n="V1"/><w>a</w>`)),
		mustParse(t, witnessDoc("A", `<milestone unit="verse" n="V1"/>`)),
	}
	if err := c.ReadAll(context.Background(), docs); err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	collated := mustParse(t, `<TEI>`+
		`<milestone unit="verse" n="V1"/>`+
		`<app><rdg wit="#L"><w>a</w></rdg><rdg wit="#A"/></app>`+
		`</TEI>`)
	out, err := c.AugmentLemma(collated)
	if err != nil {
		t.Fatalf("AugmentLemma failed: %v", err)
	}

	// The witness list is recorded in the header.
	entries, _ := out.XPath("//sourceDesc/listWit/witness")
	if len(entries) != 2 || entries[0].Attr("id") != "L" || entries[1].Attr("id") != "A" {
		t.Errorf("listWit entries wrong: %d", len(entries))
	}

	// The apparatus lands in the body with a filled lem reading.
	app, err := out.XPathFirst("//body/app")
	if err != nil || app == nil {
		t.Fatal("apparatus was not merged into the lemma body")
	}
	lem, _ := app.QueryFirst(".//lem")
	if lem == nil || strings.TrimSpace(lem.Text()) != "a" {
		t.Error("lem reading should absorb the lemma's own segment content")
	}

	// No seg wrappers survive desegmentation.
	if seg, _ := out.XPathFirst("//seg"); seg != nil {
		t.Error("segmentation must be undone after merging")
	}
}
