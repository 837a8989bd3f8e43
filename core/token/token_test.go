package token

import (
	"bytes"
	"strings"
	"testing"
)

func TestOmit(t *testing.T) {
	omit := Omit()
	if !omit.IsOmit() {
		t.Error("Omit() should satisfy IsOmit")
	}
	if omit.Normalized != OmitNormalized {
		t.Errorf("Normalized = %q, want %q", omit.Normalized, OmitNormalized)
	}
	real := Token{Formatted: "<w>omit</w>", Normalized: "omit"}
	if real.IsOmit() {
		t.Error("a real token spelling the word omit is not the sentinel")
	}
}

func TestListNormalized(t *testing.T) {
	list := List{
		{Formatted: "<w>דָּוִד</w>", Normalized: "דוד"},
		{Formatted: "<milestone unit='verse'/>", Normalized: "milestone"},
	}
	got := list.Normalized()
	want := []string{"דוד", "milestone"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Normalized()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCollationAdd(t *testing.T) {
	c := &Collation{}
	c.Add("L", List{{Formatted: "a", Normalized: "a"}})
	c.Add("A", List{Omit()})
	ids := c.IDs()
	if len(ids) != 2 || ids[0] != "L" || ids[1] != "A" {
		t.Errorf("IDs = %v, want [L A]", ids)
	}
}

func TestFingerprint(t *testing.T) {
	base := func() *Collation {
		c := &Collation{}
		c.Add("L", List{{Formatted: "<w>x</w>", Normalized: "x"}})
		c.Add("A", List{{Formatted: "<w>y</w>", Normalized: "y"}})
		return c
	}

	a, b := base(), base()
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical collations must fingerprint identically")
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("fingerprint length = %d, want 16 hex chars", len(a.Fingerprint()))
	}

	mutated := base()
	mutated.Witnesses[1].Tokens[0].Normalized = "z"
	if mutated.Fingerprint() == a.Fingerprint() {
		t.Error("token change must change the fingerprint")
	}

	reordered := &Collation{}
	reordered.Add("A", List{{Formatted: "<w>y</w>", Normalized: "y"}})
	reordered.Add("L", List{{Formatted: "<w>x</w>", Normalized: "x"}})
	if reordered.Fingerprint() == a.Fingerprint() {
		t.Error("witness order is significant in the fingerprint")
	}
}

func TestInterchangeRoundTrip(t *testing.T) {
	c := &Collation{}
	c.Add("L", List{
		{Formatted: "<w>בְּרֵאשִׁית</w>", Normalized: "בראשית"},
		Omit(),
	})
	c.Add("L-qere", List{{Formatted: "<w>דויד</w>", Normalized: "דויד"}})

	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "xz"
		}
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, c, compress); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			decoded, err := Read(&buf, compress)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if decoded.Fingerprint() != c.Fingerprint() {
				t.Error("round trip changed the collation content")
			}
		})
	}
}

func TestEncodeUsesShortKeys(t *testing.T) {
	// The engine interchange uses t/n keys; a schema drift here breaks
	// the external aligner.
	c := &Collation{}
	c.Add("L", List{{Formatted: "<w>x</w>", Normalized: "x"}})
	data, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, key := range []string{`"t"`, `"n"`, `"id"`, `"tokens"`, `"witnesses"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("interchange JSON missing key %s: %s", key, data)
		}
	}
}

func TestUnescapeEngineOutput(t *testing.T) {
	escaped := "&lt;app&gt;&lt;rdg wit=&quot;#L&quot;&gt;&lt;w&gt;x&lt;/w&gt;&lt;/rdg&gt;&lt;/app&gt;"
	want := `<app><rdg wit="#L"><w>x</w></rdg></app>`
	if got := UnescapeEngineOutput(escaped); got != want {
		t.Errorf("UnescapeEngineOutput = %q, want %q", got, want)
	}
}

func TestIsCompressedName(t *testing.T) {
	if !IsCompressedName("tokens.json.xz") {
		t.Error("xz suffix should report compressed")
	}
	if IsCompressedName("tokens.json") {
		t.Error("plain json should not report compressed")
	}
}
