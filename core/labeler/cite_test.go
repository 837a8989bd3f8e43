package labeler

import "testing"

func TestParseCitation(t *testing.T) {
	tests := []struct {
		label  string
		levels []Component
		end    []Component
	}{
		{"B04", []Component{{"book", "04"}}, nil},
		{
			"B04K21V2U6",
			[]Component{{"book", "04"}, {"chapter", "21"}, {"verse", "2"}, {"w", "6"}},
			nil,
		},
		{
			"B04K21V2U6-U8",
			[]Component{{"book", "04"}, {"chapter", "21"}, {"verse", "2"}, {"w", "6"}},
			[]Component{{"w", "8"}},
		},
		{
			"B04K21V2U6-K22V1U2",
			[]Component{{"book", "04"}, {"chapter", "21"}, {"verse", "2"}, {"w", "6"}},
			[]Component{{"chapter", "22"}, {"verse", "1"}, {"w", "2"}},
		},
		{
			"B04incipitU3",
			[]Component{{"book", "04"}, {"incipit", ""}, {"w", "3"}},
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			cite, err := ParseCitation(tt.label)
			if err != nil {
				t.Fatalf("ParseCitation failed: %v", err)
			}
			if len(cite.Start) != len(tt.levels) {
				t.Fatalf("got %d start components, want %d", len(cite.Start), len(tt.levels))
			}
			for i, want := range tt.levels {
				if cite.Start[i] != want {
					t.Errorf("start[%d] = %+v, want %+v", i, cite.Start[i], want)
				}
			}
			if len(cite.End) != len(tt.end) {
				t.Fatalf("got %d end components, want %d", len(cite.End), len(tt.end))
			}
			for i, want := range tt.end {
				if cite.End[i] != want {
					t.Errorf("end[%d] = %+v, want %+v", i, cite.End[i], want)
				}
			}
			if cite.IsRange() != (len(tt.end) > 0) {
				t.Errorf("IsRange = %v", cite.IsRange())
			}
			if got := cite.String(); got != tt.label {
				t.Errorf("String = %q, want %q", got, tt.label)
			}
		})
	}
}

func TestParseCitationRejectsInvalid(t *testing.T) {
	for _, label := range []string{"", "  ", "X99", "B04-", "04B"} {
		t.Run("invalid "+label, func(t *testing.T) {
			if _, err := ParseCitation(label); err == nil {
				t.Errorf("ParseCitation(%q) should fail", label)
			}
		})
	}
}

func TestCitationLevel(t *testing.T) {
	cite, err := ParseCitation("B04K21V2U6")
	if err != nil {
		t.Fatalf("ParseCitation failed: %v", err)
	}
	if got := cite.Level("chapter"); got != "21" {
		t.Errorf(`Level("chapter") = %q, want 21`, got)
	}
	if got := cite.Level("incipit"); got != "" {
		t.Errorf(`absent level should be empty, got %q`, got)
	}
}
