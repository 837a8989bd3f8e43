package labeler

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Citation is a parsed citation label. Start holds one component per
// active division level; End is non-empty for ranges and holds the
// components from the first differing level down.
type Citation struct {
	Start []Component `json:"start"`
	End   []Component `json:"end,omitempty"`
}

// Component is one level of a citation: a division level name and its
// index at that level.
type Component struct {
	Level string `json:"level"`
	Index string `json:"index,omitempty"`
}

// levelsByAbbreviation inverts divAbbreviations for parsing. Incipit and
// explicit are their own abbreviations, so they map to themselves.
var levelsByAbbreviation = func() map[string]string {
	out := make(map[string]string, len(divAbbreviations))
	for level, abbrev := range divAbbreviations {
		out[abbrev] = level
	}
	return out
}()

// citeGrammar is the participle grammar for citation labels.
// Examples: "B04", "B04K21V2U6", "B04K21V2U6-U8", "B04incipitU3",
// "B04K21V2U6-K22V1U2"
//
//nolint:govet // participle grammar tags are not standard struct tags
type citeGrammar struct {
	Start []citePart `parser:"@@+"`
	End   []citePart `parser:"( '-' @@+ )?"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type citePart struct {
	Abbrev string `parser:"@(Paratext | Level)"`
	Index  string `parser:"@Index?"`
}

// citeLexer defines the lexer for citation labels.
// Note: Paratext must precede Level so "explicit" is not read as a lone
// level letter followed by garbage.
var citeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Paratext", Pattern: `incipit|explicit`},
	{Name: "Level", Pattern: `[BKVU]`},
	{Name: "Index", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `-`},
})

// citeParser is the participle parser for citation labels.
var citeParser = participle.MustBuild[citeGrammar](
	participle.Lexer(citeLexer),
)

// ParseCitation parses a citation label of the form produced by the
// labeling pass: one abbreviation+index pair per division level, with an
// optional range suffix after a dash.
func ParseCitation(s string) (*Citation, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty citation label")
	}

	parsed, err := citeParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("invalid citation label %q: %w", s, err)
	}

	cite := &Citation{}
	for _, part := range parsed.Start {
		cite.Start = append(cite.Start, Component{
			Level: levelsByAbbreviation[part.Abbrev],
			Index: part.Index,
		})
	}
	for _, part := range parsed.End {
		cite.End = append(cite.End, Component{
			Level: levelsByAbbreviation[part.Abbrev],
			Index: part.Index,
		})
	}
	return cite, nil
}

// String renders the citation back to label form.
func (c *Citation) String() string {
	var sb strings.Builder
	for _, component := range c.Start {
		sb.WriteString(divAbbreviations[component.Level])
		sb.WriteString(component.Index)
	}
	if len(c.End) > 0 {
		sb.WriteString("-")
		for _, component := range c.End {
			sb.WriteString(divAbbreviations[component.Level])
			sb.WriteString(component.Index)
		}
	}
	return sb.String()
}

// IsRange reports whether the citation spans more than one position.
func (c *Citation) IsRange() bool {
	return len(c.End) > 0
}

// Level returns the index recorded for a division level in the start
// citation, or the empty string when the level is absent.
func (c *Citation) Level(level string) string {
	for _, component := range c.Start {
		if component.Level == level {
			return component.Index
		}
	}
	return ""
}
