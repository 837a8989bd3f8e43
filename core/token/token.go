// Package token defines the canonical unit of text exchanged with the
// external alignment engine: a pair of formatted and normalized
// representations per word, punctuation mark, or structural break.
package token

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Token is one alignable unit of witness text. Formatted keeps whatever
// diacritics the configuration retained; Normalized is always fully
// stripped, and is what the alignment engine matches on.
type Token struct {
	Formatted  string `json:"t"`
	Normalized string `json:"n"`
}

// OmitNormalized is the normalized form of the sentinel token emitted for
// a unit that a witness is extant for but omits. A tokenized unit is never
// empty: it either has real tokens or exactly one omit token, so the
// engine can align the omission against the other witnesses' text.
const OmitNormalized = "omit"

// Omit returns the sentinel token for an omitted unit.
func Omit() Token {
	return Token{Formatted: "", Normalized: OmitNormalized}
}

// IsOmit reports whether the token is the omission sentinel.
func (t Token) IsOmit() bool {
	return t.Formatted == "" && t.Normalized == OmitNormalized
}

// List is an ordered sequence of tokens for one unit of one witness.
type List []Token

// Normalized returns the normalized forms in order.
func (l List) Normalized() []string {
	out := make([]string, len(l))
	for i, t := range l {
		out[i] = t.Normalized
	}
	return out
}

// WitnessTokens pairs a witness siglum with its token list for one unit.
type WitnessTokens struct {
	ID     string `json:"id"`
	Tokens List   `json:"tokens"`
}

// Collation is the input handed to the alignment engine: every extant
// witness's token list for one unit, in witness order.
type Collation struct {
	Witnesses []WitnessTokens `json:"witnesses"`
}

// Add appends one witness's tokens to the collation.
func (c *Collation) Add(id string, tokens List) {
	c.Witnesses = append(c.Witnesses, WitnessTokens{ID: id, Tokens: tokens})
}

// IDs returns the witness sigla in order.
func (c *Collation) IDs() []string {
	ids := make([]string, len(c.Witnesses))
	for i, w := range c.Witnesses {
		ids[i] = w.ID
	}
	return ids
}

// Fingerprint returns a short BLAKE3 digest of the collation's token
// content, stable across runs, for logging and cache keys.
func (c *Collation) Fingerprint() string {
	h := blake3.New()
	for _, w := range c.Witnesses {
		h.Write([]byte(w.ID))
		h.Write([]byte{0})
		for _, t := range w.Tokens {
			h.Write([]byte(t.Formatted))
			h.Write([]byte{1})
			h.Write([]byte(t.Normalized))
			h.Write([]byte{2})
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
