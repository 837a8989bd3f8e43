// Package hebrew implements script-level normalization of pointed Hebrew
// text: conditional stripping of accentuation classes and reduction of
// plene (male) spellings to their defective vocalized equivalents.
package hebrew

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// AccentClass identifies one class of combining marks that normalization
// may strip.
type AccentClass string

const (
	// Cantillation covers the te'amim. Meteg is described as a point in
	// its Unicode name but functions as an accent, so it lives here.
	Cantillation AccentClass = "cantillation"
	// Pointing covers the niqqud (vowel points, dagesh, shin/sin dots).
	Pointing AccentClass = "pointing"
	// Extraordinaire covers the puncta extraordinaria.
	Extraordinaire AccentClass = "extraordinaire"
)

// accentPatterns maps each accent class to the combining marks it strips.
// TODO: decide whether zero-width joiners (U+200C, U+200D) belong to the
// pointing class instead of cantillation.
var accentPatterns = map[AccentClass]*regexp.Regexp{
	Cantillation:   regexp.MustCompile(`[\x{0591}-\x{05AF}\x{05BD}\x{200C}-\x{200D}]`),
	Pointing:       regexp.MustCompile(`[\x{05B0}-\x{05BC}\x{05BF}\x{05C1}-\x{05C2}\x{05C7}]`),
	Extraordinaire: regexp.MustCompile(`[\x{05C4}-\x{05C5}]`),
}

// AllAccentClasses lists every class in stripping order.
var AllAccentClasses = []AccentClass{Cantillation, Pointing, Extraordinaire}

// ParseAccentClass converts a configuration string to an AccentClass.
func ParseAccentClass(s string) (AccentClass, error) {
	switch AccentClass(s) {
	case Cantillation, Pointing, Extraordinaire:
		return AccentClass(s), nil
	}
	return "", fmt.Errorf("unknown accent class %q", s)
}

// Strip removes the given accent classes from s. The string is decomposed
// to NFKD so precomposed letter+mark characters split apart, the selected
// marks are removed, and the result is recomposed to NFC.
func Strip(s string, classes []AccentClass) string {
	s = norm.NFKD.String(s)
	for _, class := range classes {
		if pattern, ok := accentPatterns[class]; ok {
			s = pattern.ReplaceAllString(s, "")
		}
	}
	return norm.NFC.String(s)
}

// StripAll removes every accent class from s.
func StripAll(s string) string {
	return Strip(s, AllAccentClasses)
}

var (
	letterPattern = regexp.MustCompile(`[\x{05D0}-\x{05EA}]`)
	vowelPattern  = accentPatterns[Pointing]
)

// matres are the consonant letters that can stand for a vowel in plene
// spelling: alef, vav, yod.
var matres = map[rune]bool{
	'א': true,
	'ו': true,
	'י': true,
}

// pleneDigraphs maps a mater letter carrying a vowel point to the point
// that replaces it on the preceding letter when the digraph is reduced.
var pleneDigraphs = map[string]rune{
	"וֹ": 'ֹ', // vav + holam (holam male) -> holam
	"וּ": 'ֻ', // vav + dagesh (shureq) -> qubuts
}

// frontVowels are the points after which a following bare yod is a mater:
// hiriq, tsere, segol.
var frontVowels = []rune{'ִ', 'ֵ', 'ֶ'}

const (
	alef  = "א"
	vav   = "ו"
	yod   = "י"
	sheva = 'ְ'
	holam = 'ֹ'
)

// ReducePlene rewrites plene (male) spellings in s to their defective
// vocalized equivalents. The text is decomposed, grouped into cells of one
// letter plus its vowel points, rewritten cell by cell, and recomposed.
// The first and last letters of a word are never reduced. In pointed words
// the reduction follows the digraph table; in words that carry no pointing
// at all, every interior mater letter is dropped, since without points the
// consonant letter is the only vowel indication plene spelling adds.
func ReducePlene(s string) string {
	cells := splitCells(norm.NFKD.String(s))
	for _, word := range wordsOf(cells) {
		reduceWord(cells, word)
	}
	return norm.NFC.String(strings.Join(cells, ""))
}

// splitCells groups a decomposed string into cells: each cell is a letter
// with its trailing vowel points, or a single space. Characters that are
// neither letters, points, nor spaces are dropped; they play no role in
// vowel orthography.
func splitCells(s string) []string {
	var cells []string
	current := ""
	for _, r := range s {
		c := string(r)
		if c != " " && !letterPattern.MatchString(c) && !vowelPattern.MatchString(c) {
			continue
		}
		if c == " " || letterPattern.MatchString(c) {
			if current != "" {
				cells = append(cells, current)
			}
			current = ""
		}
		current += c
	}
	if current != "" {
		cells = append(cells, current)
	}
	return cells
}

// wordsOf returns the [start, end) cell ranges of each space-delimited word.
func wordsOf(cells []string) [][2]int {
	var words [][2]int
	start := -1
	for i, cell := range cells {
		if cell == " " {
			if start >= 0 {
				words = append(words, [2]int{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, [2]int{start, len(cells)})
	}
	return words
}

// reduceWord rewrites the cells of one word in place.
func reduceWord(cells []string, word [2]int) {
	start, end := word[0], word[1]
	if end-start < 3 {
		// Too short to have an interior letter.
		return
	}
	pointed := false
	for i := start; i < end; i++ {
		if vowelPattern.MatchString(cells[i]) {
			pointed = true
			break
		}
	}
	// prev tracks the original content of the preceding cell: a reduced
	// cell must not hide what the source spelling actually was.
	prev := cells[start]
	for i := start + 1; i < end-1; i++ {
		current := cells[i]
		switch {
		case !pointed:
			if matres[firstRune(current)] && len(current) == len(string(firstRune(current))) {
				cells[i] = ""
			}
		case current == alef:
			cells[i] = ""
		case current == vav && prev == alef && i > start+1:
			// An alef-vav digraph spells a holam: drop both letters and
			// vocalize the letter before the digraph.
			cells[i] = ""
			cells[i-1] = ""
			if !strings.ContainsRune(cells[i-2], holam) {
				cells[i-2] += string(holam)
			}
		case pleneDigraphs[current] != 0:
			cells[i] = ""
			point := pleneDigraphs[current]
			if !strings.ContainsRune(cells[i-1], point) {
				cells[i-1] += string(point)
			}
		case (current == yod || current == yod+string(sheva)) && hasFrontVowel(prev):
			cells[i] = ""
		}
		prev = current
	}
}

func hasFrontVowel(cell string) bool {
	for _, v := range frontVowels {
		if strings.ContainsRune(cell, v) {
			return true
		}
	}
	return false
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
