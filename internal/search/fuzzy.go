package search

import (
	"math"
	"strings"
)

const (
	// fuzzyThreshold is the worst error ratio (edits per pattern rune) still counted as a match.
	fuzzyThreshold = 0.4

	// minMatchCharLength is the shortest run of pattern characters the text must contain.
	minMatchCharLength = 3

	// maxPatternRunes bounds the pattern length scored in one pass; longer
	// patterns are scored in chunks and averaged.
	maxPatternRunes = 32

	// minScore is the best score a non-identical text can receive.
	minScore = 0.001
)

// epsilon stands in for a perfect key score so it still contributes to the product.
var epsilon = math.Nextafter(1, 2) - 1

type patternChunk struct {
	runes    []rune
	alphabet map[rune]struct{}
}

// fuzzyPattern is a lowercased query prepared for approximate substring matching.
type fuzzyPattern struct {
	text   string
	chunks []patternChunk
}

func newFuzzyPattern(query string) *fuzzyPattern {
	lower := strings.ToLower(query)
	runes := []rune(lower)
	p := &fuzzyPattern{text: lower}

	if len(runes) <= maxPatternRunes {
		p.chunks = append(p.chunks, newPatternChunk(runes))
		return p
	}

	remainder := len(runes) % maxPatternRunes
	end := len(runes) - remainder
	for i := 0; i < end; i += maxPatternRunes {
		p.chunks = append(p.chunks, newPatternChunk(runes[i:i+maxPatternRunes]))
	}
	if remainder > 0 {
		p.chunks = append(p.chunks, newPatternChunk(runes[len(runes)-maxPatternRunes:]))
	}
	return p
}

func newPatternChunk(runes []rune) patternChunk {
	alphabet := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		alphabet[r] = struct{}{}
	}
	return patternChunk{runes: runes, alphabet: alphabet}
}

// match scores text against the pattern: 0 is identical, 1 is no match.
func (p *fuzzyPattern) match(text string) (float64, bool) {
	lower := strings.ToLower(text)
	if lower == p.text {
		return 0, true
	}
	if len(p.chunks) == 0 {
		return 1, false
	}

	runes := []rune(lower)
	total := 0.0
	matched := false
	for _, chunk := range p.chunks {
		score, ok := chunk.match(runes)
		if ok {
			matched = true
		}
		total += score
	}
	if !matched {
		return 1, false
	}
	return total / float64(len(p.chunks)), true
}

func (c patternChunk) match(text []rune) (float64, bool) {
	if len(c.runes) == 0 {
		return 1, false
	}
	errs := minSubstringDistance(c.runes, text)
	score := float64(errs) / float64(len(c.runes))
	if score > fuzzyThreshold {
		return 1, false
	}
	score = math.Max(minScore, score)
	if !hasAlphabetRun(text, c.alphabet, minMatchCharLength) {
		return score, false
	}
	return score, true
}

// minSubstringDistance returns the smallest edit distance between pattern
// and any substring of text.
func minSubstringDistance(pattern, text []rune) int {
	m := len(pattern)
	col := make([]int, m+1)
	for i := range col {
		col[i] = i
	}
	best := col[m]

	for _, tc := range text {
		diag := col[0]
		col[0] = 0
		for i := 1; i <= m; i++ {
			left := col[i]
			cost := 1
			if pattern[i-1] == tc {
				cost = 0
			}
			v := diag + cost
			if col[i-1]+1 < v {
				v = col[i-1] + 1
			}
			if left+1 < v {
				v = left + 1
			}
			col[i] = v
			diag = left
		}
		if col[m] < best {
			best = col[m]
		}
	}
	return best
}

// hasAlphabetRun reports whether text has n consecutive runes that all occur in alphabet.
func hasAlphabetRun(text []rune, alphabet map[rune]struct{}, n int) bool {
	run := 0
	for _, r := range text {
		if _, ok := alphabet[r]; ok {
			run++
			if run >= n {
				return true
			}
			continue
		}
		run = 0
	}
	return false
}

// fieldNorm dampens matches in long fields: 1/sqrt(token count), rounded to 3 places.
func fieldNorm(value string) float64 {
	tokens := len(strings.FieldsFunc(value, func(r rune) bool { return r == ' ' }))
	if tokens == 0 {
		return 1
	}
	return math.Round(1000/math.Sqrt(float64(tokens))) / 1000
}
