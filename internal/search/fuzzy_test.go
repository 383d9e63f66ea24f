package search

import (
	"strings"
	"testing"
)

func TestMinSubstringDistance(t *testing.T) {
	tests := []struct {
		pattern, text string
		want          int
	}{
		{"abc", "xxabcxx", 0},
		{"abd", "xxabcxx", 1},
		{"abc", "xxacxx", 1},
		{"abc", "xxaxbcxx", 1},
		{"hello", "", 5},
		{"zoom", "analyze_zoom_log", 0},
		{"speach", "zoom speech sdk", 1},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.text, func(t *testing.T) {
			got := minSubstringDistance([]rune(tt.pattern), []rune(tt.text))
			if got != tt.want {
				t.Errorf("minSubstringDistance(%q, %q) = %d, want %d", tt.pattern, tt.text, got, tt.want)
			}
		})
	}
}

func TestHasAlphabetRun(t *testing.T) {
	alphabet := newPatternChunk([]rune("abc")).alphabet

	if !hasAlphabetRun([]rune("xxcabxx"), alphabet, 3) {
		t.Error("Expected run of 3 in 'xxcabxx'")
	}
	if hasAlphabetRun([]rune("xaxbxcx"), alphabet, 3) {
		t.Error("Expected no run of 3 in 'xaxbxcx'")
	}
}

func TestFieldNorm(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"single", 1},
		{"a b c d", 0.5},
		{"a b c", 0.577},
		{"a  b", 0.707},
		{"", 1},
	}
	for _, tt := range tests {
		if got := fieldNorm(tt.value); got != tt.want {
			t.Errorf("fieldNorm(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestFuzzyPattern_Match(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		text      string
		wantMatch bool
		wantScore float64
	}{
		{"identical ignores case", "Deploy", "deploy", true, 0},
		{"substring", "zoom", "analyze_zoom_log", true, minScore},
		{"one typo", "speach", "zoom speech sdk", true, 1.0 / 6},
		{"too many errors", "xyz", "abcdef", false, 1},
		{"short run of pattern chars", "ab", "xaby", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, ok := newFuzzyPattern(tt.query).match(tt.text)
			if ok != tt.wantMatch {
				t.Fatalf("match(%q, %q) matched=%v, want %v", tt.query, tt.text, ok, tt.wantMatch)
			}
			if ok && score != tt.wantScore {
				t.Errorf("match(%q, %q) score=%v, want %v", tt.query, tt.text, score, tt.wantScore)
			}
		})
	}
}

func TestFuzzyPattern_LongPatternChunks(t *testing.T) {
	query := strings.Repeat("a", 32) + strings.Repeat("b", 8)
	p := newFuzzyPattern(query)

	if len(p.chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(p.chunks))
	}
	last := string(p.chunks[1].runes)
	if last != strings.Repeat("a", 24)+strings.Repeat("b", 8) {
		t.Errorf("Expected remainder chunk to be the final 32 runes, got %q", last)
	}

	score, ok := p.match("xx" + query + "xx")
	if !ok || score != minScore {
		t.Errorf("Expected long pattern to match its own text, score=%v ok=%v", score, ok)
	}
}
