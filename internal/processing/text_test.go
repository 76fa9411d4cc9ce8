package processing

import (
	"slices"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>Hello <b>world</b> &amp; more</p>", "Hello world & more"},
		{"see https://example.com/x now", "see now"},
		{"color ff00aa theme", "color theme"},
		{"ai is a ml thing", "ai ml thing"},
		{"  many   spaces  ", "many spaces"},
		{"Příručka k analytice", "Příručka analytice"},
		{"naïve café 1a2b3c", "naïve café"},
		{"snake_case ab", "snake_case"},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenize_DropsStopWords(t *testing.T) {
	got := tokenize("The Reddit link about Marketing and AI")
	want := []string{"marketing", "ai"}
	if !slices.Equal(got, want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
}

func TestTokenize_UnicodeWords(t *testing.T) {
	got := tokenize("Přehled analytiky v češtině, Straße-Daten")
	want := []string{"přehled", "analytiky", "češtině", "straße", "daten"}
	if !slices.Equal(got, want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
}

func TestNgrams(t *testing.T) {
	got := ngrams([]string{"a", "b", "c"}, 1, 2)
	want := []string{"a", "b", "c", "a b", "b c"}
	if !slices.Equal(got, want) {
		t.Fatalf("ngrams = %v, want %v", got, want)
	}
}
