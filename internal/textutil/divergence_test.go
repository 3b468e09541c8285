package textutil

import (
	"math"
	"testing"
)

func TestTokenizeKeepsContractions(t *testing.T) {
	tokens := Tokenize("Don't wait -- it's 50% OFF today!")
	want := []string{"don't", "wait", "it's", "50", "off", "today"}
	if len(tokens) != len(want) {
		t.Fatalf("token count = %d, want %d (%v)", len(tokens), len(want), tokens)
	}
	for i, token := range tokens {
		if token != want[i] {
			t.Fatalf("token[%d] = %q, want %q", i, token, want[i])
		}
	}
}

func TestDivergenceIdenticalTexts(t *testing.T) {
	text := "Grab the new Gizmo today and save twenty percent"
	if d := Divergence(text, text); d != 0 {
		t.Fatalf("Divergence(identical) = %v, want 0", d)
	}
}

func TestDivergenceIgnoresCaseAndPunctuation(t *testing.T) {
	if d := Divergence("Order NOW, before it ends!", "order now before it ends"); d != 0 {
		t.Fatalf("Divergence = %v, want 0", d)
	}
}

func TestDivergenceSingleSubstitution(t *testing.T) {
	ref := "one two three four five"
	cand := "one two tree four five"
	got := Divergence(ref, cand)
	if math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("Divergence = %v, want 0.2", got)
	}
}

func TestDivergenceCompletelyDifferent(t *testing.T) {
	if d := Divergence("alpha beta gamma", "delta epsilon zeta"); d != 1 {
		t.Fatalf("Divergence = %v, want 1", d)
	}
}

func TestDivergenceUsesLongestLength(t *testing.T) {
	// Three edits over a candidate of six tokens: ratio is 3/6, not 3/3.
	got := Divergence("one two three", "one two three four five six")
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("Divergence = %v, want 0.5", got)
	}
}

func TestDivergenceEmptyInputs(t *testing.T) {
	if d := Divergence("", ""); d != 0 {
		t.Fatalf("Divergence(empty, empty) = %v, want 0", d)
	}
	if d := Divergence("", "something here"); d != 1 {
		t.Fatalf("Divergence(empty, text) = %v, want 1", d)
	}
}
