package acdcsync

import (
	"testing"

	"bitbucket.org/mmdatafocus/stocksync_backend/catalog"
)

func TestSimilarityRatio(t *testing.T) {
	cases := []struct {
		a, b     string
		expected float64
	}{
		{"widget", "widget", 1},
		{"Widget", "  widget ", 1},
		{"", "widget", 0},
		{"widget", "", 0},
		{"", "", 0},
		{"abcd", "wxyz", 0},
		{"abcdefgh", "abcdefgX", 0.875}, // one substitution over length 8
	}
	for _, tc := range cases {
		got := SimilarityRatio(tc.a, tc.b)
		if got != tc.expected {
			t.Fatalf("SimilarityRatio(%q, %q) expected %v, got %v", tc.a, tc.b, tc.expected, got)
		}
	}
}

func TestSimilarityRatio_Symmetric(t *testing.T) {
	a, b := "cordless drill 18v", "drill cordless 18v"
	if SimilarityRatio(a, b) != SimilarityRatio(b, a) {
		t.Fatalf("similarity is not symmetric for %q / %q", a, b)
	}
}

func TestMatch_PicksHighestAboveThreshold(t *testing.T) {
	candidates := []ListingCandidate{
		{Label: "Cordless Drill 12V", Ref: "p1"},
		{Label: "Cordless Drill 18V", Ref: "p2"},
		{Label: "Angle Grinder", Ref: "p3"},
	}
	res := Match("cordless drill 18v", candidates, 0.8)
	if !res.Matched {
		t.Fatal("expected a match")
	}
	if res.Candidate.Ref != "p2" {
		t.Fatalf("expected candidate p2, got %s", res.Candidate.Ref)
	}
	if res.Score < 0.8 {
		t.Fatalf("matched score %v below threshold", res.Score)
	}
}

func TestMatch_BelowThresholdIsNoMatch(t *testing.T) {
	candidates := []ListingCandidate{{Label: "Angle Grinder", Ref: "p1"}}
	res := Match("cordless drill", candidates, 0.8)
	if res.Matched {
		t.Fatalf("expected no match, got %+v", res)
	}
	if res.Score != 0 || res.Candidate.Ref != "" {
		t.Fatalf("no-match result must be zero valued, got %+v", res)
	}
}

func TestMatch_TieKeepsFirstCandidate(t *testing.T) {
	// Identical labels score identically; the first in input order must win
	// so repeated runs over the same search result stay deterministic.
	candidates := []ListingCandidate{
		{Label: "Widget", Ref: "first"},
		{Label: "Widget", Ref: "second"},
	}
	res := Match("widget", candidates, 0.8)
	if !res.Matched || res.Candidate.Ref != "first" {
		t.Fatalf("expected first candidate to win the tie, got %+v", res)
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	if res := Match("", []ListingCandidate{{Label: "Widget"}}, 0.8); res.Matched {
		t.Fatalf("empty query must not match, got %+v", res)
	}
	if res := Match("widget", nil, 0.8); res.Matched {
		t.Fatalf("empty candidate set must not match, got %+v", res)
	}
}

func TestStrategyByName(t *testing.T) {
	entry := catalog.Entry{Sku: "SKU-1", Title: "Widget"}

	s, err := StrategyByName("")
	if err != nil {
		t.Fatalf("default strategy error: %v", err)
	}
	if s.Name() != "title" || s.QueryFor(entry) != "Widget" {
		t.Fatalf("default strategy should match by title, got %s / %q", s.Name(), s.QueryFor(entry))
	}

	s, err = StrategyByName("sku")
	if err != nil {
		t.Fatalf("sku strategy error: %v", err)
	}
	if s.QueryFor(entry) != "SKU-1" {
		t.Fatalf("sku strategy expected SKU-1, got %q", s.QueryFor(entry))
	}

	if _, err := StrategyByName("barcode"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestTitleStrategy_FallsBackToSku(t *testing.T) {
	s, _ := StrategyByName("title")
	entry := catalog.Entry{Sku: "SKU-2", Title: "   "}
	if got := s.QueryFor(entry); got != "SKU-2" {
		t.Fatalf("expected sku fallback, got %q", got)
	}
}
