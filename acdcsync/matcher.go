package acdcsync

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/stocksync_backend/catalog"
	"github.com/agnivade/levenshtein"
)

// SimilarityRatio is a symmetric, case-insensitive similarity in [0, 1] based
// on edit distance: 1 - distance/len(longer). Either side empty yields 0.
func SimilarityRatio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longer := len([]rune(a))
	if lb := len([]rune(b)); lb > longer {
		longer = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= longer {
		return 0
	}
	return 1 - float64(dist)/float64(longer)
}

// Match resolves query against the candidate labels and returns the best
// candidate at or above threshold, or a NoMatch result. The strictly highest
// ratio wins; ties keep the first candidate in input order. Pure function.
func Match(query string, candidates []ListingCandidate, threshold float64) MatchResult {
	if strings.TrimSpace(query) == "" || len(candidates) == 0 {
		return MatchResult{}
	}
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}

	best := MatchResult{}
	for _, candidate := range candidates {
		ratio := SimilarityRatio(query, candidate.Label)
		if ratio > best.Score {
			best = MatchResult{Matched: true, Candidate: candidate, Score: ratio}
		}
	}
	if !best.Matched || best.Score < threshold {
		return MatchResult{}
	}
	return best
}

// KeyStrategy picks the text a catalog entry is matched by. The original sync
// scripts existed in title-matching and SKU-matching copies; this is the one
// knob that replaced them.
type KeyStrategy interface {
	Name() string
	QueryFor(entry catalog.Entry) string
}

type titleStrategy struct{}

func (titleStrategy) Name() string { return "title" }

// Entries without a display title fall back to their SKU so they still get a
// chance to match.
func (titleStrategy) QueryFor(entry catalog.Entry) string {
	if strings.TrimSpace(entry.Title) != "" {
		return entry.Title
	}
	return entry.Sku
}

type skuStrategy struct{}

func (skuStrategy) Name() string { return "sku" }

func (skuStrategy) QueryFor(entry catalog.Entry) string { return entry.Sku }

func StrategyByName(name string) (KeyStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "title":
		return titleStrategy{}, nil
	case "sku":
		return skuStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown matching strategy %q", name)
	}
}
