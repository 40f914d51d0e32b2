// Package duplicates flags expense records that likely describe the same
// purchase. It never deletes or merges records; callers decide what to do
// with a flagged pair.
package duplicates

import (
	"math"
	"sort"
	"strings"

	"ledgerlens/internal/core"
)

// Score weights. They sum to one.
const (
	amountWeight   = 0.5
	merchantWeight = 0.4
	dateWeight     = 0.1
)

// Config holds the detector thresholds.
type Config struct {
	// WindowDays bounds the lookback: only records within candidate date
	// +/- WindowDays are compared.
	WindowDays    int
	LikelyScore   float64
	PossibleScore float64
	// CrossSourceFactor scales the score of pairs whose sources differ.
	// 1.0 leaves scores unchanged.
	CrossSourceFactor float64
}

// DefaultConfig returns a three day window with 0.9 / 0.6 cut-offs.
func DefaultConfig() Config {
	return Config{
		WindowDays:        3,
		LikelyScore:       0.9,
		PossibleScore:     0.6,
		CrossSourceFactor: 1.0,
	}
}

// Detector compares a candidate record with existing ones. It holds no
// mutable state and is safe for concurrent use.
type Detector struct {
	cfg Config
}

func New(cfg Config) *Detector {
	if cfg.WindowDays < 0 {
		cfg.WindowDays = 0
	}
	if cfg.CrossSourceFactor <= 0 {
		cfg.CrossSourceFactor = 1.0
	}
	return &Detector{cfg: cfg}
}

// Window returns the inclusive date range scanned for a candidate dated d.
func (det *Detector) Window(d core.Date) (from, to core.Date) {
	return d.AddDays(-det.cfg.WindowDays), d.AddDays(det.cfg.WindowDays)
}

// FindDuplicates returns every existing record that scores at least the
// possible cut-off, sorted by score descending, then by the existing
// record's date descending, then by ID.
func (det *Detector) FindDuplicates(candidate core.Expense, existing []core.Expense) []core.DuplicatePair {
	from, to := det.Window(candidate.Date)
	var pairs []core.DuplicatePair
	for _, e := range existing {
		if e.ID == candidate.ID || e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		score := det.Similarity(candidate, e)
		decision, ok := det.decide(score)
		if !ok {
			continue
		}
		pairs = append(pairs, core.DuplicatePair{
			Candidate: candidate,
			Existing:  e,
			Score:     score,
			Decision:  decision,
		})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Existing.Date.Equal(b.Existing.Date) {
			return a.Existing.Date.After(b.Existing.Date)
		}
		return a.Existing.ID < b.Existing.ID
	})
	return pairs
}

// HasLikely reports whether any pair is a likely duplicate.
func HasLikely(pairs []core.DuplicatePair) bool {
	for _, p := range pairs {
		if p.Decision == core.LikelyDuplicate {
			return true
		}
	}
	return false
}

// Similarity scores a pair in [0, 1]. It is symmetric.
func (det *Detector) Similarity(a, b core.Expense) float64 {
	score := merchantWeight * MerchantSimilarity(key(a), key(b))
	if a.Amount.Cents == b.Amount.Cents {
		score += amountWeight
	}
	if a.Date.Equal(b.Date) {
		score += dateWeight
	}
	if a.Source != b.Source {
		score *= det.cfg.CrossSourceFactor
	}
	return clamp(score)
}

func (det *Detector) decide(score float64) (core.DuplicateDecision, bool) {
	switch {
	case score >= det.cfg.LikelyScore:
		return core.LikelyDuplicate, true
	case score >= det.cfg.PossibleScore:
		return core.PossibleDuplicate, true
	default:
		return "", false
	}
}

// key prefers the stored comparison form and falls back to a lower-cased
// display name for records built outside the normalizer.
func key(e core.Expense) string {
	if e.MerchantKey != "" {
		return e.MerchantKey
	}
	return strings.ToLower(strings.Join(strings.Fields(e.Merchant), " "))
}

// MerchantSimilarity is the larger of the normalized edit similarity and
// the token overlap of two comparison keys.
func MerchantSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	lev := levenshteinSimilarity(a, b)
	jac := tokenOverlap(a, b)
	if jac > lev {
		return jac
	}
	return lev
}

func levenshteinSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the edit distance with a two-row table.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// tokenOverlap is the Jaccard index of the whitespace-separated tokens.
func tokenOverlap(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(s) {
		out[f] = struct{}{}
	}
	return out
}

// clamp bounds v to [0, 1] and rounds away float noise so that cut-off
// comparisons are exact.
func clamp(v float64) float64 {
	v = math.Round(v*1e9) / 1e9
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
