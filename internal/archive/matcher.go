// Package archive retrieves historical context from previously resolved
// issues so new scope sessions can be seeded with relevant precedent.
package archive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

const (
	// SimilarityThreshold is the minimum title similarity for a resolved
	// issue to qualify as precedent.
	SimilarityThreshold = 0.3

	// DefaultTopN is how many matches are kept.
	DefaultTopN = 2

	summaryMaxLen = 200
	maxFilesShown = 8
)

// Match is one historical issue ranked by title similarity.
type Match struct {
	Issue *types.Issue
	Ratio float64
}

// FindSimilarResolved ranks the pool of candidate issues by title similarity
// to the given title. Only issues that are remotely closed with local status
// DONE qualify; matches at or below the threshold are dropped. topN <= 0
// uses DefaultTopN.
func FindSimilarResolved(title string, pool []*types.Issue, topN int) []Match {
	if topN <= 0 {
		topN = DefaultTopN
	}

	target := strings.ToLower(title)
	var matches []Match
	for _, candidate := range pool {
		if candidate.State != types.StateClosed || candidate.Status != types.StatusDone {
			continue
		}
		r := Ratio(target, strings.ToLower(candidate.Title))
		if r > SimilarityThreshold {
			matches = append(matches, Match{Issue: candidate, Ratio: r})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Ratio > matches[j].Ratio
	})

	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches
}

// BuildContext renders the matches as a short prompt preamble. No matches
// yields an empty string so the base prompt is unchanged.
func BuildContext(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("We have solved similar issues in this repository before. Use them as precedent:\n")
	for _, m := range matches {
		b.WriteString(fmt.Sprintf("- #%d %q (similarity %.0f%%)", m.Issue.Number, m.Issue.Title, m.Ratio*100))
		if plan := m.Issue.Plan; plan != nil {
			if plan.Summary != "" {
				b.WriteString(": " + truncate(plan.Summary, summaryMaxLen))
			}
			if len(plan.FilesToChange) > 0 {
				files := plan.FilesToChange
				if len(files) > maxFilesShown {
					files = files[:maxFilesShown]
				}
				b.WriteString(" [files: " + strings.Join(files, ", ") + "]")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Ratio computes a normalized similarity in [0, 1] between two strings using
// the Ratcliff/Obershelp measure: twice the number of matching characters
// over the total length. Equivalent to Python's difflib ratio.
func Ratio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	m := matchingChars(a, b)
	return 2.0 * float64(m) / float64(len(a)+len(b))
}

// matchingChars recursively sums the longest common substring and the
// matches in the unmatched regions on either side of it.
func matchingChars(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingChars(a[:ai], b[:bi]) +
		matchingChars(a[ai+size:], b[bi+size:])
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	// prev[j] holds the match length ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
