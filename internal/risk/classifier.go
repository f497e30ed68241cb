// Package risk assigns a risk tier to a plan's proposed file changes.
package risk

import (
	"fmt"
	"strings"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// Pattern tiers, checked per file in priority order. A single HIGH match
// anywhere in the list outranks any number of MEDIUM/LOW matches, so a plan
// touching one credentials file and ten doc files still surfaces as HIGH.
var (
	highPatterns = []string{
		"secret", "credential", "password", "token", "auth",
		"config", ".env", ".pem", ".key", "certificate",
	}
	mediumPatterns = []string{
		"main.", "app.", "server.", "index.",
		"database", "db.", "model", "schema", "migration", "route",
	}
	lowPatterns = []string{
		"readme", "docs/", "doc/", "test", "spec", "license",
		"changelog", ".md", ".txt",
	}
)

// Classify returns the risk tier for a set of file paths a plan proposes to
// touch, with a short human-readable rationale. Pure function; matching is
// case-insensitive substring.
func Classify(filesToChange []string) (types.RiskTier, string) {
	if len(filesToChange) == 0 {
		return types.RiskUnknown, "no files listed in plan"
	}

	tier := types.RiskTier("")
	rationale := ""

	for _, file := range filesToChange {
		lower := strings.ToLower(file)

		if pat := matchAny(lower, highPatterns); pat != "" {
			// HIGH wins immediately; nothing can outrank it.
			return types.RiskHigh, fmt.Sprintf("touches sensitive file %q (matched %q)", file, pat)
		}
		if tier == types.RiskHigh || tier == types.RiskMedium {
			continue
		}
		if pat := matchAny(lower, mediumPatterns); pat != "" {
			tier = types.RiskMedium
			rationale = fmt.Sprintf("touches core file %q (matched %q)", file, pat)
			continue
		}
		if tier == "" {
			if pat := matchAny(lower, lowPatterns); pat != "" {
				tier = types.RiskLow
				rationale = fmt.Sprintf("documentation or test changes only (%q matched %q)", file, pat)
			}
		}
	}

	if tier == "" {
		return types.RiskMedium, "standard code changes"
	}
	return tier, rationale
}

func matchAny(path string, patterns []string) string {
	for _, pat := range patterns {
		if strings.Contains(path, pat) {
			return pat
		}
	}
	return ""
}
