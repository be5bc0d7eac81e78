package scoring

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// fuzzyDistanceMax bounds the edit distance for a company-name match after
// normalization. Two keeps "Moelis & Co" matching "Moelis & Co." without
// letting "Bain" claim "Barclays".
const fuzzyDistanceMax = 2

// MatchCompany resolves a posting's company name against the configured tier
// mapping: normalize, exact match, then bounded edit-distance fallback.
// Returns TierNone when nothing matches.
func MatchCompany(name string, tiers map[string]CompanyTier) CompanyTier {
	normalized := normalizeCompany(name)
	if normalized == "" {
		return TierNone
	}

	candidates := make(map[string]CompanyTier, len(tiers))
	targets := make([]string, 0, len(tiers))
	for target, tier := range tiers {
		t := normalizeCompany(target)
		if _, seen := candidates[t]; !seen {
			targets = append(targets, t)
		}
		candidates[t] = tier
	}
	// Map order is randomized; sorting the targets keeps ties stable so the
	// same name always resolves to the same tier.
	sort.Strings(targets)

	if tier, ok := candidates[normalized]; ok {
		return tier
	}

	// Boards often append the parent entity: "Goldman Sachs & Co. LLC".
	// Short targets like "EY" are excluded, substring hits on them are noise.
	for _, target := range targets {
		if len(target) >= 4 && strings.Contains(normalized, target) {
			return candidates[target]
		}
	}

	best := TierNone
	bestDist := fuzzyDistanceMax + 1
	for _, target := range targets {
		if dist := levenshtein.ComputeDistance(normalized, target); dist < bestDist {
			best = candidates[target]
			bestDist = dist
		}
	}
	if bestDist <= fuzzyDistanceMax {
		return best
	}

	return TierNone
}

var companyNoise = []string{" inc", " llc", " ltd", " plc", " corp", " co", " group", " company", " partners"}

func normalizeCompany(name string) string {
	s := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	s = strings.NewReplacer(",", "", ".", "").Replace(s)
	for _, suffix := range companyNoise {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}
