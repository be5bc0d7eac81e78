package scoring

// DefaultKeywords is the built-in M&A vocabulary used when the profile does
// not configure its own. Core deal terms carry the highest weight, supporting
// finance vocabulary less, tooling and credentials the least.
func DefaultKeywords() []WeightedKeyword {
	weighted := func(weight float64, terms ...string) []WeightedKeyword {
		kws := make([]WeightedKeyword, 0, len(terms))
		for _, t := range terms {
			kws = append(kws, WeightedKeyword{Text: t, Weight: weight})
		}
		return kws
	}

	var kws []WeightedKeyword
	kws = append(kws, weighted(5,
		"mergers", "acquisitions", "m&a", "merger", "acquisition",
		"investment banking", "corporate finance", "private equity",
		"deal", "transaction", "due diligence", "valuation",
	)...)
	kws = append(kws, weighted(3,
		"lbo", "leveraged buyout", "dcf", "financial modeling",
		"pitch book", "synergy", "integration", "divestiture",
		"restructuring", "capital markets", "equity research",
	)...)
	kws = append(kws, weighted(2,
		"excel", "bloomberg", "powerpoint", "financial analysis",
		"modeling", "cfa", "mba", "accounting", "finance",
	)...)
	return kws
}

// DefaultCompanies maps well-known M&A employers to their tier.
func DefaultCompanies() map[string]string {
	tiered := func(dst map[string]string, tier CompanyTier, names ...string) {
		for _, n := range names {
			dst[n] = string(tier)
		}
	}

	companies := make(map[string]string)
	tiered(companies, TierBulgeBracket,
		"goldman sachs", "jpmorgan", "morgan stanley", "bank of america",
		"citigroup", "barclays", "credit suisse", "deutsche bank",
	)
	tiered(companies, TierBoutique,
		"evercore", "moelis", "lazard", "centerview", "perella weinberg",
		"greenhill", "rothschild", "pjt partners", "guggenheim",
	)
	tiered(companies, TierConsulting,
		"mckinsey", "bain", "bcg", "deloitte", "pwc", "ey", "kpmg",
	)
	tiered(companies, TierPrivateEquity,
		"blackstone", "kkr", "carlyle", "apollo", "tpg", "warburg pincus",
	)
	return companies
}

// ParseCompanyTier maps a configured tier name to its constant. Unknown
// names fall back to the generic tier rather than failing config load.
func ParseCompanyTier(s string) CompanyTier {
	switch CompanyTier(s) {
	case TierBulgeBracket, TierBoutique, TierConsulting, TierPrivateEquity, TierOther:
		return CompanyTier(s)
	default:
		return TierOther
	}
}
