package posting

import (
	"regexp"
	"strconv"
	"strings"
)

// Patterns cover the forms boards actually print: "$120,000 - $150,000",
// "120,000-150,000k" style thousands, and "$120k - $150k".
var salaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})+)\s*[-–]\s*\$?(\d{1,3}(?:,\d{3})+)`),
	regexp.MustCompile(`(?i)\$?(\d{2,3})k\s*[-–]\s*\$?(\d{2,3})k`),
	regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})+)\s*[-–]\s*(\d{1,3}(?:,\d{3})+)\s*(?:per\s+year|/yr|annually)`),
}

// ExtractSalaryRange scans free text for an annual salary range. Returns nil
// when no recognizable pattern is present; bounds are never fabricated.
func ExtractSalaryRange(text string) *SalaryRange {
	for i, pattern := range salaryPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		low, errLow := strconv.Atoi(strings.ReplaceAll(match[1], ",", ""))
		high, errHigh := strconv.Atoi(strings.ReplaceAll(match[2], ",", ""))
		if errLow != nil || errHigh != nil {
			continue
		}

		// second pattern captures thousands
		if i == 1 {
			low *= 1000
			high *= 1000
		}

		if low <= 0 || high < low {
			continue
		}

		return &SalaryRange{Min: &low, Max: &high}
	}

	return nil
}

// Overlaps reports whether two ranges share any value. Open bounds are
// treated as unbounded on that side.
func (r *SalaryRange) Overlaps(other *SalaryRange) bool {
	if r == nil || other == nil {
		return false
	}
	if r.Max != nil && other.Min != nil && *r.Max < *other.Min {
		return false
	}
	if other.Max != nil && r.Min != nil && *other.Max < *r.Min {
		return false
	}
	return true
}

// Union widens r to cover both ranges. Caller must check Overlaps first.
func (r *SalaryRange) Union(other *SalaryRange) *SalaryRange {
	if r == nil {
		return other
	}
	if other == nil {
		return r
	}

	out := &SalaryRange{Min: r.Min, Max: r.Max}
	if other.Min != nil && (out.Min == nil || *other.Min < *out.Min) {
		out.Min = other.Min
	}
	if other.Max != nil && (out.Max == nil || *other.Max > *out.Max) {
		out.Max = other.Max
	}
	return out
}
