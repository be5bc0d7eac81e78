package scoring

import "github.com/dealseek/ma-pilot/internal/posting"

// CompanyTier classifies a target employer by importance.
type CompanyTier string

const (
	TierBulgeBracket  CompanyTier = "bulge-bracket"
	TierBoutique      CompanyTier = "boutique"
	TierConsulting    CompanyTier = "consulting"
	TierPrivateEquity CompanyTier = "private-equity"
	TierOther         CompanyTier = "other"
	TierNone          CompanyTier = ""
)

// WeightedKeyword is one entry of the profile's relevance vocabulary.
type WeightedKeyword struct {
	Text   string  `mapstructure:"keyword"`
	Weight float64 `mapstructure:"weight"`
}

// Profile holds the applicant's static targeting attributes. Owned by
// configuration, read-only here.
type Profile struct {
	TargetLat   float64
	TargetLon   float64
	RadiusMiles float64

	Keywords  []WeightedKeyword
	Companies map[string]CompanyTier

	MinScore    float64
	SalaryFloor *int
}

// ProfileSalary exposes the floor as a range for overlap checks against a
// posting's stated bounds.
func (p *Profile) ProfileSalary() *posting.SalaryRange {
	if p.SalaryFloor == nil {
		return nil
	}
	return &posting.SalaryRange{Min: p.SalaryFloor}
}
