package scoring

import (
	"sort"
	"strings"

	"github.com/dealseek/ma-pilot/internal/posting"
)

// ScoreTier buckets a final relevance score.
type ScoreTier string

const (
	ScorePriority  ScoreTier = "priority"
	ScoreQualified ScoreTier = "qualified"
	ScoreMarginal  ScoreTier = "marginal"
	ScoreExcluded  ScoreTier = "excluded"
)

// Weights holds the scoring constants. They are asserted defaults, not
// protocol: every one is overridable from configuration.
type Weights struct {
	TitleMultiplier       float64 `mapstructure:"title-multiplier"`
	DescriptionMultiplier float64 `mapstructure:"description-multiplier"`
	KeywordComponentMax   float64 `mapstructure:"keyword-component-max"`
	TierBonus             map[CompanyTier]float64
	TierComponentMax      float64 `mapstructure:"tier-component-max"`
	SalaryOverlapBonus    float64 `mapstructure:"salary-overlap-bonus"`
	SalaryUnknownBonus    float64 `mapstructure:"salary-unknown-bonus"`
	PriorityThreshold     float64 `mapstructure:"priority-threshold"`
	QualifiedThreshold    float64 `mapstructure:"qualified-threshold"`
	MarginalThreshold     float64 `mapstructure:"marginal-threshold"`
}

// DefaultWeights returns the weight constants from the descriptive model:
// keywords contribute up to 60 points (title hits weigh 3x description hits),
// the company tier up to 30, salary fit up to 10.
func DefaultWeights() Weights {
	return Weights{
		TitleMultiplier:       3,
		DescriptionMultiplier: 1,
		KeywordComponentMax:   60,
		TierBonus: map[CompanyTier]float64{
			TierBulgeBracket:  25,
			TierBoutique:      20,
			TierPrivateEquity: 20,
			TierConsulting:    15,
			TierOther:         10,
		},
		TierComponentMax:   30,
		SalaryOverlapBonus: 10,
		SalaryUnknownBonus: 5,
		PriorityThreshold:  85,
		QualifiedThreshold: 70,
		MarginalThreshold:  50,
	}
}

// ScoredPosting pairs a posting with its computed relevance. Derived data,
// recomputed every run, never persisted as authoritative.
type ScoredPosting struct {
	Posting       *posting.Posting
	Score         float64
	Tier          ScoreTier
	CompanyTier   CompanyTier
	DistanceMiles float64
}

// Score computes the relevance of a posting for a profile. Pure and
// deterministic: identical inputs always produce the identical result.
func Score(p *posting.Posting, profile *Profile, w Weights) ScoredPosting {
	total := keywordComponent(p, profile, w)

	companyTier := MatchCompany(p.Company, profile.Companies)
	total += tierComponent(companyTier, w)
	total += salaryComponent(p.Salary, profile.ProfileSalary(), w)

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return ScoredPosting{
		Posting:       p,
		Score:         total,
		Tier:          classify(total, w),
		CompanyTier:   companyTier,
		DistanceMiles: p.DistanceMiles,
	}
}

func keywordComponent(p *posting.Posting, profile *Profile, w Weights) float64 {
	if len(profile.Keywords) == 0 {
		return 0
	}

	title := strings.ToLower(p.Title)
	desc := strings.ToLower(p.Description)

	// Matched weights are normalized against the plain sum of configured
	// weights, so a description-only match of every keyword reaches the
	// component max and title hits get there three times faster.
	var matched, total float64
	for _, kw := range profile.Keywords {
		needle := strings.ToLower(kw.Text)
		total += kw.Weight
		if strings.Contains(title, needle) {
			matched += kw.Weight * w.TitleMultiplier
		}
		if strings.Contains(desc, needle) {
			matched += kw.Weight * w.DescriptionMultiplier
		}
	}
	if total == 0 {
		return 0
	}

	component := matched / total * w.KeywordComponentMax
	if component > w.KeywordComponentMax {
		component = w.KeywordComponentMax
	}
	return component
}

func tierComponent(tier CompanyTier, w Weights) float64 {
	bonus := w.TierBonus[tier]
	if bonus > w.TierComponentMax {
		bonus = w.TierComponentMax
	}
	return bonus
}

func salaryComponent(postingSalary, profileSalary *posting.SalaryRange, w Weights) float64 {
	// Missing data on either side is neutral, never a penalty.
	if postingSalary == nil || profileSalary == nil {
		return w.SalaryUnknownBonus
	}
	if postingSalary.Overlaps(profileSalary) {
		return w.SalaryOverlapBonus
	}
	return 0
}

func classify(score float64, w Weights) ScoreTier {
	switch {
	case score >= w.PriorityThreshold:
		return ScorePriority
	case score >= w.QualifiedThreshold:
		return ScoreQualified
	case score >= w.MarginalThreshold:
		return ScoreMarginal
	default:
		return ScoreExcluded
	}
}

// Order sorts scored postings into scheduling order: descending score, ties
// broken by more recent posting time, then by shorter distance.
func Order(sps []ScoredPosting) {
	sort.SliceStable(sps, func(i, j int) bool {
		a, b := sps[i], sps[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Posting.PostedAt.Equal(b.Posting.PostedAt) {
			return a.Posting.PostedAt.After(b.Posting.PostedAt)
		}
		return a.DistanceMiles < b.DistanceMiles
	})
}
