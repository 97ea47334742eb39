package risk

import (
	"math"

	"attendance-insights-api/dataset"
)

const (
	Tier1Floor = 95.0
	Tier2Floor = 90.0
	Tier3Floor = 80.0

	// AtRiskThreshold separates at-risk students from the rest in analyses
	// and in the classifier label.
	AtRiskThreshold = 85.0
)

// TierFor bands predicted attendance. Each band includes its lower bound.
func TierFor(attendance float64) dataset.Tier {
	switch {
	case attendance >= Tier1Floor:
		return dataset.Tier1
	case attendance >= Tier2Floor:
		return dataset.Tier2
	case attendance >= Tier3Floor:
		return dataset.Tier3
	}
	return dataset.Tier4
}

// LevelFor uses the same bands as TierFor.
func LevelFor(attendance float64) dataset.RiskLevel {
	switch TierFor(attendance) {
	case dataset.Tier1:
		return dataset.RiskLow
	case dataset.Tier2:
		return dataset.RiskMedium
	case dataset.Tier3:
		return dataset.RiskHigh
	}
	return dataset.RiskCritical
}

// Score blends the attendance gap with the classifier's probability of
// chronic absence. Without a probability the gap is returned unchanged.
func Score(attendance float64, probability *float64) float64 {
	base := 100 - attendance
	if probability == nil {
		return clamp(base)
	}
	p := math.Max(0, math.Min(1, *probability))
	return clamp(0.5*base + 0.5*100*p)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// Assessment is the per-student classification result.
type Assessment struct {
	RiskScore float64
	Tier      dataset.Tier
	RiskLevel dataset.RiskLevel
}

func Classify(attendance float64, probability *float64) Assessment {
	return Assessment{
		RiskScore: Score(attendance, probability),
		Tier:      TierFor(attendance),
		RiskLevel: LevelFor(attendance),
	}
}
