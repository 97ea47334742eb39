package insights

import (
	"time"

	"attendance-insights-api/dataset"
)

type Category string

// Insight categories in output order.
const (
	TierDistribution   Category = "tier_distribution"
	ModelPrediction    Category = "model_prediction"
	EarlyWarning       Category = "early_warning"
	UnexcusedOutliers  Category = "unexcused_outliers"
	ChronicAbsence     Category = "chronic_absence"
	GradeComparison    Category = "grade_comparison"
	AttendanceTrend    Category = "attendance_trend"
	Anomalies          Category = "anomalies"
	ResourceAllocation Category = "resource_allocation"
	TierEscalation     Category = "tier_escalation"
	HighImpact         Category = "high_impact"
)

// Recommendation categories in output order. ResourceAllocation is shared.
const (
	RiskLevelPlan         Category = "risk_level_plan"
	EarlyIntervention     Category = "early_intervention"
	UnexcusedSupport      Category = "unexcused_support"
	ChronicCaseManagement Category = "chronic_case_management"
	GradeStrategy         Category = "grade_strategy"
	TierMonitoring        Category = "tier_monitoring"
	AnomalyReview         Category = "anomaly_review"
	EquityGap             Category = "equity_gap"
	PerformanceMetrics    Category = "performance_metrics"
)

// Fact is the aggregate a statement summarizes.
type Fact struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Subject    string  `json:"subject,omitempty"`
}

// Statement is one ranked insight or recommendation.
type Statement struct {
	Rank        int       `json:"rank"`
	Category    Category  `json:"category"`
	Text        string    `json:"text"`
	Fact        Fact      `json:"fact"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type Options struct {
	// UnexcusedPercentile is the batch percentile of unexcused-absence rate
	// above which a student counts as an outlier.
	UnexcusedPercentile float64
	// ResourceTopN caps the schools named by resource allocation statements.
	ResourceTopN int
	// TierBoundaryMargin is how close, in points, predicted attendance must
	// be above a tier floor to count as escalation risk.
	TierBoundaryMargin float64
}

func DefaultOptions() Options {
	return Options{UnexcusedPercentile: 90, ResourceTopN: 3, TierBoundaryMargin: 2}
}

// Generate produces the insight and recommendation lists for ds. The output
// depends only on ds, opts and now, so identical input gives identical
// output.
func Generate(ds *dataset.Dataset, opts Options, now time.Time) (insights, recommendations []Statement) {
	if opts.ResourceTopN <= 0 {
		opts.ResourceTopN = DefaultOptions().ResourceTopN
	}
	a := aggregate(ds, opts)

	for _, rule := range insightRules {
		insights = append(insights, rule(a, opts)...)
	}
	for _, rule := range recommendationRules {
		recommendations = append(recommendations, rule(a, opts)...)
	}
	return stamp(insights, now), stamp(recommendations, now)
}

func stamp(list []Statement, now time.Time) []Statement {
	for i := range list {
		list[i].Rank = i + 1
		list[i].GeneratedAt = now
	}
	return list
}

type rule func(a *aggregates, opts Options) []Statement

var insightRules = []rule{
	tierDistribution,
	modelPrediction,
	earlyWarning,
	unexcusedOutliers,
	chronicAbsence,
	gradeComparison,
	attendanceTrend,
	anomalies,
	resourceInsights,
	tierEscalation,
	highImpact,
}

var recommendationRules = []rule{
	riskLevelPlan,
	earlyIntervention,
	unexcusedSupport,
	chronicCaseManagement,
	gradeStrategy,
	resourceRecommendations,
	tierMonitoring,
	anomalyReview,
	equityGaps,
	performanceMetrics,
}
