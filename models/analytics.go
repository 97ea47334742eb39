package models

import (
	"time"

	"attendance-insights-api/insights"
)

type SummaryStatistics struct {
	TotalStudents     int      `json:"totalStudents"`
	Below85Students   int      `json:"below85Students"`
	Below85Percentage float64  `json:"below85Percentage"`
	Tier4Students     int      `json:"tier4Students"`
	Tier4Percentage   float64  `json:"tier4Percentage"`
	Tier3Students     int      `json:"tier3Students"`
	Tier3Percentage   float64  `json:"tier3Percentage"`
	Tier2Students     int      `json:"tier2Students"`
	Tier2Percentage   float64  `json:"tier2Percentage"`
	Tier1Students     int      `json:"tier1Students"`
	Tier1Percentage   float64  `json:"tier1Percentage"`
	SchoolPrediction  *float64 `json:"schoolPrediction"`
	GradePrediction   *float64 `json:"gradePrediction"`
}

type KeyInsight struct {
	Rank        int               `json:"rank"`
	Category    insights.Category `json:"category"`
	Insight     string            `json:"insight"`
	Fact        insights.Fact     `json:"fact"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

type Recommendation struct {
	Rank           int               `json:"rank"`
	Category       insights.Category `json:"category"`
	Recommendation string            `json:"recommendation"`
	Fact           insights.Fact     `json:"fact"`
	GeneratedAt    time.Time         `json:"generatedAt"`
}

type AnalysisResponse struct {
	SummaryStatistics SummaryStatistics `json:"summaryStatistics"`
	KeyInsights       []KeyInsight      `json:"keyInsights"`
	Recommendations   []Recommendation  `json:"recommendations"`
}

type ValueLabel struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type SchoolOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	District string `json:"district"`
}

type GradeOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	School   string `json:"school,omitempty"`
	District string `json:"district,omitempty"`
}

type FilterOptions struct {
	Districts []ValueLabel   `json:"districts"`
	Schools   []SchoolOption `json:"schools"`
	Grades    []GradeOption  `json:"grades"`
}

type GradeRiskItem struct {
	Grade          string  `json:"grade"`
	RiskPercentage float64 `json:"risk_percentage"`
	StudentCount   int     `json:"student_count"`
}

type GradeRiskResponse struct {
	Grades        []GradeRiskItem `json:"grades"`
	TotalStudents int             `json:"total_students"`
	AverageRisk   float64         `json:"average_risk"`
}

type SchoolRiskItem struct {
	SchoolID       string  `json:"school_id"`
	SchoolName     string  `json:"school_name"`
	RiskPercentage float64 `json:"risk_percentage"`
	StudentCount   int     `json:"student_count"`
	RiskLevel      string  `json:"risk_level"`
}

type SchoolRiskResponse struct {
	Schools          []SchoolRiskItem `json:"schools"`
	TotalStudents    int              `json:"total_students"`
	AverageRisk      float64          `json:"average_risk"`
	AverageRiskLevel string           `json:"average_risk_level"`
	RiskDistribution map[string]int   `json:"risk_distribution"`
}

// Status reports the load cycle to the dashboard.
type Status struct {
	State           string     `json:"state"`
	Ready           bool       `json:"ready"`
	Error           string     `json:"error,omitempty"`
	LastLoaded      *time.Time `json:"lastLoaded,omitempty"`
	SnapshotVersion uint64     `json:"snapshotVersion"`
	Students        int        `json:"students"`
	Models          []string   `json:"models"`
}
