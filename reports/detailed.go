package reports

import (
	"strings"

	"attendance-insights-api/dataset"
	"attendance-insights-api/filter"
)

// unexcusedFactorRate is the unexcused absence rate, in percent, above which
// it is listed as a risk factor.
const unexcusedFactorRate = 10.0

var detailedColumns = []string{
	"Student ID", "District", "School", "Grade",
	"Predicted Attendance %", "Attendance Rate %",
	"Tier", "Risk Score", "Risk Level", "Anomaly Score",
	"Risk Factors", "Recommendations",
}

type guidance struct {
	factor          string
	recommendations []string
}

var tierGuidance = map[dataset.Tier]guidance{
	dataset.Tier4: {"Chronic absenteeism (Tier 4)", []string{
		"Intensive intervention required",
		"Family engagement specialist referral",
		"Personalized attendance plan",
	}},
	dataset.Tier3: {"At risk of chronic absenteeism (Tier 3)", []string{
		"Early intervention required",
		"Attendance improvement plan",
	}},
	dataset.Tier2: {"Moderate attendance concerns (Tier 2)", []string{
		"Individualized prevention strategies",
		"Regular attendance monitoring",
	}},
	dataset.Tier1: {"Good attendance (Tier 1)", []string{
		"Continue current practices",
	}},
}

// Guidance returns the risk factors and recommendations listed for a student.
func Guidance(r *dataset.Record) (factors, recommendations []string) {
	g := tierGuidance[r.Derived.Tier]
	if g.factor != "" {
		factors = append(factors, g.factor)
	}
	recommendations = append(recommendations, g.recommendations...)

	if r.Derived.IsAnomaly {
		factors = append(factors, "Unusual attendance pattern")
		recommendations = append(recommendations, "Review attendance records")
	}
	if u, ok := r.UnexcusedRate(); ok && u > unexcusedFactorRate {
		factors = append(factors, "High unexcused absences")
		recommendations = append(recommendations, "Family contact about unexcused absences")
	}
	return factors, recommendations
}

func detailed(t Type, records []dataset.Record) *Table {
	table := &Table{Type: t, Columns: detailedColumns}
	for i := range records {
		r := &records[i]
		factors, recs := Guidance(r)

		var rate, anomaly any
		if v, ok := r.AttendanceRate(); ok {
			rate = round2(v)
		}
		if r.Derived.AnomalyScore != nil {
			anomaly = round2(*r.Derived.AnomalyScore)
		}
		table.Rows = append(table.Rows, []any{
			r.StudentID,
			districtLabel(r),
			schoolLabel(r),
			filter.GradeLabel(filter.NormalizeGrade(r.Grade)),
			round2(r.PredictedAttendance),
			rate,
			r.Derived.Tier.String(),
			round2(r.Derived.RiskScore),
			string(r.Derived.RiskLevel),
			anomaly,
			joinOr(factors, "None"),
			joinOr(recs, "Continue monitoring"),
		})
	}
	return table
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, "|")
}

func districtLabel(r *dataset.Record) string {
	if r.DistrictName != "" {
		return strings.TrimSpace(r.DistrictName)
	}
	return r.DistrictCode
}

func schoolLabel(r *dataset.Record) string {
	if r.SchoolName != "" {
		return strings.TrimSpace(r.SchoolName)
	}
	return r.LocationID
}
