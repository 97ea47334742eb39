package dataset

import "fmt"

// Demographic columns the loader recognises, in the order they are used as
// categorical features.
var DemographicColumns = []string{
	"ECONOMIC_CODE",
	"SPECIAL_ED_CODE",
	"ENG_PROF_CODE",
	"HISPANIC_IND",
	"ETHNIC_CODE",
	"STUDENT_GENDER",
}

// Tier is the ordinal attendance band, 1 (best) to 4 (worst).
type Tier int

const (
	TierUnset Tier = 0
	Tier1     Tier = 1
	Tier2     Tier = 2
	Tier3     Tier = 3
	Tier4     Tier = 4
)

func (t Tier) String() string {
	if t < Tier1 || t > Tier4 {
		return "Unknown"
	}
	return fmt.Sprintf("Tier %d", int(t))
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// RiskLevels lists the levels from worst to best.
var RiskLevels = []RiskLevel{RiskCritical, RiskHigh, RiskMedium, RiskLow}

// Derived holds the per-student columns computed once per load cycle.
type Derived struct {
	RiskScore       float64
	Tier            Tier
	RiskLevel       RiskLevel
	RiskProbability *float64
	AnomalyScore    *float64
	IsAnomaly       bool
	Cluster         *int
}

// Complete reports whether the mandatory derived columns are populated.
func (d Derived) Complete() bool {
	return d.Tier != TierUnset && d.RiskLevel != ""
}

// Record is one student row for one school year.
type Record struct {
	StudentID    string
	SchoolYear   *int
	DistrictCode string
	DistrictName string
	LocationID   string
	SchoolName   string
	Grade        string

	DaysPresent   *float64
	DaysEnrolled  *float64
	DaysUnexcused *float64

	PriorPresent   *float64
	PriorEnrolled  *float64
	PriorUnexcused *float64

	// PredictedAttendance is the model output on a 0-100 scale.
	PredictedAttendance float64

	DistrictPrediction *float64
	SchoolPrediction   *float64
	GradePrediction    *float64

	Demographics map[string]string

	Derived Derived
}

// AttendanceRate is present/enrolled as a percentage. It is undefined when no
// days were enrolled.
func (r *Record) AttendanceRate() (float64, bool) {
	return rate(r.DaysPresent, r.DaysEnrolled)
}

// UnexcusedRate is unexcused absences over enrolled days as a percentage.
func (r *Record) UnexcusedRate() (float64, bool) {
	return rate(r.DaysUnexcused, r.DaysEnrolled)
}

// PriorAttendanceRate is the previous year's attendance rate.
func (r *Record) PriorAttendanceRate() (float64, bool) {
	return rate(r.PriorPresent, r.PriorEnrolled)
}

// Demographic returns the trimmed value of a demographic column, or "".
func (r *Record) Demographic(column string) string {
	if r.Demographics == nil {
		return ""
	}
	return r.Demographics[column]
}

func rate(num, den *float64) (float64, bool) {
	if num == nil || den == nil || *den <= 0 {
		return 0, false
	}
	return *num / *den * 100, true
}

// Float returns a pointer to v; handy for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}

func Int(v int) *int {
	return &v
}
