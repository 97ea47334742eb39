package insights

import (
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"attendance-insights-api/dataset"
	"attendance-insights-api/risk"
)

var now = time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)

type student struct {
	district, school, grade string
	predicted               float64
	present, enrolled       float64
	unexcused               float64
	priorPresent            float64
	priorEnrolled           float64
	econ                    string
}

func build(students []student) *dataset.Dataset {
	return buildWith(students, risk.Models{})
}

// buildWith enriches the students with m. Prior-year columns are present when
// any student carries prior enrolled days.
func buildWith(students []student, m risk.Models) *dataset.Dataset {
	schema := dataset.Schema{
		DistrictCode: true, LocationID: true, SchoolName: true, Grade: true,
		DaysPresent: true, DaysEnrolled: true, DaysUnexcused: true,
		Predictions: true, Demographics: []string{"ECONOMIC_CODE"},
	}
	records := make([]dataset.Record, len(students))
	for i, s := range students {
		records[i] = dataset.Record{
			StudentID:           strconv.Itoa(i),
			DistrictCode:        s.district,
			LocationID:          s.school,
			SchoolName:          "School " + s.school,
			Grade:               s.grade,
			DaysPresent:         dataset.Float(s.present),
			DaysEnrolled:        dataset.Float(s.enrolled),
			DaysUnexcused:       dataset.Float(s.unexcused),
			PredictedAttendance: s.predicted,
			Demographics:        map[string]string{"ECONOMIC_CODE": s.econ},
		}
		if s.priorEnrolled > 0 {
			schema.PriorAttendance = true
			records[i].PriorPresent = dataset.Float(s.priorPresent)
			records[i].PriorEnrolled = dataset.Float(s.priorEnrolled)
		}
	}
	return risk.Enrich(dataset.New(schema, records), m)
}

// lowRisk gives 0.9 to students predicted below 85 and 0.1 to the rest.
type lowRisk struct{}

func (lowRisk) Probability(r *dataset.Record) (float64, error) {
	if r.PredictedAttendance < risk.AtRiskThreshold {
		return 0.9, nil
	}
	return 0.1, nil
}

// unexcusedScore scores students by their unexcused days.
type unexcusedScore struct{}

func (unexcusedScore) Score(r *dataset.Record) (float64, error) {
	return *r.DaysUnexcused, nil
}

func repeat(s student, n int) []student {
	out := make([]student, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// hundred builds 100 students, 20 of them predicted below 80.
func hundred() *dataset.Dataset {
	var students []student
	for i := 0; i < 100; i++ {
		s := student{district: "07", school: "045", grade: "3", predicted: 97, present: 175, enrolled: 180, unexcused: 1, econ: "N"}
		switch {
		case i < 20:
			s.predicted, s.present, s.unexcused, s.econ = 70, 126, 30, "Y"
		case i < 50:
			s.predicted, s.present = 85, 153
		case i < 60:
			s.school, s.grade, s.predicted = "046", "4", 92
		}
		students = append(students, s)
	}
	return build(students)
}

func byCategory(list []Statement, c Category) []Statement {
	var out []Statement
	for _, s := range list {
		if s.Category == c {
			out = append(out, s)
		}
	}
	return out
}

// ── tier statements ──

func TestTierStatementsComeFirst(t *testing.T) {
	ins, _ := Generate(hundred(), DefaultOptions(), now)
	if len(ins) < 4 {
		t.Fatalf("got %d insights", len(ins))
	}
	want := []string{
		"Tier 4 Students: 20 students (20.0%) have attendance below 80% - needs intensive intervention",
		"Tier 3 Students: 30 students (30.0%) have attendance between 80-90% - early intervention required",
		"Tier 2 Students: 10 students (10.0%) have attendance between 90-95% - needs individualized prevention",
		"Tier 1 Students: 40 students (40.0%) have attendance above 95% - no intervention needed",
	}
	for i, w := range want {
		if ins[i].Text != w {
			t.Errorf("insight %d:\n got %q\nwant %q", i, ins[i].Text, w)
		}
		if ins[i].Category != TierDistribution || ins[i].Rank != i+1 {
			t.Errorf("insight %d: category=%s rank=%d", i, ins[i].Category, ins[i].Rank)
		}
	}
	if ins[0].Fact.Count != 20 || ins[0].Fact.Percentage != 20.0 {
		t.Errorf("tier 4 fact = %+v", ins[0].Fact)
	}
}

func TestEmptyDatasetStillReportsTiers(t *testing.T) {
	ins, recs := Generate(build(nil), DefaultOptions(), now)
	if len(byCategory(ins, TierDistribution)) != 4 {
		t.Errorf("want four tier statements, got %v", ins)
	}
	if len(recs) != 1 || recs[0].Category != PerformanceMetrics {
		t.Errorf("empty data should only yield performance metrics, got %v", recs)
	}
}

// ── ordering ──

func TestCategoryOrder(t *testing.T) {
	order := map[Category]int{}
	for i, c := range []Category{TierDistribution, ModelPrediction, EarlyWarning, UnexcusedOutliers, ChronicAbsence,
		GradeComparison, AttendanceTrend, Anomalies, ResourceAllocation, TierEscalation, HighImpact} {
		order[c] = i
	}
	ins, recs := Generate(hundred(), DefaultOptions(), now)
	for i := 1; i < len(ins); i++ {
		if order[ins[i].Category] < order[ins[i-1].Category] {
			t.Errorf("insight %d (%s) after %s", i, ins[i].Category, ins[i-1].Category)
		}
	}

	recOrder := map[Category]int{}
	for i, c := range []Category{RiskLevelPlan, EarlyIntervention, UnexcusedSupport, ChronicCaseManagement,
		GradeStrategy, ResourceAllocation, TierMonitoring, AnomalyReview, EquityGap, PerformanceMetrics} {
		recOrder[c] = i
	}
	for i := 1; i < len(recs); i++ {
		if recOrder[recs[i].Category] < recOrder[recs[i-1].Category] {
			t.Errorf("recommendation %d (%s) after %s", i, recs[i].Category, recs[i-1].Category)
		}
	}
	if last := recs[len(recs)-1]; last.Category != PerformanceMetrics {
		t.Errorf("last recommendation = %s", last.Category)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	ds := hundred()
	a1, r1 := Generate(ds, DefaultOptions(), now)
	a2, r2 := Generate(ds, DefaultOptions(), now)
	if !reflect.DeepEqual(a1, a2) || !reflect.DeepEqual(r1, r2) {
		t.Error("identical input produced different output")
	}
}

// ── rules ──

func TestRiskLevelPlan(t *testing.T) {
	_, recs := Generate(hundred(), DefaultOptions(), now)
	plans := byCategory(recs, RiskLevelPlan)
	if len(plans) != 4 {
		t.Fatalf("got %d plans", len(plans))
	}
	want := "PRIORITY INTERVENTION: Target 20 Critical-risk students with intensive case management (estimated 60-80% improvement potential)"
	if plans[0].Text != want {
		t.Errorf("got %q", plans[0].Text)
	}
	if !strings.Contains(plans[1].Text, "(45-65% success rate)") || !strings.Contains(plans[2].Text, "(30-50% prevention rate)") {
		t.Errorf("success bands missing: %q / %q", plans[1].Text, plans[2].Text)
	}
	if !strings.HasPrefix(plans[3].Text, "MAINTENANCE:") {
		t.Errorf("got %q", plans[3].Text)
	}
}

func TestGradeComparison(t *testing.T) {
	// Measured rates disagree with the predictions so the averaged figure is
	// unambiguous.
	students := []student{
		{grade: "3", predicted: 95, present: 180, enrolled: 180},
		{grade: "3", predicted: 95, present: 180, enrolled: 180},
		{grade: "4", predicted: 80, present: 90, enrolled: 180},
		{grade: "4", predicted: 80, present: 90, enrolled: 180},
		{grade: "6", predicted: 60, present: 171, enrolled: 180},
	}
	ins, _ := Generate(build(students), DefaultOptions(), now)
	got := byCategory(ins, GradeComparison)
	want := []string{
		"GRADE LEVEL: Grade 6 has the lowest average attendance at 60.0%",
		"BEST PERFORMING: Grade 3 has the highest average attendance at 95.0%",
		"ATTENDANCE DROP: Grade 4 shows a 15.0% drop in attendance compared to Grade 3",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d statements: %v", len(got), got)
	}
	for i := range want {
		if got[i].Text != want[i] {
			t.Errorf("got %q, want %q", got[i].Text, want[i])
		}
	}
	if got[0].Fact.Value != 60 || got[0].Fact.Count != 1 {
		t.Errorf("lowest grade fact = %+v", got[0].Fact)
	}
}

func TestEarlyWarning(t *testing.T) {
	students := []student{
		{predicted: 80, present: 171, enrolled: 180},
		{predicted: 95, present: 171, enrolled: 180},
	}
	ins, recs := Generate(build(students), DefaultOptions(), now)
	if got := byCategory(ins, EarlyWarning); len(got) != 1 || got[0].Fact.Count != 1 {
		t.Errorf("early warning = %v", got)
	}
	if got := byCategory(recs, EarlyIntervention); len(got) != 1 {
		t.Errorf("early intervention = %v", got)
	}
}

func TestResourceAllocationTopN(t *testing.T) {
	var students []student
	for i, school := range []string{"001", "002", "003", "004"} {
		for j := 0; j < 10; j++ {
			s := student{district: "07", school: school, predicted: 97, present: 175, enrolled: 180}
			if j < i+1 {
				s.predicted = 70
			}
			students = append(students, s)
		}
	}
	opts := DefaultOptions()
	opts.ResourceTopN = 2
	ins, recs := Generate(build(students), opts, now)

	got := byCategory(ins, ResourceAllocation)
	if len(got) != 2 {
		t.Fatalf("got %d resource insights", len(got))
	}
	if got[0].Fact.Subject != "School 004" || got[1].Fact.Subject != "School 003" {
		t.Errorf("ranking = %s, %s", got[0].Fact.Subject, got[1].Fact.Subject)
	}

	var allocations, targeted int
	for _, r := range byCategory(recs, ResourceAllocation) {
		switch {
		case strings.HasPrefix(r.Text, "RESOURCE ALLOCATION:"):
			allocations++
		case strings.HasPrefix(r.Text, "TARGETED SUPPORT:"):
			targeted++
		}
	}
	// 10 of 40 students are critical: 25% clears the district threshold.
	if allocations != 2 || targeted != 1 {
		t.Errorf("allocations=%d targeted=%d", allocations, targeted)
	}
}

func TestEquityGap(t *testing.T) {
	_, recs := Generate(hundred(), DefaultOptions(), now)
	got := byCategory(recs, EquityGap)
	if len(got) != 1 || got[0].Fact.Subject != "ECONOMIC_CODE" {
		t.Fatalf("equity = %v", got)
	}
	if !strings.HasPrefix(got[0].Text, "ECONOMIC EQUITY:") {
		t.Errorf("got %q", got[0].Text)
	}
}

func TestEquityGapUsesPredictedAttendance(t *testing.T) {
	tests := []struct {
		name    string
		yes, no student
		want    float64 // 0 means no statement
	}{
		{
			"measured gap only",
			student{predicted: 90, present: 90, enrolled: 180, econ: "Y"},
			student{predicted: 93, present: 180, enrolled: 180, econ: "N"},
			0,
		},
		{
			"predicted gap",
			student{predicted: 82, present: 171, enrolled: 180, econ: "Y"},
			student{predicted: 92, present: 171, enrolled: 180, econ: "N"},
			10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			students := append(repeat(tt.yes, 3), repeat(tt.no, 3)...)
			_, recs := Generate(build(students), DefaultOptions(), now)
			got := byCategory(recs, EquityGap)
			if tt.want == 0 {
				if len(got) != 0 {
					t.Errorf("unexpected equity statement %v", got)
				}
				return
			}
			if len(got) != 1 || got[0].Fact.Value != tt.want {
				t.Errorf("equity = %v, want gap %v", got, tt.want)
			}
		})
	}
}

// ── counted rules ──

func TestCountedInsights(t *testing.T) {
	normal := student{predicted: 97, present: 175, enrolled: 180}
	tests := []struct {
		name      string
		students  []student
		models    risk.Models
		category  Category
		wantCount []int // one count per statement, nil for none
		wantText  string
	}{
		{
			name: "unexcused above percentile",
			students: append(repeat(student{predicted: 97, present: 175, enrolled: 180}, 18),
				repeat(student{predicted: 90, present: 150, enrolled: 180, unexcused: 30}, 2)...),
			category:  UnexcusedOutliers,
			wantCount: []int{2},
			wantText:  "HIGH UNEXCUSED ABSENCES: 2 students (10.0%)",
		},
		{
			name:     "no unexcused absences at all",
			students: repeat(normal, 20),
			category: UnexcusedOutliers,
		},
		{
			name: "chronic absence excludes exactly 80",
			students: []student{
				{predicted: 79.9, present: 140, enrolled: 180},
				{predicted: 80, present: 150, enrolled: 180},
				{predicted: 80, present: 150, enrolled: 180},
				normal,
			},
			category:  ChronicAbsence,
			wantCount: []int{1},
			wantText:  "CHRONIC ABSENCE ALERT: 1 students (25.0%)",
		},
		{
			name:     "no chronic absence",
			students: []student{{predicted: 80, present: 150, enrolled: 180}, normal},
			category: ChronicAbsence,
		},
		{
			name: "attendance trend in both directions",
			students: []student{
				{predicted: 95, present: 171, enrolled: 180, priorPresent: 153, priorEnrolled: 180},
				{predicted: 95, present: 171, enrolled: 180, priorPresent: 144, priorEnrolled: 180},
				{predicted: 80, present: 144, enrolled: 180, priorPresent: 162, priorEnrolled: 180},
				{predicted: 90, present: 162, enrolled: 180, priorPresent: 158, priorEnrolled: 180},
			},
			category:  AttendanceTrend,
			wantCount: []int{2, 1},
			wantText:  "POSITIVE TREND: 2 students (50.0%)",
		},
		{
			name: "declines only",
			students: []student{
				{predicted: 80, present: 144, enrolled: 180, priorPresent: 171, priorEnrolled: 180},
				{predicted: 90, present: 162, enrolled: 180, priorPresent: 162, priorEnrolled: 180},
			},
			category:  AttendanceTrend,
			wantCount: []int{1},
			wantText:  "DECLINING TREND: 1 students (50.0%)",
		},
		{
			name:     "no prior year columns",
			students: []student{{predicted: 80, present: 90, enrolled: 180}, normal},
			category: AttendanceTrend,
		},
		{
			name: "anomalies above the 95th percentile",
			students: append(repeat(student{predicted: 96, present: 175, enrolled: 180, unexcused: 1}, 19),
				student{predicted: 60, present: 100, enrolled: 180, unexcused: 50}),
			models:    risk.Models{Anomaly: unexcusedScore{}},
			category:  Anomalies,
			wantCount: []int{1},
			wantText:  "UNUSUAL PATTERNS: 1 students (5.0%)",
		},
		{
			name:     "anomalies without a detector",
			students: repeat(normal, 20),
			category: Anomalies,
		},
		{
			name: "model prediction",
			students: []student{
				{predicted: 70, present: 126, enrolled: 180},
				{predicted: 84, present: 160, enrolled: 180},
				normal,
				normal,
			},
			models:    risk.Models{Risk: lowRisk{}},
			category:  ModelPrediction,
			wantCount: []int{2},
			wantText:  "AI MODEL PREDICTION: 2 students (50.0%)",
		},
		{
			name:     "model prediction without a classifier",
			students: []student{{predicted: 70, present: 126, enrolled: 180}},
			category: ModelPrediction,
		},
		{
			name: "tier escalation near each floor",
			students: []student{
				{predicted: 80.5, present: 150, enrolled: 180},
				{predicted: 91, present: 165, enrolled: 180},
				{predicted: 95.5, present: 172, enrolled: 180},
				{predicted: 85, present: 153, enrolled: 180},
				{predicted: 97, present: 175, enrolled: 180},
			},
			category:  TierEscalation,
			wantCount: []int{3},
			wantText:  "TIER ESCALATION RISK: 3 students (60.0%) are within 2.0 points",
		},
		{
			name: "high impact needs moderate risk and enrollment",
			students: []student{
				{predicted: 60, present: 108, enrolled: 180}, // risk 40
				{predicted: 30, present: 54, enrolled: 180},  // risk 70
				{predicted: 75, present: 135, enrolled: 180}, // risk 25
				{predicted: 29, present: 52, enrolled: 180},  // risk 71
				{predicted: 50, present: 20, enrolled: 40},   // too few days
			},
			category:  HighImpact,
			wantCount: []int{2},
			wantText:  "HIGH-IMPACT OPPORTUNITY: 2 students",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins, _ := Generate(buildWith(tt.students, tt.models), DefaultOptions(), now)
			got := byCategory(ins, tt.category)
			if len(got) != len(tt.wantCount) {
				t.Fatalf("got %d %s statements, want %d: %v", len(got), tt.category, len(tt.wantCount), got)
			}
			for i, want := range tt.wantCount {
				if got[i].Fact.Count != want {
					t.Errorf("statement %d count = %d, want %d", i, got[i].Fact.Count, want)
				}
			}
			if tt.wantText != "" && !strings.HasPrefix(got[0].Text, tt.wantText) {
				t.Errorf("got %q, want prefix %q", got[0].Text, tt.wantText)
			}
		})
	}
}

func TestAnomalyReviewFollowsDetector(t *testing.T) {
	students := append(repeat(student{predicted: 96, present: 175, enrolled: 180, unexcused: 1}, 19),
		student{predicted: 60, present: 100, enrolled: 180, unexcused: 50})
	ds := buildWith(students, risk.Models{Anomaly: unexcusedScore{}})

	flagged := 0
	for _, r := range ds.Records() {
		if r.Derived.IsAnomaly {
			flagged++
			if *r.Derived.AnomalyScore != 100 {
				t.Errorf("flagged score = %v, want 100", *r.Derived.AnomalyScore)
			}
		}
	}
	if flagged != 1 {
		t.Fatalf("flagged = %d, want 1", flagged)
	}
	_, recs := Generate(ds, DefaultOptions(), now)
	if got := byCategory(recs, AnomalyReview); len(got) != 1 || got[0].Fact.Count != 1 {
		t.Errorf("anomaly review = %v", got)
	}
}

func TestNearFloor(t *testing.T) {
	tests := []struct {
		v    float64
		want bool
	}{
		{79.9, false},
		{80, true},
		{81.9, true},
		{82, false},
		{91, true},
		{96.5, true},
		{97, false},
	}
	for _, tt := range tests {
		if got := nearFloor(tt.v, 2); got != tt.want {
			t.Errorf("nearFloor(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
