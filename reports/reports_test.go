package reports

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"attendance-insights-api/dataset"
	"attendance-insights-api/risk"
)

func sample() *dataset.Dataset {
	rows := []struct {
		district, school, grade string
		predicted, unexcused    float64
	}{
		{"North", "Lincoln", "3", 72, 20},
		{"North", "Lincoln", "3", 88, 2},
		{"North", "Lincoln", "K", 96, 0},
		{"North", "Adams", "3", 92, 1},
		{"South", "Grant", "5", 78, 5},
		{"South", "Grant", "5", 99, 0},
	}
	records := make([]dataset.Record, len(rows))
	for i, r := range rows {
		records[i] = dataset.Record{
			StudentID:           strconv.Itoa(100 + i),
			DistrictName:        r.district,
			SchoolName:          r.school,
			Grade:               r.grade,
			DaysPresent:         dataset.Float(r.predicted * 1.8),
			DaysEnrolled:        dataset.Float(180),
			DaysUnexcused:       dataset.Float(r.unexcused * 1.8),
			PredictedAttendance: r.predicted,
		}
	}
	return risk.Enrich(dataset.New(dataset.Schema{}, records), risk.Models{})
}

func column(t *Table, name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func TestParseType(t *testing.T) {
	if got, err := ParseType(" Tier1 "); err != nil || got != Tier1 {
		t.Errorf("got %q, %v", got, err)
	}
	_, err := ParseType("weekly")
	if !errors.Is(err, ErrInvalidReportType) {
		t.Fatalf("got %v, want ErrInvalidReportType", err)
	}
	if !strings.Contains(err.Error(), "below_85, tier1, tier4, summary, detailed") {
		t.Errorf("message should list valid types: %v", err)
	}
}

func TestStudentReports(t *testing.T) {
	tests := []struct {
		typ  Type
		want []string
	}{
		{Below85, []string{"100", "104"}},
		{Tier4, []string{"100", "104"}},
		{Tier1, []string{"105", "102"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			table, err := Build(tt.typ, sample())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []string
			for _, row := range table.Rows {
				got = append(got, row[0].(string))
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildNoRows(t *testing.T) {
	ds := sample().Where(func(r *dataset.Record) bool { return r.PredictedAttendance < 90 })
	_, err := Build(Tier1, ds)
	if !errors.Is(err, ErrNoRowsForReport) {
		t.Errorf("got %v, want ErrNoRowsForReport", err)
	}
	var re *ReportError
	if !errors.As(err, &re) || re.Type != "tier1" {
		t.Errorf("expected ReportError for tier1, got %v", err)
	}
}

func TestDetailedGuidance(t *testing.T) {
	table, err := Build(Detailed, sample())
	if err != nil {
		t.Fatal(err)
	}
	factors, recs := column(table, "Risk Factors"), column(table, "Recommendations")
	first := table.Rows[0]
	if got := first[factors]; got != "Chronic absenteeism (Tier 4)|High unexcused absences" {
		t.Errorf("factors = %v", got)
	}
	if got := first[recs].(string); !strings.HasPrefix(got, "Intensive intervention required|Family engagement specialist referral|Personalized attendance plan") {
		t.Errorf("recommendations = %v", got)
	}
	if got := table.Rows[2][column(table, "Grade")]; got != "K" {
		t.Errorf("grade label = %v, want K", got)
	}
	if got := table.Rows[2][column(table, "Anomaly Score")]; got != nil {
		t.Errorf("anomaly score without a detector should be blank, got %v", got)
	}
}

func TestSummary(t *testing.T) {
	table, err := Build(Summary, sample())
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, row := range table.Rows {
		keys = append(keys, row[0].(string)+"/"+row[1].(string)+"/"+row[2].(string))
	}
	want := "North/Adams/3,North/Lincoln/K,North/Lincoln/3,South/Grant/5"
	if got := strings.Join(keys, ","); got != want {
		t.Errorf("groups = %s, want %s", got, want)
	}

	lincoln3 := table.Rows[2]
	if lincoln3[column(table, "Total Students")] != 2 {
		t.Errorf("count = %v", lincoln3[3])
	}
	if got := lincoln3[column(table, "Avg Attendance %")]; got != 80.0 {
		t.Errorf("avg = %v, want 80", got)
	}
	if got := lincoln3[column(table, "Std Dev Attendance")]; got != 11.31 {
		t.Errorf("std = %v, want 11.31", got)
	}
	if got := lincoln3[column(table, "Tier 4 %")]; got != 50.0 {
		t.Errorf("tier 4 share = %v", got)
	}
	if got := table.Rows[0][column(table, "Std Dev Attendance")]; got != nil {
		t.Errorf("single student std should be blank, got %v", got)
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		typ  Type
		want string
	}{
		{Below85, "attendance_below_85_20240102_150405.xlsx"},
		{Tier1, "tier1_attendance_20240102_150405.xlsx"},
		{Summary, "attendance_summary_20240102_150405.xlsx"},
	}
	for _, tt := range tests {
		if got := Filename(tt.typ, now, "xlsx"); got != tt.want {
			t.Errorf("got %s, want %s", got, tt.want)
		}
	}
}

// ── writers ──

func TestWriteCSV(t *testing.T) {
	table, _ := Build(Tier4, sample())
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][0] != "Student ID" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][column(table, "Anomaly Score")] != "" {
		t.Error("blank cell should be an empty field")
	}
	if rows[1][column(table, "Predicted Attendance %")] != "72" {
		t.Errorf("got %q", rows[1][4])
	}
}

func TestWriteXLSX(t *testing.T) {
	table, _ := Build(Summary, sample())
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, table); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("summary")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != len(table.Rows)+1 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0][3] != "Total Students" || rows[1][0] != "North" {
		t.Errorf("unexpected content: %v", rows[:2])
	}
}
