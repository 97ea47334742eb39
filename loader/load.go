package loader

import (
	"context"
	"log"
	"math"
	"strconv"
	"strings"

	"attendance-insights-api/dataset"
)

// Source column names, matched case-insensitively.
const (
	colStudentID           = "STUDENT_ID"
	colSchoolYear          = "SCHOOL_YEAR"
	colDistrictCode        = "DISTRICT_CODE"
	colDistrictName        = "DISTRICT_NAME"
	colLocationID          = "LOCATION_ID"
	colSchoolName          = "SCHOOL_NAME"
	colGrade               = "STUDENT_GRADE_LEVEL"
	colGradeAlias          = "GRADE_LEVEL"
	colDaysPresent         = "TOTAL_DAYS_PRESENT"
	colDaysEnrolled        = "TOTAL_DAYS_ENROLLED"
	colDaysUnexcused       = "TOTAL_DAYS_UNEXCUSED_ABSENT"
	colPriorPresent        = "PRIOR_DAYS_PRESENT"
	colPriorEnrolled       = "PRIOR_DAYS_ENROLLED"
	colPriorUnexcused      = "PRIOR_DAYS_UNEXCUSED_ABSENT"
	colPredictions         = "PREDICTIONS"
	colPredictedAttendance = "PREDICTED_ATTENDANCE"
	colDistrictPrediction  = "PREDICTIONS_DISTRICT"
	colSchoolPrediction    = "PREDICTIONS_SCHOOL"
	colGradePrediction     = "PREDICTIONS_GRADE"
)

type Options struct {
	CurrentSchoolYear int
}

type columns map[string]int

func indexHeader(header []string) columns {
	idx := make(columns, len(header))
	for i, h := range header {
		key := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func (c columns) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columns) number(row []string, name string) *float64 {
	v, ok := parseNumber(c.get(row, name))
	if !ok {
		return nil
	}
	return &v
}

// Load reads the source and returns the validated dataset for the configured
// school year, one row per student.
func Load(ctx context.Context, src Source, opts Options) (*dataset.Dataset, error) {
	t, err := src.Read(ctx)
	if err != nil {
		return nil, unreadable(src.Name(), err)
	}
	return Validate(src.Name(), t, opts)
}

// Validate turns a raw table into a dataset: year filter, de-duplication,
// required column checks and typed parsing.
func Validate(name string, t *RawTable, opts Options) (*dataset.Dataset, error) {
	if t == nil || len(t.Rows) == 0 {
		return nil, &LoadError{Kind: EmptySource, Source: name}
	}
	cols := indexHeader(t.Header)

	if !cols.has(colStudentID) {
		return nil, &LoadError{Kind: MissingColumn, Source: name, Column: "STUDENT_ID"}
	}
	predCol := colPredictions
	if !cols.has(colPredictions) {
		if !cols.has(colPredictedAttendance) {
			return nil, &LoadError{Kind: MissingColumn, Source: name, Column: "Predictions"}
		}
		predCol = colPredictedAttendance
	}

	schema := schemaFor(cols)
	schema.Predictions = predCol == colPredictions

	rows := t.Rows
	if schema.SchoolYear {
		rows = filterYear(cols, rows, opts.CurrentSchoolYear)
	}
	rows = dedupe(cols, rows)

	predScale := scaleFor(cols, rows, predCol)
	districtScale := scaleFor(cols, rows, colDistrictPrediction)
	schoolScale := scaleFor(cols, rows, colSchoolPrediction)
	gradeScale := scaleFor(cols, rows, colGradePrediction)

	records := make([]dataset.Record, 0, len(rows))
	skipped, clamped := 0, 0
	for _, row := range rows {
		pred, ok := parseNumber(cols.get(row, predCol))
		if !ok {
			skipped++
			continue
		}
		r := dataset.Record{
			StudentID:           cols.get(row, colStudentID),
			DistrictCode:        cols.get(row, colDistrictCode),
			DistrictName:        cols.get(row, colDistrictName),
			LocationID:          cols.get(row, colLocationID),
			SchoolName:          cols.get(row, colSchoolName),
			Grade:               gradeValue(cols, row),
			DaysPresent:         cols.number(row, colDaysPresent),
			DaysEnrolled:        cols.number(row, colDaysEnrolled),
			DaysUnexcused:       cols.number(row, colDaysUnexcused),
			PriorPresent:        cols.number(row, colPriorPresent),
			PriorEnrolled:       cols.number(row, colPriorEnrolled),
			PriorUnexcused:      cols.number(row, colPriorUnexcused),
			PredictedAttendance: clampPercent(pred * predScale),
			DistrictPrediction:  scaled(cols.number(row, colDistrictPrediction), districtScale),
			SchoolPrediction:    scaled(cols.number(row, colSchoolPrediction), schoolScale),
			GradePrediction:     scaled(cols.number(row, colGradePrediction), gradeScale),
		}
		if y, ok := parseNumber(cols.get(row, colSchoolYear)); ok {
			r.SchoolYear = dataset.Int(int(y))
		}
		if r.DaysPresent != nil && r.DaysEnrolled != nil && *r.DaysPresent > *r.DaysEnrolled {
			r.DaysPresent = dataset.Float(*r.DaysEnrolled)
			clamped++
		}
		if len(schema.Demographics) > 0 {
			r.Demographics = make(map[string]string, len(schema.Demographics))
			for _, d := range schema.Demographics {
				r.Demographics[d] = cols.get(row, d)
			}
		}
		records = append(records, r)
	}
	if skipped > 0 {
		log.Printf("warning: dropped %d rows without a usable %s value", skipped, predCol)
	}
	if clamped > 0 {
		log.Printf("warning: clamped days present to days enrolled on %d rows", clamped)
	}
	if len(records) == 0 {
		return nil, &LoadError{Kind: EmptySource, Source: name}
	}

	log.Printf("dataset loaded: source=%s students=%d", name, len(records))
	return dataset.New(schema, records), nil
}

func schemaFor(cols columns) dataset.Schema {
	s := dataset.Schema{
		SchoolYear:         cols.has(colSchoolYear),
		DistrictCode:       cols.has(colDistrictCode),
		DistrictName:       cols.has(colDistrictName),
		LocationID:         cols.has(colLocationID),
		SchoolName:         cols.has(colSchoolName),
		Grade:              cols.has(colGrade) || cols.has(colGradeAlias),
		DaysPresent:        cols.has(colDaysPresent),
		DaysEnrolled:       cols.has(colDaysEnrolled),
		DaysUnexcused:      cols.has(colDaysUnexcused),
		PriorAttendance:    cols.has(colPriorPresent) && cols.has(colPriorEnrolled),
		PriorUnexcused:     cols.has(colPriorUnexcused) && cols.has(colPriorEnrolled),
		DistrictPrediction: cols.has(colDistrictPrediction),
		SchoolPrediction:   cols.has(colSchoolPrediction),
		GradePrediction:    cols.has(colGradePrediction),
	}
	for _, d := range dataset.DemographicColumns {
		if cols.has(d) {
			s.Demographics = append(s.Demographics, d)
		}
	}
	return s
}

// filterYear keeps rows of the current year. When none match the full set is
// kept and a warning is logged.
func filterYear(cols columns, rows [][]string, year int) [][]string {
	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		y, ok := parseNumber(cols.get(row, colSchoolYear))
		if ok && int(y) == year && y == math.Trunc(y) {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		log.Printf("warning: no rows for school year %d, using all %d rows", year, len(rows))
		return rows
	}
	log.Printf("filtered to school year %d: %d of %d rows", year, len(kept), len(rows))
	return kept
}

// dedupe keeps the first row per student id and drops rows without one.
func dedupe(cols columns, rows [][]string) [][]string {
	seen := make(map[string]struct{}, len(rows))
	out := make([][]string, 0, len(rows))
	blank := 0
	for _, row := range rows {
		id := cols.get(row, colStudentID)
		if id == "" {
			blank++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, row)
	}
	if blank > 0 {
		log.Printf("warning: dropped %d rows without a student id", blank)
	}
	if removed := len(rows) - blank - len(out); removed > 0 {
		log.Printf("removed %d duplicate student rows", removed)
	}
	return out
}

// scaleFor returns 100 when a prediction column holds fractions (every value
// within [0,1]) and 1 when it already holds percentages.
func scaleFor(cols columns, rows [][]string, name string) float64 {
	if !cols.has(name) || name == colPredictedAttendance {
		return 1
	}
	for _, row := range rows {
		if v, ok := parseNumber(cols.get(row, name)); ok && v > 1 {
			return 1
		}
	}
	return 100
}

func gradeValue(cols columns, row []string) string {
	if cols.has(colGrade) {
		return cols.get(row, colGrade)
	}
	return cols.get(row, colGradeAlias)
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func scaled(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	return dataset.Float(*v * factor)
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
