package reports

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"attendance-insights-api/dataset"
	"attendance-insights-api/risk"
)

type Type string

const (
	Below85  Type = "below_85"
	Tier1    Type = "tier1"
	Tier4    Type = "tier4"
	Summary  Type = "summary"
	Detailed Type = "detailed"
)

var Types = []Type{Below85, Tier1, Tier4, Summary, Detailed}

var (
	ErrInvalidReportType = errors.New("invalid report type")
	ErrNoRowsForReport   = errors.New("no rows for report")
)

// ReportError ties a failure to the requested report type.
type ReportError struct {
	Type string
	Err  error
}

func (e *ReportError) Error() string {
	if errors.Is(e.Err, ErrInvalidReportType) {
		return fmt.Sprintf("invalid report type %q, valid types are: %s", e.Type, joinTypes())
	}
	return fmt.Sprintf("%s report: %v", e.Type, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

func joinTypes() string {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// ParseType accepts a report type name in any case.
func ParseType(name string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", &ReportError{Type: name, Err: ErrInvalidReportType}
}

// Table is a rendered report. Cells hold string, int, float64 or nil for a
// blank cell.
type Table struct {
	Type    Type
	Columns []string
	Rows    [][]any
}

// Build renders report t from ds. A report that selects no students is
// reported as ErrNoRowsForReport.
func Build(t Type, ds *dataset.Dataset) (*Table, error) {
	var table *Table
	switch t {
	case Below85:
		table = detailed(t, selectStudents(ds, func(r *dataset.Record) bool {
			return r.PredictedAttendance < risk.AtRiskThreshold
		}, true))
	case Tier1:
		table = detailed(t, selectStudents(ds, func(r *dataset.Record) bool {
			return r.Derived.Tier == dataset.Tier1
		}, false))
	case Tier4:
		table = detailed(t, selectStudents(ds, func(r *dataset.Record) bool {
			return r.Derived.Tier == dataset.Tier4
		}, true))
	case Summary:
		table = summary(ds.Records())
	case Detailed:
		table = detailed(t, ds.Records())
	default:
		return nil, &ReportError{Type: string(t), Err: ErrInvalidReportType}
	}
	if len(table.Rows) == 0 {
		return nil, &ReportError{Type: string(t), Err: ErrNoRowsForReport}
	}
	return table, nil
}

// selectStudents keeps matching records sorted by predicted attendance. Ties
// keep source order.
func selectStudents(ds *dataset.Dataset, keep func(*dataset.Record) bool, ascending bool) []dataset.Record {
	out := ds.Where(keep).Records()
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].PredictedAttendance < out[j].PredictedAttendance
		}
		return out[i].PredictedAttendance > out[j].PredictedAttendance
	})
	return out
}

var filenamePrefix = map[Type]string{
	Below85:  "attendance_below_85",
	Tier1:    "tier1_attendance",
	Tier4:    "tier4_attendance",
	Summary:  "attendance_summary",
	Detailed: "attendance_detailed",
}

// Filename is the download name for a report generated at now, e.g.
// tier1_attendance_20240102_150405.xlsx.
func Filename(t Type, now time.Time, ext string) string {
	return fmt.Sprintf("%s_%s.%s", filenamePrefix[t], now.Format("20060102_150405"), ext)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
