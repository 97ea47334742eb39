package reports

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"attendance-insights-api/dataset"
	"attendance-insights-api/filter"
)

var summaryColumns = []string{
	"District", "School", "Grade", "Total Students",
	"Avg Attendance %", "Min Attendance %", "Max Attendance %", "Std Dev Attendance",
	"Avg Risk Score", "Min Risk Score", "Max Risk Score",
	"Tier 4 Count", "Tier 3 Count", "Tier 2 Count", "Tier 1 Count",
	"Tier 4 %", "Tier 3 %", "Tier 2 %", "Tier 1 %",
}

var summaryTiers = []dataset.Tier{dataset.Tier4, dataset.Tier3, dataset.Tier2, dataset.Tier1}

type groupKey struct {
	district, school, grade string
}

type group struct {
	attendance []float64
	risk       []float64
	tiers      map[dataset.Tier]int
}

func summary(records []dataset.Record) *Table {
	groups := make(map[groupKey]*group)
	for i := range records {
		r := &records[i]
		k := groupKey{districtLabel(r), schoolLabel(r), filter.NormalizeGrade(r.Grade)}
		g, ok := groups[k]
		if !ok {
			g = &group{tiers: make(map[dataset.Tier]int)}
			groups[k] = g
		}
		g.attendance = append(g.attendance, r.PredictedAttendance)
		g.risk = append(g.risk, r.Derived.RiskScore)
		g.tiers[r.Derived.Tier]++
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.district != b.district {
			return a.district < b.district
		}
		if a.school != b.school {
			return a.school < b.school
		}
		return filter.GradeLess(a.grade, b.grade)
	})

	table := &Table{Type: Summary, Columns: summaryColumns}
	for _, k := range keys {
		g := groups[k]
		n := len(g.attendance)

		// Sample standard deviation is undefined for one student.
		var std any
		if n > 1 {
			std = round2(stat.StdDev(g.attendance, nil))
		}
		row := []any{
			k.district, k.school, filter.GradeLabel(k.grade), n,
			round2(stat.Mean(g.attendance, nil)),
			round2(floats.Min(g.attendance)),
			round2(floats.Max(g.attendance)),
			std,
			round2(stat.Mean(g.risk, nil)),
			round2(floats.Min(g.risk)),
			round2(floats.Max(g.risk)),
		}
		for _, t := range summaryTiers {
			row = append(row, g.tiers[t])
		}
		for _, t := range summaryTiers {
			row = append(row, round2(float64(g.tiers[t])/float64(n)*100))
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
