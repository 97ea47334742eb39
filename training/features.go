package training

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"attendance-insights-api/dataset"
	"attendance-insights-api/filter"
)

const (
	FeatureAttendance = "attendance_rate"
	FeatureUnexcused  = "unexcused_rate"
	FeatureGrade      = "grade_level"

	missingLevel = "MISSING"
)

type scaling int

const (
	standardScaling scaling = iota
	robustScaling
)

// Category is a one-hot encoded column and its known levels.
type Category struct {
	Column string   `json:"column"`
	Levels []string `json:"levels"`
}

// Encoder turns a record into a dense feature vector: imputed and scaled
// numeric features followed by one-hot categorical levels.
type Encoder struct {
	Numeric    []string   `json:"numeric"`
	Fill       []float64  `json:"fill"`
	Center     []float64  `json:"center"`
	Scale      []float64  `json:"scale"`
	Categories []Category `json:"categories"`
}

func numericValue(name string, r *dataset.Record) (float64, bool) {
	switch name {
	case FeatureAttendance:
		return r.AttendanceRate()
	case FeatureUnexcused:
		return r.UnexcusedRate()
	case FeatureGrade:
		g, ok := filter.GradeLevel(r.Grade)
		return float64(g), ok
	}
	return 0, false
}

func categoryValue(column string, r *dataset.Record) string {
	v := r.Demographic(column)
	if v == "" {
		return missingLevel
	}
	return v
}

func fitEncoder(records []dataset.Record, numeric, categorical []string, mode scaling) (*Encoder, error) {
	e := &Encoder{Numeric: numeric}
	for _, name := range numeric {
		values := make([]float64, 0, len(records))
		for i := range records {
			if v, ok := numericValue(name, &records[i]); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("feature %s has no values", name)
		}
		sort.Float64s(values)
		median := stat.Quantile(0.5, stat.LinInterp, values, nil)

		imputed := make([]float64, len(records))
		for i := range records {
			if v, ok := numericValue(name, &records[i]); ok {
				imputed[i] = v
			} else {
				imputed[i] = median
			}
		}

		var center, scale float64
		switch mode {
		case robustScaling:
			sort.Float64s(imputed)
			center = median
			scale = stat.Quantile(0.75, stat.LinInterp, imputed, nil) - stat.Quantile(0.25, stat.LinInterp, imputed, nil)
		default:
			mean, variance := stat.MeanVariance(imputed, nil)
			center, scale = mean, math.Sqrt(variance)
		}
		if scale == 0 || math.IsNaN(scale) {
			scale = 1
		}
		e.Fill = append(e.Fill, median)
		e.Center = append(e.Center, center)
		e.Scale = append(e.Scale, scale)
	}

	for _, col := range categorical {
		seen := map[string]struct{}{}
		for i := range records {
			seen[categoryValue(col, &records[i])] = struct{}{}
		}
		levels := make([]string, 0, len(seen))
		for l := range seen {
			levels = append(levels, l)
		}
		sort.Strings(levels)
		e.Categories = append(e.Categories, Category{Column: col, Levels: levels})
	}
	return e, nil
}

// Columns lists the source columns the encoder reads.
func (e *Encoder) Columns() []string {
	out := append([]string(nil), e.Numeric...)
	for _, c := range e.Categories {
		out = append(out, c.Column)
	}
	return out
}

// Features lists the expanded feature names in vector order.
func (e *Encoder) Features() []string {
	out := append([]string(nil), e.Numeric...)
	for _, c := range e.Categories {
		for _, l := range c.Levels {
			out = append(out, c.Column+"="+l)
		}
	}
	return out
}

func (e *Encoder) Width() int {
	w := len(e.Numeric)
	for _, c := range e.Categories {
		w += len(c.Levels)
	}
	return w
}

// Encode builds the feature vector. Unseen categorical levels encode as all
// zeros.
func (e *Encoder) Encode(r *dataset.Record) []float64 {
	x := make([]float64, 0, e.Width())
	for i, name := range e.Numeric {
		v, ok := numericValue(name, r)
		if !ok {
			v = e.Fill[i]
		}
		x = append(x, (v-e.Center[i])/e.Scale[i])
	}
	for _, c := range e.Categories {
		v := categoryValue(c.Column, r)
		for _, l := range c.Levels {
			if l == v {
				x = append(x, 1)
			} else {
				x = append(x, 0)
			}
		}
	}
	return x
}

func (e *Encoder) matrix(records []dataset.Record) [][]float64 {
	X := make([][]float64, len(records))
	for i := range records {
		X[i] = e.Encode(&records[i])
	}
	return X
}

// demographicColumns returns the demographic columns present in the schema.
func demographicColumns(s dataset.Schema) []string {
	return append([]string(nil), s.Demographics...)
}
