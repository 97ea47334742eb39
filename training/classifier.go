package training

import (
	"context"
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"attendance-insights-api/dataset"
)

const (
	RiskModelName = "risk_classifier"

	riskMinRows     = 50
	riskLabelCutoff = 85.0
	riskIterations  = 400
	riskLearnRate   = 0.5
	riskL2          = 1e-3
	topImportances  = 20
)

type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// RiskClassifier is a class-balanced logistic regression predicting whether a
// student's attendance rate falls below 85%.
type RiskClassifier struct {
	Encoder     *Encoder        `json:"encoder"`
	Weights     []float64       `json:"weights"`
	Bias        float64         `json:"bias"`
	Importances []FeatureWeight `json:"importances"`
	Rows        int             `json:"rows"`
}

func (m *RiskClassifier) Name() string      { return RiskModelName }
func (m *RiskClassifier) Columns() []string { return m.Encoder.Columns() }

// RiskColumns lists the source columns the classifier would train on.
func RiskColumns(s dataset.Schema) []string {
	cols := []string{FeatureAttendance}
	if s.HasUnexcused() {
		cols = append(cols, FeatureUnexcused)
	}
	return append(cols, demographicColumns(s)...)
}

func TrainRiskClassifier(ctx context.Context, ds *dataset.Dataset) (*RiskClassifier, error) {
	schema := ds.Schema()
	if !schema.HasAttendance() {
		return nil, fitFailed(RiskModelName, ds.Len(), "attendance columns unavailable")
	}

	var records []dataset.Record
	for _, r := range ds.Records() {
		if _, ok := r.AttendanceRate(); ok {
			records = append(records, r)
		}
	}
	n := len(records)
	if n < riskMinRows {
		return nil, insufficient(RiskModelName, n, riskMinRows)
	}

	numeric := []string{FeatureAttendance}
	if schema.HasUnexcused() {
		numeric = append(numeric, FeatureUnexcused)
	}
	enc, err := fitEncoder(records, numeric, demographicColumns(schema), standardScaling)
	if err != nil {
		return nil, fitFailed(RiskModelName, n, "%v", err)
	}

	X := enc.matrix(records)
	y := make([]float64, n)
	positives := 0
	for i := range records {
		rate, _ := records[i].AttendanceRate()
		if rate < riskLabelCutoff {
			y[i] = 1
			positives++
		}
	}
	if positives == 0 || positives == n {
		return nil, fitFailed(RiskModelName, n, "label has a single class")
	}

	// Balanced class weights: n / (2 * count(class)).
	wPos := float64(n) / (2 * float64(positives))
	wNeg := float64(n) / (2 * float64(n-positives))

	d := enc.Width()
	w := make([]float64, d)
	grad := make([]float64, d)
	var b float64
	for iter := 0; iter < riskIterations; iter++ {
		if iter%25 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &TrainError{Model: RiskModelName, Rows: n, Err: errors.Join(ErrTimeout, err)}
			}
		}
		for j := range grad {
			grad[j] = 0
		}
		var gradB float64
		for i, x := range X {
			p := sigmoid(floats.Dot(w, x) + b)
			cw := wNeg
			if y[i] == 1 {
				cw = wPos
			}
			g := cw * (p - y[i])
			floats.AddScaled(grad, g, x)
			gradB += g
		}
		floats.Scale(1/float64(n), grad)
		floats.AddScaled(grad, riskL2, w)
		floats.AddScaled(w, -riskLearnRate, grad)
		b -= riskLearnRate * gradB / float64(n)
	}
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fitFailed(RiskModelName, n, "weights diverged")
		}
	}

	return &RiskClassifier{
		Encoder:     enc,
		Weights:     w,
		Bias:        b,
		Importances: importances(enc.Features(), w),
		Rows:        n,
	}, nil
}

// Probability is the classifier's probability that the student is below 85%.
func (m *RiskClassifier) Probability(r *dataset.Record) (float64, error) {
	x := m.Encoder.Encode(r)
	if len(x) != len(m.Weights) {
		return 0, errors.New("risk classifier: feature width mismatch")
	}
	return sigmoid(floats.Dot(m.Weights, x) + m.Bias), nil
}

// importances normalizes absolute coefficients on standardized features and
// keeps the strongest twenty.
func importances(names []string, w []float64) []FeatureWeight {
	total := 0.0
	for _, v := range w {
		total += math.Abs(v)
	}
	out := make([]FeatureWeight, len(w))
	for i, v := range w {
		weight := 0.0
		if total > 0 {
			weight = math.Abs(v) / total
		}
		out[i] = FeatureWeight{Feature: names[i], Weight: weight}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Feature < out[j].Feature
	})
	if len(out) > topImportances {
		out = out[:topImportances]
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
