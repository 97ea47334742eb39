package risk

import (
	"log"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"attendance-insights-api/dataset"
)

// AnomalyPercentile is the batch percentile above which a normalized anomaly
// score is flagged.
const AnomalyPercentile = 95.0

// Prober yields the classifier's probability that a student is chronically
// absent.
type Prober interface {
	Probability(r *dataset.Record) (float64, error)
}

// Scorer yields an outlier score where larger means more unusual.
type Scorer interface {
	Score(r *dataset.Record) (float64, error)
}

type Assigner interface {
	Assign(r *dataset.Record) (int, error)
}

// Models carries whichever trained models are available. Nil fields are
// skipped and their columns fall back to the rule-based values.
type Models struct {
	Risk    Prober
	Anomaly Scorer
	Cluster Assigner
}

// Enrich computes every derived column for a dataset and returns the enriched
// copy. Model failures degrade to the rule-based score; they never fail the
// whole batch.
func Enrich(ds *dataset.Dataset, m Models) *dataset.Dataset {
	records := ds.Records()

	var probs []float64
	if m.Risk != nil {
		probs = make([]float64, len(records))
		for i := range records {
			p, err := m.Risk.Probability(&records[i])
			if err != nil {
				log.Printf("warning: risk probability failed, using rule-based score: %v", err)
				probs = nil
				break
			}
			probs[i] = p
		}
	}

	var anomalyScores []float64
	var anomalyFlags []bool
	if m.Anomaly != nil {
		raw := make([]float64, len(records))
		ok := true
		for i := range records {
			s, err := m.Anomaly.Score(&records[i])
			if err != nil {
				log.Printf("warning: anomaly scoring failed, skipping anomaly columns: %v", err)
				ok = false
				break
			}
			raw[i] = s
		}
		if ok {
			anomalyScores, anomalyFlags = NormalizeAnomalies(raw)
		}
	}

	var clusters []int
	if m.Cluster != nil {
		clusters = make([]int, len(records))
		for i := range records {
			c, err := m.Cluster.Assign(&records[i])
			if err != nil {
				log.Printf("warning: cluster assignment failed: %v", err)
				clusters = nil
				break
			}
			clusters[i] = c
		}
	}

	return ds.WithDerived(func(i int, r *dataset.Record) dataset.Derived {
		var prob *float64
		if probs != nil {
			prob = dataset.Float(probs[i])
		}
		a := Classify(r.PredictedAttendance, prob)
		d := dataset.Derived{
			RiskScore:       a.RiskScore,
			Tier:            a.Tier,
			RiskLevel:       a.RiskLevel,
			RiskProbability: prob,
		}
		if anomalyScores != nil {
			d.AnomalyScore = dataset.Float(anomalyScores[i])
			d.IsAnomaly = anomalyFlags[i]
		}
		if clusters != nil {
			d.Cluster = dataset.Int(clusters[i])
		}
		return d
	})
}

// NormalizeAnomalies min-max scales raw outlier scores to 0-100 across the
// batch and flags those above the batch's 95th percentile.
func NormalizeAnomalies(raw []float64) ([]float64, []bool) {
	if len(raw) == 0 {
		return nil, nil
	}
	lo, hi := floats.Min(raw), floats.Max(raw)
	scaled := make([]float64, len(raw))
	if hi > lo {
		for i, v := range raw {
			scaled[i] = (v - lo) / (hi - lo) * 100
		}
	}
	cut := Percentile(scaled, AnomalyPercentile)
	flags := make([]bool, len(raw))
	for i, v := range scaled {
		flags[i] = v > cut
	}
	return scaled, flags
}

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation. The input is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p/100, stat.LinInterp, sorted, nil)
}
