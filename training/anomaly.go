package training

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"attendance-insights-api/dataset"
)

const (
	AnomalyModelName = "anomaly_detector"

	anomalyMinRows   = 20
	anomalyTrees     = 100
	anomalySubsample = 256
	thresholdQuant   = 0.95
	eulerGamma       = 0.5772156649015329
)

// IsolationNode is a split (Left/Right >= 0) or a leaf holding Size samples.
type IsolationNode struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Left    int     `json:"l"`
	Right   int     `json:"r"`
	Size    int     `json:"n"`
}

type IsolationTree struct {
	Nodes []IsolationNode `json:"nodes"`
}

// AnomalyDetector is an isolation forest over robust-scaled attendance and
// unexcused-absence rates.
type AnomalyDetector struct {
	Encoder       *Encoder        `json:"encoder"`
	Trees         []IsolationTree `json:"trees"`
	SampleSize    int             `json:"sample_size"`
	Contamination float64         `json:"contamination"`
	// Offset is the score above which the contamination share of training
	// rows lies.
	Offset float64 `json:"offset"`
	// Threshold is the 95th percentile of training scores.
	Threshold float64 `json:"threshold"`
	Rows      int     `json:"rows"`
}

func (m *AnomalyDetector) Name() string      { return AnomalyModelName }
func (m *AnomalyDetector) Columns() []string { return m.Encoder.Columns() }

func AnomalyColumns(dataset.Schema) []string {
	return []string{FeatureAttendance, FeatureUnexcused}
}

// Contamination is the expected outlier share for n rows.
func Contamination(n int) float64 {
	if n <= 0 {
		return 0.1
	}
	return math.Min(0.10, 5/float64(n))
}

func TrainAnomalyDetector(ctx context.Context, ds *dataset.Dataset) (*AnomalyDetector, error) {
	schema := ds.Schema()
	n := ds.Len()
	if !schema.HasAttendance() || !schema.HasUnexcused() {
		return nil, fitFailed(AnomalyModelName, n, "attendance or unexcused columns unavailable")
	}
	if n < anomalyMinRows {
		return nil, insufficient(AnomalyModelName, n, anomalyMinRows)
	}

	records := ds.Records()
	enc, err := fitEncoder(records, []string{FeatureAttendance, FeatureUnexcused}, nil, robustScaling)
	if err != nil {
		return nil, fitFailed(AnomalyModelName, n, "%v", err)
	}
	X := enc.matrix(records)

	psi := anomalySubsample
	if n < psi {
		psi = n
	}
	limit := int(math.Ceil(math.Log2(float64(psi))))
	rng := rand.New(rand.NewSource(42))

	m := &AnomalyDetector{
		Encoder:       enc,
		SampleSize:    psi,
		Contamination: Contamination(n),
		Rows:          n,
	}
	for t := 0; t < anomalyTrees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, &TrainError{Model: AnomalyModelName, Rows: n, Err: errors.Join(ErrTimeout, err)}
		}
		sample := rng.Perm(n)[:psi]
		tree := IsolationTree{}
		tree.grow(X, sample, 0, limit, rng)
		m.Trees = append(m.Trees, tree)
	}

	scores := make([]float64, n)
	for i, x := range X {
		scores[i] = m.score(x)
	}
	sort.Float64s(scores)
	m.Threshold = stat.Quantile(thresholdQuant, stat.LinInterp, scores, nil)
	m.Offset = stat.Quantile(1-m.Contamination, stat.LinInterp, scores, nil)
	return m, nil
}

func (t *IsolationTree) grow(X [][]float64, idx []int, depth, limit int, rng *rand.Rand) int {
	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, IsolationNode{Left: -1, Right: -1, Size: len(idx)})
	if depth >= limit || len(idx) <= 1 {
		return node
	}
	for _, f := range rng.Perm(len(X[idx[0]])) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			lo = math.Min(lo, X[i][f])
			hi = math.Max(hi, X[i][f])
		}
		if hi <= lo {
			continue
		}
		split := lo + rng.Float64()*(hi-lo)
		var left, right []int
		for _, i := range idx {
			if X[i][f] < split {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		l := t.grow(X, left, depth+1, limit, rng)
		r := t.grow(X, right, depth+1, limit, rng)
		t.Nodes[node].Feature = f
		t.Nodes[node].Split = split
		t.Nodes[node].Left = l
		t.Nodes[node].Right = r
		return node
	}
	return node
}

func (t *IsolationTree) pathLength(x []float64) float64 {
	depth := 0.0
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return depth + averagePath(n.Size)
		}
		if x[n.Feature] < n.Split {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// averagePath is the expected path length of an unsuccessful search in a
// binary search tree of n nodes.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	f := float64(n)
	return 2*(math.Log(f-1)+eulerGamma) - 2*(f-1)/f
}

func (m *AnomalyDetector) score(x []float64) float64 {
	if len(m.Trees) == 0 {
		return 0
	}
	total := 0.0
	for i := range m.Trees {
		total += m.Trees[i].pathLength(x)
	}
	mean := total / float64(len(m.Trees))
	c := averagePath(m.SampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}

// Score is the outlier score in (0, 1]; larger is more unusual.
func (m *AnomalyDetector) Score(r *dataset.Record) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, errors.New("anomaly detector: no trees")
	}
	return m.score(m.Encoder.Encode(r)), nil
}

// IsOutlier applies the contamination cutoff.
func (m *AnomalyDetector) IsOutlier(r *dataset.Record) bool {
	s, err := m.Score(r)
	return err == nil && s > m.Offset
}
