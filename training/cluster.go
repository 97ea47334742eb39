package training

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"attendance-insights-api/dataset"
)

const (
	ClusterModelName = "cluster_model"

	clusterMinRows      = 10
	clusterRowsPerK     = 10
	clusterMaxK         = 10
	clusterDefaultK     = 3
	clusterRestarts     = 3
	clusterIterations   = 100
	clusterElbowSample  = 5000
	clusterElbowRestart = 2
)

// ClusterModel is a k-means partition of students over attendance, unexcused
// absences, grade and demographics.
type ClusterModel struct {
	Encoder        *Encoder    `json:"encoder"`
	K              int         `json:"k"`
	Centroids      [][]float64 `json:"centroids"`
	Inertia        float64     `json:"inertia"`
	Sizes          []int       `json:"sizes"`
	MeanAttendance []float64   `json:"mean_attendance"`
	// Elbow holds the inertia curve for k = 1..len(Elbow) when the elbow
	// heuristic chose K.
	Elbow []float64 `json:"elbow,omitempty"`
	Rows  int       `json:"rows"`
}

func (m *ClusterModel) Name() string      { return ClusterModelName }
func (m *ClusterModel) Columns() []string { return m.Encoder.Columns() }

func ClusterColumns(s dataset.Schema) []string {
	cols := clusterNumeric(s)
	return append(cols, demographicColumns(s)...)
}

func clusterNumeric(s dataset.Schema) []string {
	var cols []string
	if s.HasAttendance() {
		cols = append(cols, FeatureAttendance)
	}
	if s.HasUnexcused() {
		cols = append(cols, FeatureUnexcused)
	}
	if s.Grade {
		cols = append(cols, FeatureGrade)
	}
	return cols
}

func TrainClusterModel(ctx context.Context, ds *dataset.Dataset) (*ClusterModel, error) {
	n := ds.Len()
	if n < clusterMinRows {
		return nil, insufficient(ClusterModelName, n, clusterMinRows)
	}
	schema := ds.Schema()
	numeric := clusterNumeric(schema)
	if len(numeric) == 0 {
		return nil, fitFailed(ClusterModelName, n, "no numeric features available")
	}

	records := ds.Records()
	enc, err := fitEncoder(records, numeric, demographicColumns(schema), standardScaling)
	if err != nil {
		return nil, fitFailed(ClusterModelName, n, "%v", err)
	}
	X := enc.matrix(records)
	rng := rand.New(rand.NewSource(42))

	k := clusterDefaultK
	var curve []float64
	maxK := n / clusterRowsPerK
	if maxK > clusterMaxK {
		maxK = clusterMaxK
	}
	if maxK >= 3 {
		sample := X
		if len(X) > clusterElbowSample {
			sample = make([][]float64, clusterElbowSample)
			for i, j := range rng.Perm(len(X))[:clusterElbowSample] {
				sample[i] = X[j]
			}
		}
		curve = make([]float64, 0, maxK)
		for kk := 1; kk <= maxK; kk++ {
			_, _, inertia, err := kmeans(ctx, sample, kk, clusterElbowRestart, rng)
			if err != nil {
				return nil, &TrainError{Model: ClusterModelName, Rows: n, Err: errors.Join(ErrTimeout, err)}
			}
			curve = append(curve, inertia)
		}
		k = ElbowK(curve)
	}
	if k > n {
		k = n
	}

	centroids, labels, inertia, err := kmeans(ctx, X, k, clusterRestarts, rng)
	if err != nil {
		return nil, &TrainError{Model: ClusterModelName, Rows: n, Err: errors.Join(ErrTimeout, err)}
	}

	sizes := make([]int, k)
	sums := make([]float64, k)
	counts := make([]int, k)
	for i, c := range labels {
		sizes[c]++
		if rate, ok := records[i].AttendanceRate(); ok {
			sums[c] += rate
			counts[c]++
		} else {
			sums[c] += records[i].PredictedAttendance
			counts[c]++
		}
	}
	means := make([]float64, k)
	for c := range means {
		if counts[c] > 0 {
			means[c] = sums[c] / float64(counts[c])
		}
	}

	return &ClusterModel{
		Encoder:        enc,
		K:              k,
		Centroids:      centroids,
		Inertia:        inertia,
		Sizes:          sizes,
		MeanAttendance: means,
		Elbow:          curve,
		Rows:           n,
	}, nil
}

// ElbowK picks k from an inertia curve indexed by k-1: the argmax of the
// second difference plus two, clamped to [2, len(curve)].
func ElbowK(curve []float64) int {
	maxK := len(curve)
	if maxK < 3 {
		return clusterDefaultK
	}
	best, bestVal := 0, math.Inf(-1)
	for j := 0; j+2 < len(curve); j++ {
		d2 := curve[j+2] - 2*curve[j+1] + curve[j]
		if d2 > bestVal {
			best, bestVal = j, d2
		}
	}
	k := best + 2
	if k < 2 {
		k = 2
	}
	if k > maxK {
		k = maxK
	}
	return k
}

// Assign returns the nearest centroid.
func (m *ClusterModel) Assign(r *dataset.Record) (int, error) {
	if len(m.Centroids) == 0 {
		return 0, errors.New("cluster model: no centroids")
	}
	c, _ := nearest(m.Centroids, m.Encoder.Encode(r))
	return c, nil
}

func kmeans(ctx context.Context, X [][]float64, k, restarts int, rng *rand.Rand) ([][]float64, []int, float64, error) {
	var bestC [][]float64
	var bestL []int
	best := math.Inf(1)
	for run := 0; run < restarts; run++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}
		c, l, inertia := lloyd(X, seedPlusPlus(X, k, rng))
		if inertia < best {
			bestC, bestL, best = c, l, inertia
		}
	}
	return bestC, bestL, best, nil
}

func seedPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := [][]float64{append([]float64(nil), X[rng.Intn(len(X))]...)}
	dist := make([]float64, len(X))
	for len(centroids) < k {
		total := 0.0
		for i, x := range X {
			_, d := nearest(centroids, x)
			dist[i] = d
			total += d
		}
		next := rng.Intn(len(X))
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, append([]float64(nil), X[next]...))
	}
	return centroids
}

func lloyd(X [][]float64, centroids [][]float64) ([][]float64, []int, float64) {
	k := len(centroids)
	d := len(X[0])
	labels := make([]int, len(X))
	for i := range labels {
		labels[i] = -1
	}
	var inertia float64
	for iter := 0; iter < clusterIterations; iter++ {
		changed := false
		inertia = 0
		for i, x := range X {
			c, dist := nearest(centroids, x)
			inertia += dist
			if labels[i] != c {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, d)
		}
		for i, x := range X {
			floats.Add(sums[labels[i]], x)
			counts[labels[i]]++
		}
		for c := range centroids {
			// Empty clusters keep their previous centroid.
			if counts[c] > 0 {
				floats.Scale(1/float64(counts[c]), sums[c])
				centroids[c] = sums[c]
			}
		}
	}
	return centroids, labels, inertia
}

// nearest returns the closest centroid and its squared distance.
func nearest(centroids [][]float64, x []float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, centroid := range centroids {
		d := floats.Distance(centroid, x, 2)
		if d*d < bestD {
			best, bestD = c, d*d
		}
	}
	return best, bestD
}
