package training

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"strconv"
	"testing"
	"time"

	"attendance-insights-api/dataset"
)

// synthetic builds n students; every fifth one has poor attendance and many
// unexcused absences.
func synthetic(n int) *dataset.Dataset {
	rng := rand.New(rand.NewSource(7))
	schema := dataset.Schema{
		Grade: true, DaysPresent: true, DaysEnrolled: true, DaysUnexcused: true,
		Predictions: true, Demographics: []string{"ECONOMIC_CODE"},
	}
	records := make([]dataset.Record, n)
	for i := range records {
		present := 168 + rng.Float64()*12
		unexcused := rng.Float64() * 3
		econ := "N"
		if i%5 == 0 {
			present = 120 + rng.Float64()*20
			unexcused = 20 + rng.Float64()*10
			econ = "Y"
		}
		records[i] = dataset.Record{
			StudentID:           strconv.Itoa(i),
			Grade:               strconv.Itoa(1 + i%12),
			DaysPresent:         dataset.Float(present),
			DaysEnrolled:        dataset.Float(180),
			DaysUnexcused:       dataset.Float(unexcused),
			PredictedAttendance: present / 180 * 100,
			Demographics:        map[string]string{"ECONOMIC_CODE": econ},
		}
	}
	return dataset.New(schema, records)
}

// ── risk classifier ──

func TestTrainRiskClassifier(t *testing.T) {
	m, err := TrainRiskClassifier(context.Background(), synthetic(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	low := dataset.Record{DaysPresent: dataset.Float(120), DaysEnrolled: dataset.Float(180), DaysUnexcused: dataset.Float(25)}
	high := dataset.Record{DaysPresent: dataset.Float(178), DaysEnrolled: dataset.Float(180), DaysUnexcused: dataset.Float(0)}
	pLow, _ := m.Probability(&low)
	pHigh, _ := m.Probability(&high)
	if pLow <= 0.5 || pHigh >= 0.5 {
		t.Errorf("probabilities low=%v high=%v", pLow, pHigh)
	}

	if len(m.Importances) == 0 || len(m.Importances) > 20 {
		t.Fatalf("importances = %d", len(m.Importances))
	}
	for i := 1; i < len(m.Importances); i++ {
		if m.Importances[i].Weight > m.Importances[i-1].Weight {
			t.Errorf("importances not sorted at %d", i)
		}
	}
	if got := m.Columns(); !reflect.DeepEqual(got, []string{FeatureAttendance, FeatureUnexcused, "ECONOMIC_CODE"}) {
		t.Errorf("columns = %v", got)
	}
}

func TestTrainRiskClassifierFailures(t *testing.T) {
	t.Run("too few rows", func(t *testing.T) {
		_, err := TrainRiskClassifier(context.Background(), synthetic(49))
		if !errors.Is(err, ErrInsufficientRows) {
			t.Errorf("got %v, want ErrInsufficientRows", err)
		}
	})

	t.Run("single class", func(t *testing.T) {
		ds := synthetic(100).Where(func(r *dataset.Record) bool {
			rate, _ := r.AttendanceRate()
			return rate >= 85
		})
		_, err := TrainRiskClassifier(context.Background(), ds)
		if !errors.Is(err, ErrFit) {
			t.Errorf("got %v, want ErrFit", err)
		}
		var te *TrainError
		if !errors.As(err, &te) || te.Model != RiskModelName {
			t.Errorf("expected TrainError for %s, got %v", RiskModelName, err)
		}
	})
}

// ── anomaly detector ──

func TestContamination(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{20, 0.10},
		{50, 0.10},
		{100, 0.05},
		{1000, 0.005},
	}
	for _, tt := range tests {
		if got := Contamination(tt.n); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Contamination(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestTrainAnomalyDetector(t *testing.T) {
	ds := synthetic(300)
	m, err := TrainAnomalyDetector(context.Background(), ds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.SampleSize != 256 || len(m.Trees) != 100 {
		t.Errorf("sample=%d trees=%d", m.SampleSize, len(m.Trees))
	}
	if math.Abs(m.Contamination-5.0/300) > 1e-12 {
		t.Errorf("contamination = %v", m.Contamination)
	}

	odd := dataset.Record{DaysPresent: dataset.Float(20), DaysEnrolled: dataset.Float(180), DaysUnexcused: dataset.Float(150)}
	typical := dataset.Record{DaysPresent: dataset.Float(174), DaysEnrolled: dataset.Float(180), DaysUnexcused: dataset.Float(1)}
	sOdd, _ := m.Score(&odd)
	sTypical, _ := m.Score(&typical)
	if sOdd <= sTypical {
		t.Errorf("outlier score %v should exceed typical %v", sOdd, sTypical)
	}
	if sOdd <= m.Threshold {
		t.Errorf("outlier score %v should exceed threshold %v", sOdd, m.Threshold)
	}
	if m.IsOutlier(&typical) {
		t.Error("typical student flagged by contamination cutoff")
	}
}

func TestTrainAnomalyDetectorTooFewRows(t *testing.T) {
	_, err := TrainAnomalyDetector(context.Background(), synthetic(19))
	if !errors.Is(err, ErrInsufficientRows) {
		t.Errorf("got %v, want ErrInsufficientRows", err)
	}
}

func TestAveragePath(t *testing.T) {
	if averagePath(1) != 0 || averagePath(2) != 1 {
		t.Error("small n path lengths wrong")
	}
	// c(256) is roughly 10.24 for the standard subsample size.
	if got := averagePath(256); math.Abs(got-10.24) > 0.05 {
		t.Errorf("averagePath(256) = %v", got)
	}
}

// ── cluster model ──

func TestElbowK(t *testing.T) {
	tests := []struct {
		name  string
		curve []float64
		want  int
	}{
		{"sharp at two", []float64{100, 40, 30, 25, 22}, 2},
		{"sharp at three", []float64{100, 80, 20, 15, 12}, 3},
		{"too short", []float64{10, 5}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ElbowK(tt.curve); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTrainClusterModel(t *testing.T) {
	t.Run("few rows uses default k", func(t *testing.T) {
		m, err := TrainClusterModel(context.Background(), synthetic(25))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.K != 3 || m.Elbow != nil {
			t.Errorf("k=%d elbow=%v, want 3 and no curve", m.K, m.Elbow)
		}
	})

	t.Run("elbow", func(t *testing.T) {
		m, err := TrainClusterModel(context.Background(), synthetic(200))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.K < 2 || m.K > 10 || len(m.Elbow) != 10 {
			t.Errorf("k=%d curve=%d", m.K, len(m.Elbow))
		}
		total := 0
		for _, s := range m.Sizes {
			total += s
		}
		if total != 200 {
			t.Errorf("cluster sizes sum to %d, want 200", total)
		}
		r := synthetic(1).Records()[0]
		if c, err := m.Assign(&r); err != nil || c < 0 || c >= m.K {
			t.Errorf("Assign = %d, %v", c, err)
		}
	})

	t.Run("too few rows", func(t *testing.T) {
		_, err := TrainClusterModel(context.Background(), synthetic(9))
		if !errors.Is(err, ErrInsufficientRows) {
			t.Errorf("got %v, want ErrInsufficientRows", err)
		}
	})
}

// ── orchestrator ──

func TestTrainAllIsolatesFailures(t *testing.T) {
	res := TrainAll(context.Background(), synthetic(15), time.Minute)

	if res.Set.Risk != nil || res.Set.Anomaly != nil {
		t.Error("risk and anomaly need more rows and should be nil")
	}
	if res.Set.Cluster == nil {
		t.Fatal("cluster model should train on 15 rows")
	}
	if len(res.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(res.Outcomes))
	}
	for _, o := range res.Outcomes {
		wantErr := o.Model != ClusterModelName
		if (o.Err != nil) != wantErr {
			t.Errorf("%s: err = %v", o.Model, o.Err)
		}
	}
	if got := res.Set.Available(); !reflect.DeepEqual(got, []string{ClusterModelName}) {
		t.Errorf("available = %v", got)
	}
}

func TestTrainAllTimeout(t *testing.T) {
	res := TrainAll(context.Background(), synthetic(200), time.Nanosecond)
	for _, o := range res.Outcomes {
		if !errors.Is(o.Err, ErrTimeout) {
			t.Errorf("%s: got %v, want ErrTimeout", o.Model, o.Err)
		}
	}
	if len(res.Set.Available()) != 0 {
		t.Errorf("no model should survive a timeout, got %v", res.Set.Available())
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	ds := synthetic(120)
	m, err := TrainRiskClassifier(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := Decode(RiskModelName, payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r := ds.Records()[3]
	want, _ := m.Probability(&r)
	got, _ := restored.(*RiskClassifier).Probability(&r)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("restored probability %v, want %v", got, want)
	}

	if _, err := Decode(RiskModelName, []byte(`{"weights":[1,2]}`)); err == nil {
		t.Error("expected error for inconsistent payload")
	}
	if _, err := Decode("nope", payload); err == nil {
		t.Error("expected error for unknown model")
	}
}
