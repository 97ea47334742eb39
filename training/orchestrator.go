package training

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"attendance-insights-api/dataset"
	"attendance-insights-api/risk"
)

// FormatVersion is bumped whenever a model's serialized layout changes.
const FormatVersion = 1

// Model is the common surface of the three trained artifacts.
type Model interface {
	Name() string
	Columns() []string
}

// Set holds whichever models trained successfully. Nil means unavailable.
type Set struct {
	Risk    *RiskClassifier
	Anomaly *AnomalyDetector
	Cluster *ClusterModel
}

// Enrichment adapts the set to the classifier's optional model interfaces,
// leaving absent models as nil interfaces.
func (s Set) Enrichment() risk.Models {
	var m risk.Models
	if s.Risk != nil {
		m.Risk = s.Risk
	}
	if s.Anomaly != nil {
		m.Anomaly = s.Anomaly
	}
	if s.Cluster != nil {
		m.Cluster = s.Cluster
	}
	return m
}

// Available lists the names of trained models.
func (s Set) Available() []string {
	var out []string
	if s.Risk != nil {
		out = append(out, RiskModelName)
	}
	if s.Anomaly != nil {
		out = append(out, AnomalyModelName)
	}
	if s.Cluster != nil {
		out = append(out, ClusterModelName)
	}
	return out
}

// Put stores m in its slot.
func (s *Set) Put(m Model) {
	switch v := m.(type) {
	case *RiskClassifier:
		s.Risk = v
	case *AnomalyDetector:
		s.Anomaly = v
	case *ClusterModel:
		s.Cluster = v
	}
}

// Models returns the trained models as a list.
func (s Set) Models() []Model {
	var out []Model
	if s.Risk != nil {
		out = append(out, s.Risk)
	}
	if s.Anomaly != nil {
		out = append(out, s.Anomaly)
	}
	if s.Cluster != nil {
		out = append(out, s.Cluster)
	}
	return out
}

// Outcome reports one trainer's run.
type Outcome struct {
	Model    string
	Duration time.Duration
	Err      error
}

type Result struct {
	Set      Set
	Outcomes []Outcome
}

type trainer struct {
	name  string
	train func(context.Context, *dataset.Dataset) (Model, error)
}

var trainers = []trainer{
	{RiskModelName, func(ctx context.Context, ds *dataset.Dataset) (Model, error) {
		m, err := TrainRiskClassifier(ctx, ds)
		if err != nil {
			return nil, err
		}
		return m, nil
	}},
	{AnomalyModelName, func(ctx context.Context, ds *dataset.Dataset) (Model, error) {
		m, err := TrainAnomalyDetector(ctx, ds)
		if err != nil {
			return nil, err
		}
		return m, nil
	}},
	{ClusterModelName, func(ctx context.Context, ds *dataset.Dataset) (Model, error) {
		m, err := TrainClusterModel(ctx, ds)
		if err != nil {
			return nil, err
		}
		return m, nil
	}},
}

// TrainAll runs the three trainers concurrently, each bounded by timeout. A
// failed or expired trainer leaves its slot nil and never affects the others.
func TrainAll(ctx context.Context, ds *dataset.Dataset, timeout time.Duration) Result {
	outcomes := make([]Outcome, len(trainers))
	models := make([]Model, len(trainers))

	var wg sync.WaitGroup
	for i, t := range trainers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			m, err := runBounded(ctx, t, ds, timeout)
			outcomes[i] = Outcome{Model: t.name, Duration: time.Since(start), Err: err}
			models[i] = m
			if err != nil {
				log.Printf("trainer failed: model=%s (%.2fs): %v", t.name, time.Since(start).Seconds(), err)
				return
			}
			log.Printf("trainer finished: model=%s rows=%d (%.2fs)", t.name, ds.Len(), time.Since(start).Seconds())
		}()
	}
	wg.Wait()

	var set Set
	for _, m := range models {
		if m != nil {
			set.Put(m)
		}
	}
	return Result{Set: set, Outcomes: outcomes}
}

func runBounded(parent context.Context, t trainer, ds *dataset.Dataset, timeout time.Duration) (Model, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type result struct {
		m   Model
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fitFailed(t.name, ds.Len(), "panic: %v", r)}
			}
		}()
		m, err := t.train(ctx, ds)
		ch <- result{m, err}
	}()

	select {
	case r := <-ch:
		return r.m, r.err
	case <-ctx.Done():
		return nil, &TrainError{Model: t.name, Rows: ds.Len(), Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
	}
}

// Decode restores a model from its serialized payload.
func Decode(name string, payload []byte) (Model, error) {
	var m Model
	switch name {
	case RiskModelName:
		m = &RiskClassifier{}
	case AnomalyModelName:
		m = &AnomalyDetector{}
	case ClusterModelName:
		m = &ClusterModel{}
	default:
		return nil, fmt.Errorf("unknown model %q", name)
	}
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if err := validate(m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return m, nil
}

func validate(m Model) error {
	switch v := m.(type) {
	case *RiskClassifier:
		if v.Encoder == nil || len(v.Weights) != v.Encoder.Width() {
			return fmt.Errorf("weights do not match encoder")
		}
	case *AnomalyDetector:
		if v.Encoder == nil || len(v.Trees) == 0 {
			return fmt.Errorf("no trees")
		}
	case *ClusterModel:
		if v.Encoder == nil || len(v.Centroids) == 0 {
			return fmt.Errorf("no centroids")
		}
	}
	return nil
}

// ExpectedColumns lists the source columns a trainer would use for schema.
// A cached model is only reusable when its Columns match.
func ExpectedColumns(name string, s dataset.Schema) []string {
	switch name {
	case RiskModelName:
		return RiskColumns(s)
	case AnomalyModelName:
		return AnomalyColumns(s)
	case ClusterModelName:
		return ClusterColumns(s)
	}
	return nil
}

// Names lists the trainer slots in order.
func Names() []string {
	out := make([]string, len(trainers))
	for i, t := range trainers {
		out[i] = t.name
	}
	return out
}
