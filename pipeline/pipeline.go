package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"attendance-insights-api/dataset"
	"attendance-insights-api/loader"
	"attendance-insights-api/metrics"
	"attendance-insights-api/modelcache"
	"attendance-insights-api/risk"
	"attendance-insights-api/store"
	"attendance-insights-api/training"
)

// Publisher announces a published snapshot. services.CacheService satisfies
// it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

// SnapshotEvent is the message sent on the snapshot channel.
type SnapshotEvent struct {
	Version  uint64    `json:"version"`
	Students int       `json:"students"`
	Models   []string  `json:"models"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Pipeline runs the load, train, enrich and publish cycle once.
type Pipeline struct {
	Source       loader.Source
	Options      loader.Options
	Store        *store.Store
	TrainTimeout time.Duration

	// Cache checkpoints trained models and stands in for failed trainers.
	// Nil disables both.
	Cache modelcache.Cache

	Events  Publisher
	Channel string
}

// Run executes one cycle. Load failures leave the store LOAD_FAILED and are
// returned; trainer failures only degrade the affected model.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.LoadCycleDuration.Observe(time.Since(start).Seconds())
	}()

	if err := p.Store.BeginLoading(); err != nil {
		return err
	}
	log.Printf("load cycle started: source=%s year=%d", p.Source.Name(), p.Options.CurrentSchoolYear)

	ds, err := loader.Load(ctx, p.Source, p.Options)
	if err != nil {
		return p.fail(err)
	}
	log.Printf("dataset loaded: students=%d (%.2fs)", ds.Len(), time.Since(start).Seconds())

	res := training.TrainAll(ctx, ds, p.TrainTimeout)
	models := p.settle(ctx, ds.Schema(), res)

	enriched := risk.Enrich(ds, models.Enrichment())
	snap, err := p.Store.Publish(enriched, models)
	if err != nil {
		return p.fail(err)
	}
	metrics.SnapshotStudents.Set(float64(snap.Dataset.Len()))
	metrics.SnapshotVersion.Set(float64(snap.Version))

	p.announce(ctx, snap)
	log.Printf("load cycle completed: version=%d students=%d models=%v (%.2fs)",
		snap.Version, snap.Dataset.Len(), models.Available(), time.Since(start).Seconds())
	return nil
}

func (p *Pipeline) fail(err error) error {
	metrics.LoadFailures.Inc()
	log.Printf("load cycle failed: %v", err)
	if ferr := p.Store.Fail(err); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}

// settle records trainer outcomes, checkpoints fresh models and falls back
// to a matching cached model for each failed trainer.
func (p *Pipeline) settle(ctx context.Context, schema dataset.Schema, res training.Result) training.Set {
	set := res.Set
	now := time.Now().UTC()
	for _, o := range res.Outcomes {
		metrics.TrainerDuration.WithLabelValues(o.Model).Observe(o.Duration.Seconds())
		if o.Err == nil {
			continue
		}
		metrics.TrainerFailures.WithLabelValues(o.Model).Inc()
		if m, ok := p.cached(ctx, o.Model, schema); ok {
			set.Put(m)
			metrics.CachedModelsUsed.WithLabelValues(o.Model).Inc()
			log.Printf("using cached model: model=%s", o.Model)
		}
	}

	for _, m := range res.Set.Models() {
		p.save(ctx, m, now)
	}
	return set
}

func (p *Pipeline) save(ctx context.Context, m training.Model, now time.Time) {
	if p.Cache == nil {
		return
	}
	payload, err := json.Marshal(m)
	if err != nil {
		log.Printf("warning: encode model %s failed: %v", m.Name(), err)
		return
	}
	a := modelcache.Artifact{
		Name:          m.Name(),
		FormatVersion: training.FormatVersion,
		Columns:       m.Columns(),
		TrainedAt:     now,
		Payload:       payload,
	}
	if err := p.Cache.Save(ctx, a); err != nil {
		log.Printf("warning: cache model %s failed: %v", m.Name(), err)
	}
}

func (p *Pipeline) cached(ctx context.Context, name string, schema dataset.Schema) (training.Model, bool) {
	if p.Cache == nil {
		return nil, false
	}
	a, err := p.Cache.Load(ctx, name)
	if err != nil {
		if !errors.Is(err, modelcache.ErrMissing) {
			log.Printf("warning: read cached model %s failed: %v", name, err)
		}
		return nil, false
	}
	if !a.Matches(training.FormatVersion, training.ExpectedColumns(name, schema)) {
		log.Printf("cached model %s skipped: trained on %v", name, a.Columns)
		return nil, false
	}
	m, err := training.Decode(name, a.Payload)
	if err != nil {
		log.Printf("warning: cached model %s unusable: %v", name, err)
		return nil, false
	}
	return m, true
}

func (p *Pipeline) announce(ctx context.Context, snap *store.Snapshot) {
	if p.Events == nil || p.Channel == "" {
		return
	}
	event := SnapshotEvent{
		Version:  snap.Version,
		Students: snap.Dataset.Len(),
		Models:   snap.Models.Available(),
		LoadedAt: snap.LoadedAt,
	}
	if err := p.Events.Publish(ctx, p.Channel, event); err != nil {
		log.Printf("warning: snapshot event publish failed: %v", err)
	}
}
