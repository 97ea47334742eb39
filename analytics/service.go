package analytics

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"attendance-insights-api/dataset"
	"attendance-insights-api/filter"
	"attendance-insights-api/insights"
	"attendance-insights-api/metrics"
	"attendance-insights-api/models"
	"attendance-insights-api/reports"
	"attendance-insights-api/risk"
	"attendance-insights-api/store"
)

var (
	ErrNotReady          = store.ErrNotReady
	ErrNoDataForFilters  = errors.New("no data found for the selected filters")
	ErrInvalidReportType = reports.ErrInvalidReportType
	ErrNoRowsForReport   = reports.ErrNoRowsForReport
)

// Service answers dashboard queries from the published snapshot. Each call
// reads the snapshot once, so a response never mixes two snapshots.
type Service struct {
	store *store.Store
	opts  insights.Options
	now   func() time.Time
}

func NewService(st *store.Store, opts insights.Options) *Service {
	return &Service{store: st, opts: opts, now: time.Now}
}

func (s *Service) snapshot() (*store.Snapshot, error) {
	return s.store.Current()
}

func (s *Service) filtered(c filter.Criteria) (*store.Snapshot, *dataset.Dataset, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, nil, err
	}
	ds := filter.Apply(snap.Dataset, c)
	if ds.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoDataForFilters, c)
	}
	return snap, ds, nil
}

// Version is the published snapshot version, used to key cached responses.
func (s *Service) Version() (uint64, error) {
	snap, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	return snap.Version, nil
}

// GetAnalysis summarizes the students matching c and generates the insight
// and recommendation lists for them.
func (s *Service) GetAnalysis(c filter.Criteria) (*models.AnalysisResponse, error) {
	start := time.Now()
	_, ds, err := s.filtered(c)
	if err != nil {
		return nil, err
	}

	ins, recs := insights.Generate(ds, s.opts, s.now().UTC())
	resp := &models.AnalysisResponse{
		SummaryStatistics: summarize(ds),
		KeyInsights:       make([]models.KeyInsight, len(ins)),
		Recommendations:   make([]models.Recommendation, len(recs)),
	}
	for i, st := range ins {
		resp.KeyInsights[i] = models.KeyInsight{
			Rank: st.Rank, Category: st.Category, Insight: st.Text, Fact: st.Fact, GeneratedAt: st.GeneratedAt,
		}
	}
	for i, st := range recs {
		resp.Recommendations[i] = models.Recommendation{
			Rank: st.Rank, Category: st.Category, Recommendation: st.Text, Fact: st.Fact, GeneratedAt: st.GeneratedAt,
		}
	}
	log.Printf("analysis completed: %s students=%d insights=%d recommendations=%d (%.4fs)",
		c, ds.Len(), len(ins), len(recs), time.Since(start).Seconds())
	return resp, nil
}

func summarize(ds *dataset.Dataset) models.SummaryStatistics {
	records := ds.Records()
	total := len(records)
	tiers := make(map[dataset.Tier]int)
	below85 := 0
	var school, grade []float64
	for i := range records {
		r := &records[i]
		tiers[r.Derived.Tier]++
		if r.PredictedAttendance < risk.AtRiskThreshold {
			below85++
		}
		if r.SchoolPrediction != nil {
			school = append(school, *r.SchoolPrediction)
		}
		if r.GradePrediction != nil {
			grade = append(grade, *r.GradePrediction)
		}
	}
	pct := func(n int) float64 {
		if total == 0 {
			return 0
		}
		return float64(n) / float64(total) * 100
	}
	return models.SummaryStatistics{
		TotalStudents:     total,
		Below85Students:   below85,
		Below85Percentage: pct(below85),
		Tier4Students:     tiers[dataset.Tier4],
		Tier4Percentage:   pct(tiers[dataset.Tier4]),
		Tier3Students:     tiers[dataset.Tier3],
		Tier3Percentage:   pct(tiers[dataset.Tier3]),
		Tier2Students:     tiers[dataset.Tier2],
		Tier2Percentage:   pct(tiers[dataset.Tier2]),
		Tier1Students:     tiers[dataset.Tier1],
		Tier1Percentage:   pct(tiers[dataset.Tier1]),
		SchoolPrediction:  meanRounded(school),
		GradePrediction:   meanRounded(grade),
	}
}

func meanRounded(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return dataset.Float(round(stat.Mean(values, nil), 1))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Report is a built report ready to be written.
type Report struct {
	Table       *reports.Table
	GeneratedAt time.Time
}

func (r *Report) Filename(ext string) string {
	return reports.Filename(r.Table.Type, r.GeneratedAt, ext)
}

// DownloadReport filters the snapshot by c and builds the named report.
func (s *Service) DownloadReport(c filter.Criteria, reportType string) (*Report, error) {
	t, err := reports.ParseType(reportType)
	if err != nil {
		return nil, err
	}
	_, ds, err := s.filtered(c)
	if err != nil {
		return nil, err
	}
	table, err := reports.Build(t, ds)
	if err != nil {
		return nil, err
	}
	metrics.ReportsGenerated.WithLabelValues(string(t)).Inc()
	log.Printf("report generated: type=%s %s rows=%d", t, c, len(table.Rows))
	return &Report{Table: table, GeneratedAt: s.now()}, nil
}

// Status describes the load cycle. It never fails.
func (s *Service) Status() models.Status {
	st := s.store.Status()
	out := models.Status{
		State:  string(st.State),
		Ready:  st.State == store.StateReady,
		Error:  st.Error,
		Models: []string{},
	}
	if snap := st.Snapshot; snap != nil {
		loaded := snap.LoadedAt
		out.LastLoaded = &loaded
		out.SnapshotVersion = snap.Version
		out.Students = snap.Dataset.Len()
		if names := snap.Models.Available(); names != nil {
			out.Models = names
		}
	}
	return out
}
