package insights

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"attendance-insights-api/dataset"
	"attendance-insights-api/filter"
	"attendance-insights-api/risk"
)

// trendThreshold is the point change in attendance that counts as a trend
// or a grade-to-grade drop.
const trendThreshold = 5.0

type gradeStats struct {
	token    string
	level    int
	numeric  bool
	mean     float64
	count    int
	critical int
}

type schoolStats struct {
	key      string
	name     string
	district string
	count    int
	critical int
}

func (s schoolStats) criticalShare() float64 {
	return percent(s.critical, s.count)
}

type districtStats struct {
	name     string
	count    int
	critical int
}

// aggregates is computed once per Generate call and shared by every rule.
type aggregates struct {
	total int

	tiers  map[dataset.Tier]int
	levels map[dataset.RiskLevel]int

	hasModel      bool
	modelAtRisk   int
	hasAttendance bool
	earlyWarning  int
	hasUnexcused  bool
	unexcusedCut  float64
	unexcusedHigh int
	chronic       int
	hasPrior      bool
	improved      int
	declined      int
	hasAnomaly    bool
	anomalous     int
	nearBoundary  int
	highImpact    int

	grades    []gradeStats
	schools   []schoolStats
	districts []districtStats

	// demographic column -> group code -> predicted attendance values
	demographics map[string]map[string][]float64
}

func aggregate(ds *dataset.Dataset, opts Options) *aggregates {
	schema := ds.Schema()
	records := ds.Records()
	a := &aggregates{
		total:        len(records),
		tiers:        make(map[dataset.Tier]int),
		levels:       make(map[dataset.RiskLevel]int),
		hasPrior:     schema.PriorAttendance && schema.HasAttendance(),
		demographics: make(map[string]map[string][]float64),
	}

	var unexcused []float64
	gradeValues := make(map[string][]float64)
	gradeCritical := make(map[string]int)
	schools := make(map[string]*schoolStats)
	districts := make(map[string]*districtStats)

	for i := range records {
		r := &records[i]
		d := r.Derived
		a.tiers[d.Tier]++
		a.levels[d.RiskLevel]++
		critical := d.RiskLevel == dataset.RiskCritical

		if d.RiskProbability != nil {
			a.hasModel = true
			if *d.RiskProbability >= 0.5 {
				a.modelAtRisk++
			}
		}
		if d.AnomalyScore != nil {
			a.hasAnomaly = true
			if d.IsAnomaly {
				a.anomalous++
			}
		}

		if rate, ok := r.AttendanceRate(); ok {
			a.hasAttendance = true
			if rate >= risk.AtRiskThreshold && r.PredictedAttendance < risk.AtRiskThreshold {
				a.earlyWarning++
			}
			if prior, ok := r.PriorAttendanceRate(); ok && a.hasPrior {
				switch diff := rate - prior; {
				case diff > trendThreshold:
					a.improved++
				case diff < -trendThreshold:
					a.declined++
				}
			}
		}
		if u, ok := r.UnexcusedRate(); ok {
			a.hasUnexcused = true
			unexcused = append(unexcused, u)
		}
		if r.PredictedAttendance < risk.Tier3Floor {
			a.chronic++
		}
		if nearFloor(r.PredictedAttendance, opts.TierBoundaryMargin) {
			a.nearBoundary++
		}
		if d.RiskScore >= 40 && d.RiskScore <= 70 && r.DaysEnrolled != nil && *r.DaysEnrolled > 50 {
			a.highImpact++
		}

		if g := filter.NormalizeGrade(r.Grade); g != "" {
			gradeValues[g] = append(gradeValues[g], r.PredictedAttendance)
			if critical {
				gradeCritical[g]++
			}
		}

		if key := schoolKey(r); key != "" {
			s, ok := schools[key]
			if !ok {
				s = &schoolStats{key: key, name: schoolName(r), district: districtName(r)}
				schools[key] = s
			}
			s.count++
			if critical {
				s.critical++
			}
		}
		if name := districtName(r); name != "" {
			dst, ok := districts[name]
			if !ok {
				dst = &districtStats{name: name}
				districts[name] = dst
			}
			dst.count++
			if critical {
				dst.critical++
			}
		}

		for _, col := range schema.Demographics {
			code := r.Demographic(col)
			if code == "" {
				continue
			}
			groups, ok := a.demographics[col]
			if !ok {
				groups = make(map[string][]float64)
				a.demographics[col] = groups
			}
			groups[code] = append(groups[code], r.PredictedAttendance)
		}
	}

	if len(unexcused) > 0 {
		a.unexcusedCut = risk.Percentile(unexcused, opts.UnexcusedPercentile)
		for _, u := range unexcused {
			if u > a.unexcusedCut {
				a.unexcusedHigh++
			}
		}
	}

	for token, values := range gradeValues {
		level, numeric := filter.GradeLevel(token)
		a.grades = append(a.grades, gradeStats{
			token:    token,
			level:    level,
			numeric:  numeric,
			mean:     stat.Mean(values, nil),
			count:    len(values),
			critical: gradeCritical[token],
		})
	}
	sort.Slice(a.grades, func(i, j int) bool {
		return filter.GradeLess(a.grades[i].token, a.grades[j].token)
	})

	for _, s := range schools {
		a.schools = append(a.schools, *s)
	}
	sort.Slice(a.schools, func(i, j int) bool {
		si, sj := a.schools[i].criticalShare(), a.schools[j].criticalShare()
		if si != sj {
			return si > sj
		}
		return a.schools[i].key < a.schools[j].key
	})

	for _, d := range districts {
		a.districts = append(a.districts, *d)
	}
	sort.Slice(a.districts, func(i, j int) bool {
		return a.districts[i].name < a.districts[j].name
	})
	return a
}

// nearFloor reports whether v sits within margin points above a tier floor.
func nearFloor(v, margin float64) bool {
	if margin <= 0 {
		return false
	}
	for _, floor := range []float64{risk.Tier3Floor, risk.Tier2Floor, risk.Tier1Floor} {
		if v >= floor && v < floor+margin {
			return true
		}
	}
	return false
}

func schoolKey(r *dataset.Record) string {
	if r.LocationID != "" {
		return r.DistrictCode + "-" + r.LocationID
	}
	return filter.NormalizeName(r.SchoolName)
}

func schoolName(r *dataset.Record) string {
	if r.SchoolName != "" {
		return r.SchoolName
	}
	return r.LocationID
}

func districtName(r *dataset.Record) string {
	if r.DistrictName != "" {
		return r.DistrictName
	}
	return r.DistrictCode
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// groupGap is the spread between the best and worst group means. Groups
// with a single student are ignored.
func groupGap(groups map[string][]float64) (float64, bool) {
	codes := make([]string, 0, len(groups))
	for code, values := range groups {
		if len(values) > 1 {
			codes = append(codes, code)
		}
	}
	if len(codes) < 2 {
		return 0, false
	}
	sort.Strings(codes)
	lo, hi := stat.Mean(groups[codes[0]], nil), stat.Mean(groups[codes[0]], nil)
	for _, code := range codes[1:] {
		m := stat.Mean(groups[code], nil)
		if m < lo {
			lo = m
		}
		if m > hi {
			hi = m
		}
	}
	return hi - lo, true
}
