package insights

import (
	"fmt"

	"attendance-insights-api/dataset"
	"attendance-insights-api/filter"
)

func statement(c Category, f Fact, format string, args ...any) Statement {
	return Statement{Category: c, Text: fmt.Sprintf(format, args...), Fact: f}
}

func gradeName(token string) string {
	return "Grade " + filter.GradeLabel(token)
}

var tierBands = []struct {
	tier dataset.Tier
	text string
}{
	{dataset.Tier4, "have attendance below 80% - needs intensive intervention"},
	{dataset.Tier3, "have attendance between 80-90% - early intervention required"},
	{dataset.Tier2, "have attendance between 90-95% - needs individualized prevention"},
	{dataset.Tier1, "have attendance above 95% - no intervention needed"},
}

func tierDistribution(a *aggregates, _ Options) []Statement {
	out := make([]Statement, 0, len(tierBands))
	for _, b := range tierBands {
		n := a.tiers[b.tier]
		pct := percent(n, a.total)
		out = append(out, statement(TierDistribution,
			Fact{Count: n, Percentage: pct, Subject: b.tier.String()},
			"%s Students: %d students (%.1f%%) %s", b.tier, n, pct, b.text))
	}
	return out
}

func modelPrediction(a *aggregates, _ Options) []Statement {
	if !a.hasModel {
		return nil
	}
	pct := percent(a.modelAtRisk, a.total)
	return []Statement{statement(ModelPrediction,
		Fact{Count: a.modelAtRisk, Percentage: pct},
		"AI MODEL PREDICTION: %d students (%.1f%%) are identified by the risk model as likely to become chronically absent",
		a.modelAtRisk, pct)}
}

func earlyWarning(a *aggregates, _ Options) []Statement {
	if a.earlyWarning == 0 {
		return nil
	}
	pct := percent(a.earlyWarning, a.total)
	return []Statement{statement(EarlyWarning,
		Fact{Count: a.earlyWarning, Percentage: pct},
		"AI EARLY WARNING: %d students (%.1f%%) currently have good attendance but are predicted to decline below 85%%",
		a.earlyWarning, pct)}
}

func unexcusedOutliers(a *aggregates, opts Options) []Statement {
	if !a.hasUnexcused || a.unexcusedHigh == 0 {
		return nil
	}
	pct := percent(a.unexcusedHigh, a.total)
	return []Statement{statement(UnexcusedOutliers,
		Fact{Count: a.unexcusedHigh, Percentage: pct, Value: a.unexcusedCut},
		"HIGH UNEXCUSED ABSENCES: %d students (%.1f%%) have unexcused absence rates above %.1f%% (the %.0fth percentile)",
		a.unexcusedHigh, pct, a.unexcusedCut, opts.UnexcusedPercentile)}
}

func chronicAbsence(a *aggregates, _ Options) []Statement {
	if a.chronic == 0 {
		return nil
	}
	pct := percent(a.chronic, a.total)
	return []Statement{statement(ChronicAbsence,
		Fact{Count: a.chronic, Percentage: pct},
		"CHRONIC ABSENCE ALERT: %d students (%.1f%%) are predicted to attend below 80%% of enrolled days",
		a.chronic, pct)}
}

func gradeComparison(a *aggregates, _ Options) []Statement {
	switch len(a.grades) {
	case 0:
		return nil
	case 1:
		g := a.grades[0]
		return []Statement{statement(GradeComparison,
			Fact{Count: g.count, Value: g.mean, Subject: g.token},
			"GRADE LEVEL: %s has an average attendance of %.1f%%", gradeName(g.token), g.mean)}
	}

	lowest, highest := a.grades[0], a.grades[0]
	for _, g := range a.grades[1:] {
		if g.mean < lowest.mean {
			lowest = g
		}
		if g.mean > highest.mean {
			highest = g
		}
	}
	out := []Statement{
		statement(GradeComparison,
			Fact{Count: lowest.count, Value: lowest.mean, Subject: lowest.token},
			"GRADE LEVEL: %s has the lowest average attendance at %.1f%%", gradeName(lowest.token), lowest.mean),
		statement(GradeComparison,
			Fact{Count: highest.count, Value: highest.mean, Subject: highest.token},
			"BEST PERFORMING: %s has the highest average attendance at %.1f%%", gradeName(highest.token), highest.mean),
	}

	// Only adjacent grade levels are compared; a gap in the sequence breaks
	// the chain.
	for i := 1; i < len(a.grades); i++ {
		prev, cur := a.grades[i-1], a.grades[i]
		if !prev.numeric || !cur.numeric || cur.level != prev.level+1 {
			continue
		}
		if drop := prev.mean - cur.mean; drop > trendThreshold {
			out = append(out, statement(GradeComparison,
				Fact{Count: cur.count, Value: drop, Subject: cur.token},
				"ATTENDANCE DROP: %s shows a %.1f%% drop in attendance compared to %s",
				gradeName(cur.token), drop, gradeName(prev.token)))
		}
	}
	return out
}

func attendanceTrend(a *aggregates, _ Options) []Statement {
	if !a.hasPrior {
		return nil
	}
	var out []Statement
	if a.improved > 0 {
		pct := percent(a.improved, a.total)
		out = append(out, statement(AttendanceTrend,
			Fact{Count: a.improved, Percentage: pct},
			"POSITIVE TREND: %d students (%.1f%%) improved their attendance by more than 5 points since last year",
			a.improved, pct))
	}
	if a.declined > 0 {
		pct := percent(a.declined, a.total)
		out = append(out, statement(AttendanceTrend,
			Fact{Count: a.declined, Percentage: pct},
			"DECLINING TREND: %d students (%.1f%%) dropped more than 5 points in attendance since last year",
			a.declined, pct))
	}
	return out
}

func anomalies(a *aggregates, _ Options) []Statement {
	if !a.hasAnomaly || a.anomalous == 0 {
		return nil
	}
	pct := percent(a.anomalous, a.total)
	return []Statement{statement(Anomalies,
		Fact{Count: a.anomalous, Percentage: pct},
		"UNUSUAL PATTERNS: %d students (%.1f%%) show attendance patterns flagged as anomalous",
		a.anomalous, pct)}
}

// topSchools returns up to n schools with at least one critical-risk student.
func topSchools(a *aggregates, n int) []schoolStats {
	var out []schoolStats
	for _, s := range a.schools {
		if len(out) == n {
			break
		}
		if s.critical > 0 {
			out = append(out, s)
		}
	}
	return out
}

func resourceInsights(a *aggregates, opts Options) []Statement {
	var out []Statement
	for _, s := range topSchools(a, opts.ResourceTopN) {
		share := s.criticalShare()
		out = append(out, statement(ResourceAllocation,
			Fact{Count: s.critical, Percentage: share, Subject: s.name},
			"RESOURCE FOCUS: %s in %s has %.1f%% critical-risk students (%d of %d)",
			s.name, s.district, share, s.critical, s.count))
	}
	return out
}

func tierEscalation(a *aggregates, opts Options) []Statement {
	if a.nearBoundary == 0 {
		return nil
	}
	pct := percent(a.nearBoundary, a.total)
	return []Statement{statement(TierEscalation,
		Fact{Count: a.nearBoundary, Percentage: pct, Value: opts.TierBoundaryMargin},
		"TIER ESCALATION RISK: %d students (%.1f%%) are within %.1f points of dropping into a lower tier",
		a.nearBoundary, pct, opts.TierBoundaryMargin)}
}

func highImpact(a *aggregates, _ Options) []Statement {
	if a.highImpact == 0 {
		return nil
	}
	pct := percent(a.highImpact, a.total)
	return []Statement{statement(HighImpact,
		Fact{Count: a.highImpact, Percentage: pct},
		"HIGH-IMPACT OPPORTUNITY: %d students in the moderate risk range could see the largest gains from targeted support",
		a.highImpact)}
}
