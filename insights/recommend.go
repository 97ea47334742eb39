package insights

import "attendance-insights-api/dataset"

// targetedSupportShare is the district critical-risk share, in percent,
// above which district-wide support is recommended.
const targetedSupportShare = 15.0

var levelPlans = []struct {
	level  dataset.RiskLevel
	format string
}{
	{dataset.RiskCritical, "PRIORITY INTERVENTION: Target %d Critical-risk students with intensive case management (estimated 60-80%% improvement potential)"},
	{dataset.RiskHigh, "EARLY SUPPORT: Provide structured mentoring and family outreach for %d High-risk students (45-65%% success rate)"},
	{dataset.RiskMedium, "PREVENTATIVE ACTION: Engage %d Medium-risk students with attendance incentives and check-ins (30-50%% prevention rate)"},
	{dataset.RiskLow, "MAINTENANCE: Continue positive reinforcement for %d Low-risk students to sustain good attendance"},
}

func riskLevelPlan(a *aggregates, _ Options) []Statement {
	var out []Statement
	for _, p := range levelPlans {
		n := a.levels[p.level]
		if n == 0 {
			continue
		}
		out = append(out, statement(RiskLevelPlan,
			Fact{Count: n, Percentage: percent(n, a.total), Subject: string(p.level)},
			p.format, n))
	}
	return out
}

func earlyIntervention(a *aggregates, _ Options) []Statement {
	if a.earlyWarning == 0 {
		return nil
	}
	return []Statement{statement(EarlyIntervention,
		Fact{Count: a.earlyWarning, Percentage: percent(a.earlyWarning, a.total)},
		"EARLY INTERVENTION: Schedule check-ins for %d students whose attendance is predicted to decline before absences accumulate",
		a.earlyWarning)}
}

func unexcusedSupport(a *aggregates, _ Options) []Statement {
	if !a.hasUnexcused || a.unexcusedHigh == 0 {
		return nil
	}
	return []Statement{statement(UnexcusedSupport,
		Fact{Count: a.unexcusedHigh, Percentage: percent(a.unexcusedHigh, a.total)},
		"UNEXCUSED ABSENCE SUPPORT: Contact the families of %d students with high unexcused absence rates to address attendance barriers",
		a.unexcusedHigh)}
}

func chronicCaseManagement(a *aggregates, _ Options) []Statement {
	if a.chronic == 0 {
		return nil
	}
	return []Statement{statement(ChronicCaseManagement,
		Fact{Count: a.chronic, Percentage: percent(a.chronic, a.total)},
		"CASE MANAGEMENT: Assign a case manager to each of the %d chronically absent students with weekly progress reviews",
		a.chronic)}
}

func gradeStrategy(a *aggregates, _ Options) []Statement {
	var out []Statement
	for _, g := range a.grades {
		if g.critical == 0 {
			continue
		}
		share := percent(g.critical, g.count)
		out = append(out, statement(GradeStrategy,
			Fact{Count: g.critical, Percentage: share, Subject: g.token},
			"GRADE-LEVEL STRATEGY: Implement specialized attendance program for %s with %.1f%% critical risk students",
			gradeName(g.token), share))
	}
	return out
}

func resourceRecommendations(a *aggregates, opts Options) []Statement {
	var out []Statement
	for _, s := range topSchools(a, opts.ResourceTopN) {
		share := s.criticalShare()
		out = append(out, statement(ResourceAllocation,
			Fact{Count: s.critical, Percentage: share, Subject: s.name},
			"RESOURCE ALLOCATION: Allocate additional support staff to %s in %s with %.1f%% critical-risk students",
			s.name, s.district, share))
	}
	for _, d := range a.districts {
		share := percent(d.critical, d.count)
		if share <= targetedSupportShare {
			continue
		}
		out = append(out, statement(ResourceAllocation,
			Fact{Count: d.critical, Percentage: share, Subject: d.name},
			"TARGETED SUPPORT: Deploy district-wide attendance support in %s, where %.1f%% of students are critical-risk",
			d.name, share))
	}
	return out
}

func tierMonitoring(a *aggregates, _ Options) []Statement {
	if a.nearBoundary == 0 {
		return nil
	}
	return []Statement{statement(TierMonitoring,
		Fact{Count: a.nearBoundary, Percentage: percent(a.nearBoundary, a.total)},
		"TIER MONITORING: Review %d students near a tier boundary every week to catch escalation early",
		a.nearBoundary)}
}

func anomalyReview(a *aggregates, _ Options) []Statement {
	if !a.hasAnomaly || a.anomalous == 0 {
		return nil
	}
	return []Statement{statement(AnomalyReview,
		Fact{Count: a.anomalous, Percentage: percent(a.anomalous, a.total)},
		"ANOMALY REVIEW: Verify the records of %d students with unusual attendance patterns for data errors or emerging issues",
		a.anomalous)}
}

var equityChecks = []struct {
	column    string
	threshold float64
	format    string
}{
	{"ECONOMIC_CODE", 5, "ECONOMIC EQUITY: Close the %.1f-point attendance gap between economic groups with transportation and family resource support"},
	{"SPECIAL_ED_CODE", 4, "SPECIAL EDUCATION SUPPORT: Address the %.1f-point attendance gap for special education students through IEP attendance goals"},
	{"ENG_PROF_CODE", 3, "LANGUAGE SUPPORT: Reduce the %.1f-point attendance gap across English proficiency levels with multilingual family outreach"},
	{"HISPANIC_IND", 3, "CULTURAL ENGAGEMENT: Address the %.1f-point attendance gap between Hispanic and non-Hispanic students with culturally responsive outreach"},
	{"ETHNIC_CODE", 4, "EQUITY FOCUS: Address the %.1f-point attendance gap between ethnic groups with community partnership programs"},
}

func equityGaps(a *aggregates, _ Options) []Statement {
	var out []Statement
	for _, c := range equityChecks {
		groups, ok := a.demographics[c.column]
		if !ok {
			continue
		}
		gap, ok := groupGap(groups)
		if !ok || gap <= c.threshold {
			continue
		}
		out = append(out, statement(EquityGap,
			Fact{Count: len(groups), Value: gap, Subject: c.column},
			c.format, gap))
	}
	return out
}

func performanceMetrics(a *aggregates, _ Options) []Statement {
	return []Statement{statement(PerformanceMetrics,
		Fact{Count: a.total},
		"PERFORMANCE METRICS: Establish baseline attendance rates and set 10%% improvement targets for each risk tier")}
}
