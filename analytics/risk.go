package analytics

import (
	"fmt"
	"sort"

	"attendance-insights-api/dataset"
	"attendance-insights-api/filter"
	"attendance-insights-api/models"
	"attendance-insights-api/risk"
)

// SchoolRiskLevel grades a school by its share of at-risk students.
func SchoolRiskLevel(share float64) dataset.RiskLevel {
	switch {
	case share >= 75:
		return dataset.RiskCritical
	case share >= 50:
		return dataset.RiskHigh
	case share >= 30:
		return dataset.RiskMedium
	}
	return dataset.RiskLow
}

type riskCount struct {
	atRisk int
	total  int
}

func (c *riskCount) add(r *dataset.Record) {
	c.total++
	if r.PredictedAttendance < risk.AtRiskThreshold {
		c.atRisk++
	}
}

func (c riskCount) share() float64 {
	if c.total == 0 {
		return 0
	}
	return round(float64(c.atRisk)/float64(c.total)*100, 2)
}

// GetGradeRiskData reports, per grade, the share of students predicted to
// attend less than 85% of days.
func (s *Service) GetGradeRiskData(district, school string) (*models.GradeRiskResponse, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	ds := narrow(snap.Dataset, district, school)
	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w: district=%q school=%q", ErrNoDataForFilters, district, school)
	}

	var overall riskCount
	byGrade := make(map[string]*riskCount)
	records := ds.Records()
	for i := range records {
		r := &records[i]
		overall.add(r)
		g := filter.NormalizeGrade(r.Grade)
		if g == "" {
			continue
		}
		c, ok := byGrade[g]
		if !ok {
			c = &riskCount{}
			byGrade[g] = c
		}
		c.add(r)
	}

	resp := &models.GradeRiskResponse{
		Grades:        []models.GradeRiskItem{},
		TotalStudents: overall.total,
		AverageRisk:   overall.share(),
	}
	for _, g := range grades(records) {
		c := byGrade[g]
		resp.Grades = append(resp.Grades, models.GradeRiskItem{
			Grade:          filter.GradeLabel(g),
			RiskPercentage: c.share(),
			StudentCount:   c.total,
		})
	}
	return resp, nil
}

// GetSchoolRiskData ranks the schools of a district by their share of
// at-risk students, highest first.
func (s *Service) GetSchoolRiskData(district string) (*models.SchoolRiskResponse, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	ds := narrow(snap.Dataset, district, "")
	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w: district=%q", ErrNoDataForFilters, district)
	}

	var overall riskCount
	counts := make(map[schoolRef]*riskCount)
	records := ds.Records()
	for i := range records {
		r := &records[i]
		overall.add(r)
		ref := schoolRef{district: districtValue(r), id: schoolValue(r), name: schoolLabel(r)}
		if ref.id == "" {
			continue
		}
		c, ok := counts[ref]
		if !ok {
			c = &riskCount{}
			counts[ref] = c
		}
		c.add(r)
	}

	avg := overall.share()
	resp := &models.SchoolRiskResponse{
		Schools:          []models.SchoolRiskItem{},
		TotalStudents:    overall.total,
		AverageRisk:      avg,
		AverageRiskLevel: string(SchoolRiskLevel(avg)),
		RiskDistribution: make(map[string]int, len(dataset.RiskLevels)),
	}
	for _, level := range dataset.RiskLevels {
		resp.RiskDistribution[string(level)] = 0
	}
	for ref, c := range counts {
		share := c.share()
		level := SchoolRiskLevel(share)
		resp.Schools = append(resp.Schools, models.SchoolRiskItem{
			SchoolID:       ref.id,
			SchoolName:     ref.name,
			RiskPercentage: share,
			StudentCount:   c.total,
			RiskLevel:      string(level),
		})
		resp.RiskDistribution[string(level)]++
	}
	sort.Slice(resp.Schools, func(i, j int) bool {
		a, b := resp.Schools[i], resp.Schools[j]
		if a.RiskPercentage != b.RiskPercentage {
			return a.RiskPercentage > b.RiskPercentage
		}
		return a.SchoolID < b.SchoolID
	})
	return resp, nil
}
