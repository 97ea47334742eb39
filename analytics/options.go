package analytics

import (
	"sort"
	"strings"

	"attendance-insights-api/dataset"
	"attendance-insights-api/filter"
	"attendance-insights-api/models"
)

type schoolRef struct {
	district string
	id       string
	name     string
}

func districtValue(r *dataset.Record) string {
	if r.DistrictCode != "" {
		return strings.TrimSpace(r.DistrictCode)
	}
	return strings.TrimSpace(r.DistrictName)
}

func schoolValue(r *dataset.Record) string {
	if r.LocationID != "" {
		return strings.TrimSpace(r.LocationID)
	}
	return strings.TrimSpace(r.SchoolName)
}

func schoolLabel(r *dataset.Record) string {
	if r.SchoolName != "" {
		return strings.TrimSpace(r.SchoolName)
	}
	return strings.TrimSpace(r.LocationID)
}

// schools lists the distinct schools of records sorted by label, then id.
func schools(records []dataset.Record) []schoolRef {
	seen := make(map[schoolRef]bool)
	var out []schoolRef
	for i := range records {
		r := &records[i]
		ref := schoolRef{district: districtValue(r), id: schoolValue(r), name: schoolLabel(r)}
		if ref.id == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		if out[i].id != out[j].id {
			return out[i].id < out[j].id
		}
		return out[i].district < out[j].district
	})
	return out
}

// grades lists the distinct canonical grade tokens in PK, K, 1..12 order.
func grades(records []dataset.Record) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range records {
		g := filter.NormalizeGrade(records[i].Grade)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return filter.GradeLess(out[i], out[j]) })
	return out
}

// GetFilterOptions lists every district, school and per-school grade.
func (s *Service) GetFilterOptions() (*models.FilterOptions, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	records := snap.Dataset.Records()

	districtLabels := make(map[string]string)
	for i := range records {
		r := &records[i]
		v := districtValue(r)
		if v == "" {
			continue
		}
		if _, ok := districtLabels[v]; !ok {
			label := strings.TrimSpace(r.DistrictName)
			if label == "" {
				label = v
			}
			districtLabels[v] = label
		}
	}
	opts := &models.FilterOptions{
		Districts: []models.ValueLabel{},
		Schools:   []models.SchoolOption{},
		Grades:    []models.GradeOption{},
	}
	for v, label := range districtLabels {
		opts.Districts = append(opts.Districts, models.ValueLabel{Value: v, Label: label})
	}
	sort.Slice(opts.Districts, func(i, j int) bool { return opts.Districts[i].Value < opts.Districts[j].Value })

	bySchool := make(map[schoolRef][]dataset.Record)
	for i := range records {
		r := &records[i]
		ref := schoolRef{district: districtValue(r), id: schoolValue(r), name: schoolLabel(r)}
		bySchool[ref] = append(bySchool[ref], *r)
	}
	for _, ref := range schools(records) {
		opts.Schools = append(opts.Schools, models.SchoolOption{Value: ref.id, Label: ref.name, District: ref.district})
		for _, g := range grades(bySchool[ref]) {
			opts.Grades = append(opts.Grades, models.GradeOption{
				Value:    g,
				Label:    filter.GradeLabel(g),
				School:   ref.id,
				District: ref.district,
			})
		}
	}
	return opts, nil
}

// narrow applies the optional district and school selectors used by the
// lookup endpoints.
func narrow(ds *dataset.Dataset, district, school string) *dataset.Dataset {
	return filter.Apply(ds, filter.Criteria{District: district, School: school})
}

// GetSchools lists the schools of a district, or every school when district
// is blank.
func (s *Service) GetSchools(district string) ([]models.SchoolOption, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	out := []models.SchoolOption{}
	for _, ref := range schools(narrow(snap.Dataset, district, "").Records()) {
		out = append(out, models.SchoolOption{Value: ref.id, Label: ref.name, District: ref.district})
	}
	return out, nil
}

// GetGrades lists the canonical grades present for the selection.
func (s *Service) GetGrades(district, school string) ([]models.GradeOption, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	out := []models.GradeOption{}
	for _, g := range grades(narrow(snap.Dataset, district, school).Records()) {
		out = append(out, models.GradeOption{
			Value:    g,
			Label:    filter.GradeLabel(g),
			School:   strings.TrimSpace(school),
			District: strings.TrimSpace(district),
		})
	}
	return out, nil
}
