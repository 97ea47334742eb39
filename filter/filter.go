package filter

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"attendance-insights-api/dataset"
)

// Criteria narrows a dataset. Blank fields impose no constraint.
type Criteria struct {
	District string `json:"districtCode" binding:"max=64"`
	School   string `json:"schoolCode" binding:"max=64"`
	Grade    string `json:"gradeCode" binding:"max=16"`
}

func (c Criteria) IsZero() bool {
	return strings.TrimSpace(c.District) == "" && strings.TrimSpace(c.School) == "" && strings.TrimSpace(c.Grade) == ""
}

func (c Criteria) String() string {
	return fmt.Sprintf("district=%q school=%q grade=%q", c.District, c.School, c.Grade)
}

var ErrMalformedCriteria = errors.New("malformed filter criteria")

// FilterError describes a selector that normalizes to nothing.
type FilterError struct {
	Field string
	Value string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s filter %q has no usable key", e.Field, e.Value)
}

func (e *FilterError) Unwrap() error {
	return ErrMalformedCriteria
}

type predicate func(*dataset.Record) bool

// Apply returns the records matching every present selector. Selectors are
// normalized before comparison. A malformed selector yields an empty dataset.
func Apply(ds *dataset.Dataset, c Criteria) *dataset.Dataset {
	preds, err := compile(ds.Schema(), c)
	if err != nil {
		log.Printf("filter rejected: %v", err)
		return ds.Empty()
	}
	if len(preds) == 0 {
		return ds
	}
	return ds.Where(func(r *dataset.Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	})
}

func compile(schema dataset.Schema, c Criteria) ([]predicate, error) {
	var preds []predicate
	if strings.TrimSpace(c.District) != "" {
		p, err := District(schema, c.District)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if strings.TrimSpace(c.School) != "" {
		p, err := School(schema, c.School)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if strings.TrimSpace(c.Grade) != "" {
		p, err := Grade(c.Grade)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// District matches on the normalized district code, or on the uppercased
// district name when the source carried no code column.
func District(schema dataset.Schema, value string) (func(*dataset.Record) bool, error) {
	if !schema.DistrictCode {
		key := NormalizeName(value)
		return func(r *dataset.Record) bool { return NormalizeName(r.DistrictName) == key }, nil
	}
	key := NormalizeDistrict(value)
	if key == "" {
		return nil, &FilterError{Field: "district", Value: value}
	}
	return func(r *dataset.Record) bool { return NormalizeDistrict(r.DistrictCode) == key }, nil
}

// School matches the trimmed location id, or the uppercased school name when
// no location column exists. A composite "<prefix>-<location>" value also
// matches its location part.
func School(schema dataset.Schema, value string) (func(*dataset.Record) bool, error) {
	if !schema.LocationID {
		key := NormalizeName(value)
		return func(r *dataset.Record) bool { return NormalizeName(r.SchoolName) == key }, nil
	}
	key := strings.TrimSpace(value)
	token := SchoolToken(value)
	if token == "" {
		return nil, &FilterError{Field: "school", Value: value}
	}
	return func(r *dataset.Record) bool {
		loc := strings.TrimSpace(r.LocationID)
		return loc == key || loc == token
	}, nil
}

func Grade(value string) (func(*dataset.Record) bool, error) {
	key := NormalizeGrade(value)
	if key == "" {
		return nil, &FilterError{Field: "grade", Value: value}
	}
	return func(r *dataset.Record) bool { return NormalizeGrade(r.Grade) == key }, nil
}
