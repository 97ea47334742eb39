package dataset

// Schema records which optional source columns were present at load time.
// It is validated once by the loader so downstream code branches on typed
// presence instead of probing column names.
type Schema struct {
	SchoolYear   bool
	DistrictCode bool
	DistrictName bool
	LocationID   bool
	SchoolName   bool
	Grade        bool

	DaysPresent   bool
	DaysEnrolled  bool
	DaysUnexcused bool

	PriorAttendance bool
	PriorUnexcused  bool

	// Predictions is true when the fractional Predictions column was used;
	// false means Predicted_Attendance supplied percentages directly.
	Predictions        bool
	DistrictPrediction bool
	SchoolPrediction   bool
	GradePrediction    bool

	Demographics []string
}

// HasAttendance reports whether attendance and unexcused rates can be derived.
func (s Schema) HasAttendance() bool {
	return s.DaysPresent && s.DaysEnrolled
}

func (s Schema) HasUnexcused() bool {
	return s.DaysUnexcused && s.DaysEnrolled
}

func (s Schema) HasDemographic(column string) bool {
	for _, c := range s.Demographics {
		if c == column {
			return true
		}
	}
	return false
}

// Dataset is an immutable collection of records sharing one schema. Views
// produced by Where share record storage with their parent and must be
// treated as read-only.
type Dataset struct {
	schema  Schema
	records []Record
}

func New(schema Schema, records []Record) *Dataset {
	return &Dataset{schema: schema, records: records}
}

func (d *Dataset) Schema() Schema {
	return d.schema
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Records exposes the underlying rows. Callers must not modify them.
func (d *Dataset) Records() []Record {
	if d == nil {
		return nil
	}
	return d.records
}

// Where returns a new dataset holding the records matching keep.
func (d *Dataset) Where(keep func(*Record) bool) *Dataset {
	out := make([]Record, 0, len(d.records)/2)
	for i := range d.records {
		if keep(&d.records[i]) {
			out = append(out, d.records[i])
		}
	}
	return &Dataset{schema: d.schema, records: out}
}

// Empty returns a dataset with the same schema and no rows.
func (d *Dataset) Empty() *Dataset {
	return &Dataset{schema: d.schema}
}

// WithDerived returns a copy of the dataset whose records carry the derived
// columns produced by fn. The receiver is left untouched.
func (d *Dataset) WithDerived(fn func(i int, r *Record) Derived) *Dataset {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	for i := range out {
		out[i].Derived = fn(i, &out[i])
	}
	return &Dataset{schema: d.schema, records: out}
}

// Complete reports whether every record carries its derived columns.
func (d *Dataset) Complete() bool {
	for i := range d.records {
		if !d.records[i].Derived.Complete() {
			return false
		}
	}
	return true
}
