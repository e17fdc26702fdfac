package risk

import "math"

// Input column names recognized by the pipeline.
const (
	ColEmployeeID    = "employee_id"
	ColHeartRate     = "heart_rate"
	ColBloodPressure = "blood_pressure"
	ColFatigueScore  = "fatigue_score"
	ColJobRole       = "job_role"
)

// FeatureColumns lists the numeric features in the order they are stored in
// Record.Metrics and Record.Scaled.
var FeatureColumns = [3]string{ColHeartRate, ColBloodPressure, ColFatigueScore}

// RoleColumnPrefix prefixes every one-hot job role indicator column.
const RoleColumnPrefix = ColJobRole + "_"

// Stage records how far a batch has progressed through the pipeline.
type Stage int

const (
	StageRaw Stage = iota
	StagePrepared
	StageScored
	StageGrouped
	StageAnnotated
)

func (s Stage) String() string {
	switch s {
	case StageRaw:
		return "raw"
	case StagePrepared:
		return "prepared"
	case StageScored:
		return "scored"
	case StageGrouped:
		return "grouped"
	case StageAnnotated:
		return "annotated"
	default:
		return "unknown"
	}
}

// Bounds is the [Min, Max] range used for min-max scaling of one column.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Record is one employee row. Metrics holds heart_rate, blood_pressure and
// fatigue_score (NaN when missing); the remaining fields are derived.
type Record struct {
	EmployeeID string
	Metrics    [3]float64
	JobRole    string
	// Extra holds pass-through values aligned with Batch.ExtraColumns.
	Extra []string

	Roles        []uint8
	Scaled       [3]float64
	AnomalyScore float64
	IsAnomaly    bool
	RiskGroup    int
	Intervention string
}

// Batch is a single in-memory table processed as a unit. Stages never mutate
// a batch they receive; they return an updated clone.
type Batch struct {
	Name string
	// RunID identifies one pipeline execution over this batch.
	RunID string
	// Columns is the input schema as read from the source.
	Columns      []string
	ExtraColumns []string
	Records      []Record
	Stage        Stage

	// Set by Prepare.
	RoleValues []string
	Bounds     [3]Bounds
	// Set by GroupRisks. Centroids are indexed by final risk group.
	Clusters  int
	Centroids [][]float64

	Warnings []string
}

// NewBatch returns an empty raw batch with the given schema.
func NewBatch(name string, columns []string) *Batch {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Batch{Name: name, Columns: cols}
}

// Len returns the number of records.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// RoleColumns returns the one-hot indicator column names in indicator order.
func (b *Batch) RoleColumns() []string {
	out := make([]string, len(b.RoleValues))
	for i, v := range b.RoleValues {
		out[i] = RoleColumnPrefix + v
	}
	return out
}

// HasColumn reports whether the input schema contains name (case-insensitive).
func (b *Batch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if equalFoldTrim(c, name) {
			return true
		}
	}
	return false
}

// Features returns the scaled feature matrix, one row per record.
func (b *Batch) Features() [][]float64 {
	out := make([][]float64, len(b.Records))
	for i := range b.Records {
		row := make([]float64, len(FeatureColumns))
		copy(row, b.Records[i].Scaled[:])
		out[i] = row
	}
	return out
}

// Clone returns a deep copy of the batch.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	out := *b
	out.Columns = cloneStrings(b.Columns)
	out.ExtraColumns = cloneStrings(b.ExtraColumns)
	out.RoleValues = cloneStrings(b.RoleValues)
	out.Warnings = cloneStrings(b.Warnings)
	if b.Centroids != nil {
		out.Centroids = make([][]float64, len(b.Centroids))
		for i, c := range b.Centroids {
			out.Centroids[i] = append([]float64(nil), c...)
		}
	}
	out.Records = make([]Record, len(b.Records))
	for i, r := range b.Records {
		r.Extra = cloneStrings(r.Extra)
		if r.Roles != nil {
			r.Roles = append([]uint8(nil), r.Roles...)
		}
		out.Records[i] = r
	}
	return &out
}

// Missing is the value stored in Record.Metrics for an absent measurement.
func Missing() float64 { return math.NaN() }

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
