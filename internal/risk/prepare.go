package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Encoding pins scaling bounds and the job role vocabulary so that the same
// raw record encodes identically across batches. A nil Encoding means both
// are derived from the batch itself.
type Encoding struct {
	Bounds [3]Bounds
	Roles  []string
}

// Prepare imputes missing metrics with the batch median, one-hot encodes
// job_role and min-max scales the three metrics onto [0,1].
//
// A column whose min equals its max scales to 0 for every row.
func Prepare(b *Batch, enc *Encoding) (*Batch, error) {
	if b == nil {
		return nil, fmt.Errorf("prepare: batch is nil")
	}
	for _, col := range FeatureColumns {
		if !b.HasColumn(col) {
			return nil, &SchemaError{Column: col, Reason: "required column is missing"}
		}
	}
	if len(b.Records) == 0 {
		return nil, &DegenerateBatchError{Stage: "prepare", Have: 0, Need: 1}
	}
	out := b.Clone()

	// Impute before scaling so medians come from raw values.
	for j, col := range FeatureColumns {
		vals := make([]float64, len(out.Records))
		for i := range out.Records {
			v := out.Records[i].Metrics[j]
			if math.IsInf(v, 0) {
				return nil, &SchemaError{Column: col, Row: i + 1, Reason: "value is not a finite number"}
			}
			vals[i] = v
		}
		med, ok := Median(vals)
		if !ok {
			return nil, &SchemaError{Column: col, Reason: "no values to impute from"}
		}
		for i := range out.Records {
			if math.IsNaN(out.Records[i].Metrics[j]) {
				out.Records[i].Metrics[j] = med
			}
		}
	}

	encodeRoles(out, enc)

	for j := range FeatureColumns {
		vals := make([]float64, len(out.Records))
		for i := range out.Records {
			vals[i] = out.Records[i].Metrics[j]
		}
		bd := ColumnBounds(vals)
		if enc != nil {
			bd = enc.Bounds[j]
		}
		scaled := ScaleColumn(vals, bd)
		if enc != nil {
			for i := range scaled {
				scaled[i] = clamp01(scaled[i])
			}
		}
		for i := range out.Records {
			out.Records[i].Scaled[j] = scaled[i]
		}
		out.Bounds[j] = bd
	}
	out.Stage = StagePrepared
	return out, nil
}

// ColumnBounds returns the observed min and max of vals.
func ColumnBounds(vals []float64) Bounds {
	if len(vals) == 0 {
		return Bounds{}
	}
	bd := Bounds{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range vals {
		if v < bd.Min {
			bd.Min = v
		}
		if v > bd.Max {
			bd.Max = v
		}
	}
	return bd
}

// ScaleColumn maps vals linearly from bd onto [0,1]. When bd has no width
// every value maps to 0.
func ScaleColumn(vals []float64, bd Bounds) []float64 {
	out := make([]float64, len(vals))
	width := bd.Max - bd.Min
	if width <= 0 {
		return out
	}
	for i, v := range vals {
		out[i] = (v - bd.Min) / width
	}
	return out
}

func encodeRoles(b *Batch, enc *Encoding) {
	// An Encoding pins the vocabulary even when it is empty.
	var vocab []string
	if enc != nil {
		vocab = cloneStrings(enc.Roles)
	} else {
		seen := map[string]struct{}{}
		for _, r := range b.Records {
			role := strings.TrimSpace(r.JobRole)
			if role == "" {
				continue
			}
			if _, ok := seen[role]; !ok {
				seen[role] = struct{}{}
				vocab = append(vocab, role)
			}
		}
		sort.Strings(vocab)
	}
	index := make(map[string]int, len(vocab))
	for i, v := range vocab {
		index[v] = i
	}
	unseen := map[string]int{}
	for i := range b.Records {
		ind := make([]uint8, len(vocab))
		role := strings.TrimSpace(b.Records[i].JobRole)
		if k, ok := index[role]; ok {
			ind[k] = 1
		} else if role != "" {
			unseen[role]++
		}
		b.Records[i].Roles = ind
	}
	b.RoleValues = vocab
	if len(unseen) > 0 {
		names := make([]string, 0, len(unseen))
		total := 0
		for k, n := range unseen {
			names = append(names, k)
			total += n
		}
		sort.Strings(names)
		b.Warnings = append(b.Warnings, fmt.Sprintf("%d records have a job_role outside the encoding vocabulary: %s", total, strings.Join(names, ", ")))
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
