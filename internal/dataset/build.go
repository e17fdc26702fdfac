package dataset

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
)

// build maps raw rows onto a risk.Batch. Header names are matched
// case-insensitively after trimming. Rows that are entirely blank or miss a
// required field are dropped and counted in a warning.
func build(name string, header []string, rows [][]string, opt Options) (*risk.Batch, error) {
	if len(header) == 0 {
		return nil, &risk.SchemaError{Column: risk.ColEmployeeID, Reason: "input has no header row"}
	}
	cols := make([]string, len(header))
	index := map[string]int{}
	clash := map[int]bool{}
	var clashNames []string
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[i] = h
		if isDerivedColumn(h) {
			clash[i] = true
			clashNames = append(clashNames, h)
			continue
		}
		key := strings.ToLower(h)
		if _, dup := index[key]; !dup && key != "" {
			index[key] = i
		}
	}
	lookup := func(col string) int {
		if i, ok := index[strings.ToLower(strings.TrimSpace(col))]; ok {
			return i
		}
		return -1
	}

	for _, col := range risk.FeatureColumns {
		if lookup(col) < 0 {
			return nil, &risk.SchemaError{Column: col, Reason: "required column is missing"}
		}
	}
	required := make([]int, 0, len(opt.RequiredFields))
	for _, col := range opt.RequiredFields {
		i := lookup(col)
		if i < 0 {
			return nil, &risk.SchemaError{Column: col, Reason: "required column is missing"}
		}
		required = append(required, i)
	}

	idCol := lookup(risk.ColEmployeeID)
	roleCol := lookup(risk.ColJobRole)
	var featureCols [3]int
	for j, col := range risk.FeatureColumns {
		featureCols[j] = lookup(col)
	}
	known := map[int]bool{idCol: true, roleCol: true}
	for _, i := range featureCols {
		known[i] = true
	}
	var extraIdx []int
	var extraCols []string
	kept := make([]string, 0, len(cols))
	for i, c := range cols {
		if clash[i] {
			continue
		}
		kept = append(kept, c)
		if known[i] || c == "" {
			continue
		}
		extraIdx = append(extraIdx, i)
		extraCols = append(extraCols, c)
	}

	b := risk.NewBatch(name, kept)
	b.ExtraColumns = extraCols
	if len(clashNames) > 0 {
		b.Warnings = append(b.Warnings, fmt.Sprintf("dropped input columns that clash with derived output: %s", strings.Join(clashNames, ", ")))
	}
	if roleCol < 0 {
		b.Warnings = append(b.Warnings, "no job_role column; role indicators will be empty")
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	dropped := 0
	for n, row := range rows {
		if isBlankRow(row) {
			dropped++
			continue
		}
		incomplete := false
		for _, i := range required {
			if cell(row, i) == "" {
				incomplete = true
				break
			}
		}
		if incomplete {
			dropped++
			continue
		}
		rec := risk.Record{
			EmployeeID: cell(row, idCol),
			JobRole:    cell(row, roleCol),
		}
		for j, i := range featureCols {
			raw := cell(row, i)
			if raw == "" {
				rec.Metrics[j] = risk.Missing()
				continue
			}
			v, ok := parseNumeric(raw, opt)
			if !ok {
				return nil, &risk.SchemaError{
					Column: risk.FeatureColumns[j],
					Row:    n + 1,
					Reason: fmt.Sprintf("value %q is not numeric", raw),
				}
			}
			rec.Metrics[j] = v
		}
		if len(extraIdx) > 0 {
			rec.Extra = make([]string, len(extraIdx))
			for k, i := range extraIdx {
				rec.Extra[k] = cell(row, i)
			}
		}
		b.Records = append(b.Records, rec)
	}
	if dropped > 0 {
		b.Warnings = append(b.Warnings, fmt.Sprintf("removed %d incomplete or empty rows", dropped))
	}
	return b, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
