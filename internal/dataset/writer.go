package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
	"github.com/KaramelBytes/wellrisk-cli/internal/utils"
)

// Columns appended by Write after the input columns.
const (
	ColAnomalyScore = "anomaly_score"
	ColIsAnomaly    = "is_anomaly"
	ColRiskGroup    = "risk_group"
	ColIntervention = "intervention"

	scaledSuffix = "_scaled"
)

// isDerivedColumn reports whether an input header would collide with a column
// the pipeline appends on export.
func isDerivedColumn(col string) bool {
	key := strings.ToLower(strings.TrimSpace(col))
	switch key {
	case ColAnomalyScore, ColIsAnomaly, ColRiskGroup, ColIntervention:
		return true
	}
	if strings.HasPrefix(key, strings.ToLower(risk.RoleColumnPrefix)) {
		return true
	}
	for _, c := range risk.FeatureColumns {
		if key == c+scaledSuffix {
			return true
		}
	}
	return false
}

// OutputColumns returns the export header for b. Derived columns appear only
// once the stage that produces them has run.
func OutputColumns(b *risk.Batch) []string {
	out := append([]string(nil), b.Columns...)
	if b.Stage >= risk.StagePrepared {
		out = append(out, b.RoleColumns()...)
		for _, c := range risk.FeatureColumns {
			out = append(out, c+scaledSuffix)
		}
	}
	if b.Stage >= risk.StageScored {
		out = append(out, ColAnomalyScore, ColIsAnomaly)
	}
	if b.Stage >= risk.StageGrouped {
		out = append(out, ColRiskGroup)
	}
	if b.Stage >= risk.StageAnnotated {
		out = append(out, ColIntervention)
	}
	return out
}

// Write exports b as CSV. Metric columns carry imputed values once the batch
// has been prepared.
func Write(w io.Writer, b *risk.Batch) error {
	if b == nil {
		return fmt.Errorf("write dataset: batch is nil")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(OutputColumns(b)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	extraAt := map[string]int{}
	for i, c := range b.ExtraColumns {
		extraAt[strings.ToLower(c)] = i
	}
	for i := range b.Records {
		r := &b.Records[i]
		row := make([]string, 0, len(b.Columns)+8)
		for _, c := range b.Columns {
			row = append(row, inputValue(r, c, extraAt))
		}
		if b.Stage >= risk.StagePrepared {
			for _, v := range r.Roles {
				row = append(row, strconv.Itoa(int(v)))
			}
			for _, v := range r.Scaled {
				row = append(row, formatFloat(v))
			}
		}
		if b.Stage >= risk.StageScored {
			row = append(row, formatFloat(r.AnomalyScore), strconv.FormatBool(r.IsAnomaly))
		}
		if b.Stage >= risk.StageGrouped {
			row = append(row, strconv.Itoa(r.RiskGroup))
		}
		if b.Stage >= risk.StageAnnotated {
			row = append(row, r.Intervention)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile exports b to path atomically.
func WriteFile(path string, b *risk.Batch) error {
	var buf bytes.Buffer
	if err := Write(&buf, b); err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

func inputValue(r *risk.Record, col string, extraAt map[string]int) string {
	key := strings.ToLower(strings.TrimSpace(col))
	switch key {
	case risk.ColEmployeeID:
		return r.EmployeeID
	case risk.ColJobRole:
		return r.JobRole
	}
	for j, fc := range risk.FeatureColumns {
		if key == fc {
			return formatFloat(r.Metrics[j])
		}
	}
	if i, ok := extraAt[key]; ok && i < len(r.Extra) {
		return r.Extra[i]
	}
	return ""
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
