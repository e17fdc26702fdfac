package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
)

// Options controls batch summaries.
type Options struct {
	// TopN limits the high-risk employee listing; 0 disables it.
	TopN int
	// Robust Z-score (MAD) cutoff for outlier counts. 0 means 3.5.
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for risk summaries.
func DefaultOptions() Options {
	return Options{TopN: 3, OutlierThreshold: 3.5}
}

// minOutlierSample is the smallest column for which robust outliers are counted.
const minOutlierSample = 8

// Summary is a markdown-friendly digest of a grouped batch.
type Summary struct {
	Name          string           `json:"name"`
	RunID         string           `json:"run_id,omitempty"`
	Total         int              `json:"total"`
	Anomalies     int              `json:"anomalies"`
	HighRiskGroup int              `json:"high_risk_group"`
	HighRisk      int              `json:"high_risk"`
	Tiers         []TierSummary    `json:"tiers"`
	Outliers      []OutlierSummary `json:"outliers,omitempty"`
	TopHighRisk   []Employee       `json:"top_high_risk,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
}

// TierSummary describes one risk group.
type TierSummary struct {
	Group     int                   `json:"group"`
	Label     string                `json:"label"`
	Size      int                   `json:"size"`
	Anomalies int                   `json:"anomalies"`
	Metrics   map[string]NumSummary `json:"metrics"` // by feature column
}

// NumSummary holds count, range and mean of one metric.
type NumSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// OutlierSummary counts values whose robust Z-score exceeds Threshold.
type OutlierSummary struct {
	Column    string  `json:"column"`
	Count     int     `json:"count"`
	MaxAbsZ   float64 `json:"max_abs_z"`
	Threshold float64 `json:"threshold"`
}

// Employee is one row of the high-risk listing.
type Employee struct {
	EmployeeID    string  `json:"employee_id"`
	HeartRate     float64 `json:"heart_rate"`
	BloodPressure float64 `json:"blood_pressure"`
	FatigueScore  float64 `json:"fatigue_score"`
	Intervention  string  `json:"intervention,omitempty"`
}

// Summarize computes counts, per-group metrics, robust outliers and the most
// fatigued high-risk employees. The highest group index is treated as high risk.
func Summarize(b *risk.Batch, opt Options) (*Summary, error) {
	if b == nil {
		return nil, errors.New("summarize: batch is nil")
	}
	if b.Stage < risk.StageGrouped {
		return nil, fmt.Errorf("summarize: batch is %s, needs to be %s first", b.Stage, risk.StageGrouped)
	}
	thr := opt.OutlierThreshold
	if thr <= 0 {
		thr = 3.5
	}

	s := &Summary{
		Name:          b.Name,
		RunID:         b.RunID,
		Total:         b.Len(),
		HighRiskGroup: b.Clusters - 1,
		Warnings:      append([]string(nil), b.Warnings...),
	}

	tiers := make([]TierSummary, b.Clusters)
	vals := make([][][]float64, b.Clusters)
	for g := range tiers {
		tiers[g] = TierSummary{Group: g, Label: risk.TierLabel(g), Metrics: map[string]NumSummary{}}
		vals[g] = make([][]float64, len(risk.FeatureColumns))
	}
	var high []risk.Record
	for _, r := range b.Records {
		if r.IsAnomaly {
			s.Anomalies++
		}
		g := r.RiskGroup
		if g < 0 || g >= b.Clusters {
			return nil, &risk.InvalidLabelError{Label: g}
		}
		tiers[g].Size++
		if r.IsAnomaly {
			tiers[g].Anomalies++
		}
		for j, v := range r.Metrics {
			vals[g][j] = append(vals[g][j], v)
		}
		if g == s.HighRiskGroup {
			high = append(high, r)
		}
	}
	for g := range tiers {
		for j, col := range risk.FeatureColumns {
			if len(vals[g][j]) > 0 {
				tiers[g].Metrics[col] = numSummary(vals[g][j])
			}
		}
	}
	s.Tiers = tiers
	s.HighRisk = len(high)

	for j, col := range risk.FeatureColumns {
		all := make([]float64, 0, b.Len())
		for _, r := range b.Records {
			all = append(all, r.Metrics[j])
		}
		if len(all) < minOutlierSample {
			continue
		}
		cnt, maxAbsZ := robustOutliers(all, thr)
		s.Outliers = append(s.Outliers, OutlierSummary{Column: col, Count: cnt, MaxAbsZ: maxAbsZ, Threshold: thr})
	}

	if opt.TopN > 0 && len(high) > 0 {
		sort.SliceStable(high, func(i, j int) bool { return high[i].Metrics[2] > high[j].Metrics[2] })
		n := opt.TopN
		if n > len(high) {
			n = len(high)
		}
		for _, r := range high[:n] {
			s.TopHighRisk = append(s.TopHighRisk, Employee{
				EmployeeID:    r.EmployeeID,
				HeartRate:     r.Metrics[0],
				BloodPressure: r.Metrics[1],
				FatigueScore:  r.Metrics[2],
				Intervention:  r.Intervention,
			})
		}
	}
	return s, nil
}

func numSummary(vals []float64) NumSummary {
	ns := NumSummary{Count: len(vals), Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range vals {
		sum += v
		if v < ns.Min {
			ns.Min = v
		}
		if v > ns.Max {
			ns.Max = v
		}
	}
	ns.Mean = sum / float64(len(vals))
	return ns
}

// robustOutliers counts values with |0.6745*(x-median)/MAD| above thr. A zero
// MAD yields no outliers.
func robustOutliers(vals []float64, thr float64) (count int, maxAbsZ float64) {
	median, mad := risk.MedianMAD(vals)
	if mad <= 0 {
		return 0, 0
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > thr {
			count++
		}
		if az > maxAbsZ {
			maxAbsZ = az
		}
	}
	return count, maxAbsZ
}

// Markdown renders the summary as plain sections.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("[RISK SUMMARY]\n")
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", s.Name))
	}
	if s.RunID != "" {
		b.WriteString(fmt.Sprintf("Run: %s\n", s.RunID))
	}
	b.WriteString(fmt.Sprintf("Total employees: %d\n", s.Total))
	b.WriteString(fmt.Sprintf("Anomalies detected: %d\n", s.Anomalies))
	b.WriteString(fmt.Sprintf("High risk employees: %d\n", s.HighRisk))

	b.WriteString("\n[RISK GROUPS]\n")
	for _, t := range s.Tiers {
		b.WriteString(fmt.Sprintf("- %s (group %d, n=%d, anomalies %d)\n", t.Label, t.Group, t.Size, t.Anomalies))
		for _, col := range risk.FeatureColumns {
			m, ok := t.Metrics[col]
			if !ok {
				continue
			}
			b.WriteString(fmt.Sprintf("  • %s: mean %.4g (min %.4g, max %.4g)\n", col, m.Mean, m.Min, m.Max))
		}
	}

	if len(s.Outliers) > 0 {
		b.WriteString("\n[ROBUST OUTLIERS]\n")
		for _, o := range s.Outliers {
			b.WriteString(fmt.Sprintf("- %s: %d above |z|>%.1f", o.Column, o.Count, o.Threshold))
			if o.MaxAbsZ > 0 {
				b.WriteString(fmt.Sprintf(" (max |z|≈%.2f)", o.MaxAbsZ))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n[TOP HIGH-RISK EMPLOYEES]\n")
	if len(s.TopHighRisk) == 0 {
		b.WriteString("There are no high-risk employees currently.\n")
	} else {
		b.WriteString("| employee_id | heart_rate | blood_pressure | fatigue_score | intervention |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		for _, e := range s.TopHighRisk {
			b.WriteString(fmt.Sprintf("| %s | %.4g | %.4g | %.4g | %s |\n",
				safeVal(e.EmployeeID), e.HeartRate, e.BloodPressure, e.FatigueScore, safeVal(e.Intervention)))
		}
	}

	if len(s.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range s.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
