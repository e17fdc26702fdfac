package risk

import "fmt"

// Risk tiers produced when groups are ranked by severity.
const (
	RiskLow = iota
	RiskMedium
	RiskHigh
)

var interventions = map[int]string{
	RiskLow:    "Low Risk: Maintain current wellness routine",
	RiskMedium: "Medium Risk: Recommend ergonomic workshops and health checks",
	RiskHigh:   "High Risk: Immediate medical attention and personalized coaching",
}

var tierLabels = map[int]string{
	RiskLow:    "Low",
	RiskMedium: "Medium",
	RiskHigh:   "High",
}

// Intervention returns the recommendation for a risk group.
func Intervention(group int) (string, error) {
	s, ok := interventions[group]
	if !ok {
		return "", &InvalidLabelError{Label: group}
	}
	return s, nil
}

// TierLabel returns a short name for a risk group ("Low", "Medium", "High"),
// or "Group N" for groups outside the fixed table.
func TierLabel(group int) string {
	if s, ok := tierLabels[group]; ok {
		return s
	}
	return fmt.Sprintf("Group %d", group)
}

// AssignInterventions fills Record.Intervention from Record.RiskGroup.
func AssignInterventions(b *Batch) (*Batch, error) {
	if b == nil {
		return nil, fmt.Errorf("intervention: batch is nil")
	}
	if b.Stage < StageGrouped {
		return nil, stageError("intervention", b.Stage, StageGrouped)
	}
	out := b.Clone()
	for i := range out.Records {
		s, err := Intervention(out.Records[i].RiskGroup)
		if err != nil {
			return nil, fmt.Errorf("employee %s: %w", out.Records[i].EmployeeID, err)
		}
		out.Records[i].Intervention = s
	}
	out.Stage = StageAnnotated
	return out, nil
}
