package risk

import (
	"errors"
	"fmt"
)

// Sentinels matched via errors.Is against the typed errors below.
var (
	ErrSchema          = errors.New("schema error")
	ErrDegenerateBatch = errors.New("degenerate batch")
	ErrInvalidLabel    = errors.New("invalid risk label")
)

// SchemaError indicates a required column is missing or holds a value of the
// wrong type. Row is 1-based over data rows; 0 means the whole column.
type SchemaError struct {
	Column string
	Row    int
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("schema: column %q row %d: %s", e.Column, e.Row, e.Reason)
	}
	return fmt.Sprintf("schema: column %q: %s", e.Column, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// DegenerateBatchError indicates too few records for a stage.
type DegenerateBatchError struct {
	Stage string
	Have  int
	Need  int
}

func (e *DegenerateBatchError) Error() string {
	return fmt.Sprintf("%s: batch has %d records, need at least %d", e.Stage, e.Have, e.Need)
}

func (e *DegenerateBatchError) Is(target error) bool { return target == ErrDegenerateBatch }

// InvalidLabelError indicates a risk group with no intervention mapping.
type InvalidLabelError struct {
	Label int
}

func (e *InvalidLabelError) Error() string {
	return fmt.Sprintf("risk group %d has no intervention", e.Label)
}

func (e *InvalidLabelError) Is(target error) bool { return target == ErrInvalidLabel }

// stageError reports a batch handed to a stage before its prerequisites ran.
func stageError(stage string, have, need Stage) error {
	return fmt.Errorf("%s: batch is %s, needs to be %s first", stage, have, need)
}
