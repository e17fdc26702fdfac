package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
)

// Options controls how a tabular file is read and cleaned.
type Options struct {
	// Delimiter for CSV. If 0, chosen from the file extension.
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune // optional; if 0, strip common separators (',' '.' space)
	// RequiredFields must be non-empty for a row to be kept.
	RequiredFields []string
	// XLSX sheet selection; SheetIndex is 1-based.
	SheetName  string
	SheetIndex int
}

// DefaultRequiredFields are the columns a row needs before it enters the pipeline.
var DefaultRequiredFields = []string{risk.ColEmployeeID, risk.ColHeartRate, risk.ColBloodPressure, risk.ColFatigueScore}

// DefaultOptions returns reasonable defaults for employee metric files.
func DefaultOptions() Options {
	return Options{
		RequiredFields: append([]string(nil), DefaultRequiredFields...),
		SheetIndex:     1,
	}
}

// Reader turns one file format into a header and rows.
type Reader interface {
	CanRead(filename string) bool
	Read(r io.Reader, opt Options) (header []string, rows [][]string, err error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

func init() {
	Register(csvReader{})
	Register(xlsxReader{})
}

// ErrUnsupported indicates no registered reader handles the file.
var ErrUnsupported = errors.New("unsupported dataset format")

// Load reads and cleans the file at path.
func Load(path string, opt Options) (*risk.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Parse(filepath.Base(path), f, opt)
}

// Parse reads and cleans a dataset named name from r. The name selects the
// reader; names without a known extension are read as CSV.
func Parse(name string, r io.Reader, opt Options) (*risk.Batch, error) {
	rd, err := readerFor(name)
	if err != nil {
		return nil, err
	}
	if opt.Delimiter == 0 {
		opt.Delimiter = sniffDelimiter(name)
	}
	header, rows, err := rd.Read(r, opt)
	if err != nil {
		return nil, err
	}
	return build(name, header, rows, opt)
}

// ParseBytes is Parse over an in-memory payload.
func ParseBytes(name string, data []byte, opt Options) (*risk.Batch, error) {
	return Parse(name, bytes.NewReader(data), opt)
}

func readerFor(name string) (Reader, error) {
	for _, rd := range registry {
		if rd.CanRead(name) {
			return rd, nil
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == ".txt" {
		return csvReader{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
}
