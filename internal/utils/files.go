package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir ensures the provided directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// SafeWriteFile writes data to a temp file and atomically renames it into place.
func SafeWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// PrettyJSON marshals a value as indented JSON.
func PrettyJSON(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return b, nil
}

// OutputPath derives a sibling output file for input by replacing its
// extension with suffix, e.g. ("data/staff.csv", "_annotated.csv").
func OutputPath(input, dir, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base+suffix)
}

// UniqueStem returns stem, or stem with "__2", "__3", ... appended, such that
// no stem+suffix file exists yet and taken does not already hold the stem. The
// result is recorded in taken.
func UniqueStem(stem string, suffixes []string, taken map[string]bool) string {
	claimed := func(s string) bool {
		if taken[s] {
			return true
		}
		for _, suf := range suffixes {
			if _, err := os.Stat(s + suf); err == nil {
				return true
			}
		}
		return false
	}
	cand := stem
	for i := 2; claimed(cand); i++ {
		cand = fmt.Sprintf("%s__%d", stem, i)
	}
	taken[cand] = true
	return cand
}
