package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
	"github.com/KaramelBytes/wellrisk-cli/internal/utils"
	"github.com/google/uuid"
)

const (
	profileFileName = "profile.json"
)

// Profile pins the scaling bounds and job role vocabulary used to encode
// batches, so that the same raw record encodes identically across runs.
type Profile struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Version     int                    `json:"version"`
	Bounds      map[string]risk.Bounds `json:"bounds"`
	Roles       []string               `json:"roles"`
	// Source and Records describe the batch the profile was last fitted on.
	Source    string    `json:"source,omitempty"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Not serialized: on-disk location of the profile.json
	rootDir string `json:"-"`
}

// ErrNotFitted is returned by Encoding for a profile that has no bounds yet.
var ErrNotFitted = errors.New("profile has not been fitted")

// NewProfile constructs an in-memory profile. Call Fit and Save to persist.
func NewProfile(name, description, rootDir string) *Profile {
	return &Profile{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Bounds:      make(map[string]risk.Bounds),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		rootDir:     rootDir,
	}
}

// ValidateName rejects names that cannot be used as a directory.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("profile name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid profile name %q", name)
	}
	return nil
}

// Dir returns the directory of the named profile under root.
func Dir(root, name string) string { return filepath.Join(root, name) }

// LoadProfile loads a profile.json from the provided directory.
func LoadProfile(dir string) (*Profile, error) {
	path := filepath.Join(dir, profileFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("profile not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	p.rootDir = dir
	return &p, nil
}

// List loads every profile stored directly under root, sorted by name. A
// missing root yields no profiles.
func List(root string) ([]*Profile, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}
	var out []*Profile
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, profileFileName)); err != nil {
			continue
		}
		p, err := LoadProfile(dir)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RootDir returns the on-disk profile directory path.
func (p *Profile) RootDir() string { return p.rootDir }

// Save writes profile.json using atomic write.
func (p *Profile) Save() error {
	if p.rootDir == "" {
		return errors.New("profile root directory not set")
	}
	if err := utils.EnsureDir(p.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	p.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(p)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(p.rootDir, profileFileName), data)
}

// Fit derives bounds and the role vocabulary from b and bumps Version.
func (p *Profile) Fit(b *risk.Batch) error {
	prepared, err := risk.Prepare(b, nil)
	if err != nil {
		return fmt.Errorf("fit profile: %w", err)
	}
	if p.Bounds == nil {
		p.Bounds = make(map[string]risk.Bounds)
	}
	for j, col := range risk.FeatureColumns {
		p.Bounds[col] = prepared.Bounds[j]
	}
	p.Roles = append([]string(nil), prepared.RoleValues...)
	p.Source = b.Name
	p.Records = prepared.Len()
	p.Version++
	p.UpdatedAt = time.Now()
	return nil
}

// Encoding converts the profile into the form risk.Prepare consumes.
func (p *Profile) Encoding() (*risk.Encoding, error) {
	if p == nil || p.Version == 0 {
		return nil, ErrNotFitted
	}
	enc := &risk.Encoding{Roles: append([]string(nil), p.Roles...)}
	for j, col := range risk.FeatureColumns {
		bd, ok := p.Bounds[col]
		if !ok {
			return nil, fmt.Errorf("profile %s: missing bounds for %s", p.Name, col)
		}
		if bd.Max < bd.Min {
			return nil, fmt.Errorf("profile %s: bounds for %s are inverted", p.Name, col)
		}
		enc.Bounds[j] = bd
	}
	return enc, nil
}

// Describe renders a short human-readable overview.
func (p *Profile) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Profile: %s (v%d)\n", p.Name, p.Version)
	fmt.Fprintf(&sb, "ID: %s\n", p.ID)
	if p.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", p.Description)
	}
	if p.Source != "" {
		fmt.Fprintf(&sb, "Fitted on: %s (%d records)\n", p.Source, p.Records)
	}
	for _, col := range risk.FeatureColumns {
		if bd, ok := p.Bounds[col]; ok {
			fmt.Fprintf(&sb, "- %s: [%.4g, %.4g]\n", col, bd.Min, bd.Max)
		}
	}
	if len(p.Roles) > 0 {
		fmt.Fprintf(&sb, "Roles: %s\n", strings.Join(p.Roles, ", "))
	} else {
		sb.WriteString("Roles: (none)\n")
	}
	return sb.String()
}
