package profile_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/wellrisk-cli/internal/profile"
	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
)

func sampleBatch(name string, hr ...float64) *risk.Batch {
	b := risk.NewBatch(name, []string{risk.ColEmployeeID, risk.ColHeartRate, risk.ColBloodPressure, risk.ColFatigueScore, risk.ColJobRole})
	roles := []string{"nurse", "driver", "engineer"}
	for i, v := range hr {
		b.Records = append(b.Records, risk.Record{
			EmployeeID: "E" + string(rune('A'+i)),
			Metrics:    [3]float64{v, 110 + float64(i)*10, float64(i + 1)},
			JobRole:    roles[i%len(roles)],
		})
	}
	return b
}

func TestFitSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	p := profile.NewProfile("site-a", "baseline", profile.Dir(root, "site-a"))
	if err := p.Fit(sampleBatch("jan.csv", 60, 80, 100)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if p.Version != 1 || p.Records != 3 || p.Source != "jan.csv" {
		t.Fatalf("unexpected fit metadata: %+v", p)
	}
	if bd := p.Bounds[risk.ColHeartRate]; bd.Min != 60 || bd.Max != 100 {
		t.Fatalf("unexpected heart rate bounds: %+v", bd)
	}
	if strings.Join(p.Roles, ",") != "driver,engineer,nurse" {
		t.Fatalf("unexpected roles: %v", p.Roles)
	}
	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := profile.LoadProfile(filepath.Join(root, "site-a"))
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if loaded.ID != p.ID || loaded.Version != 1 || loaded.RootDir() != filepath.Join(root, "site-a") {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	enc, err := loaded.Encoding()
	if err != nil {
		t.Fatalf("Encoding: %v", err)
	}
	if enc.Bounds[0] != (risk.Bounds{Min: 60, Max: 100}) || len(enc.Roles) != 3 {
		t.Fatalf("unexpected encoding: %+v", enc)
	}
}

func TestRefitBumpsVersion(t *testing.T) {
	p := profile.NewProfile("x", "", t.TempDir())
	for i := 0; i < 2; i++ {
		if err := p.Fit(sampleBatch("b.csv", 70, 90)); err != nil {
			t.Fatalf("Fit %d: %v", i, err)
		}
	}
	if p.Version != 2 {
		t.Fatalf("version = %d, want 2", p.Version)
	}
}

func TestEncodingPinsScalingAcrossBatches(t *testing.T) {
	p := profile.NewProfile("x", "", t.TempDir())
	if err := p.Fit(sampleBatch("base.csv", 60, 80, 100)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	enc, err := p.Encoding()
	if err != nil {
		t.Fatalf("Encoding: %v", err)
	}
	// The same raw heart rate must scale identically in both batches.
	a, err := risk.Prepare(sampleBatch("a.csv", 80, 60, 100), enc)
	if err != nil {
		t.Fatalf("Prepare a: %v", err)
	}
	b, err := risk.Prepare(sampleBatch("b.csv", 80, 79, 81), enc)
	if err != nil {
		t.Fatalf("Prepare b: %v", err)
	}
	if a.Records[0].Scaled[0] != 0.5 || b.Records[0].Scaled[0] != 0.5 {
		t.Fatalf("scaled heart rate differs: %v vs %v", a.Records[0].Scaled[0], b.Records[0].Scaled[0])
	}
}

func TestUnfittedProfileHasNoEncoding(t *testing.T) {
	p := profile.NewProfile("x", "", t.TempDir())
	if _, err := p.Encoding(); !errors.Is(err, profile.ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
}

func TestFitRejectsEmptyBatch(t *testing.T) {
	p := profile.NewProfile("x", "", t.TempDir())
	if err := p.Fit(sampleBatch("empty.csv")); !errors.Is(err, risk.ErrDegenerateBatch) {
		t.Fatalf("expected degenerate batch, got %v", err)
	}
}

func TestListAndValidateName(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"zeta", "alpha"} {
		p := profile.NewProfile(name, "", profile.Dir(root, name))
		if err := p.Fit(sampleBatch("x.csv", 60, 90)); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		if err := p.Save(); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	list, err := profile.List(root)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Fatalf("unexpected list: %v", list)
	}
	none, err := profile.List(filepath.Join(root, "missing"))
	if err != nil || len(none) != 0 {
		t.Fatalf("missing root: %v %v", none, err)
	}

	for _, bad := range []string{"", "a/b", ".."} {
		if profile.ValidateName(bad) == nil {
			t.Errorf("ValidateName(%q) accepted", bad)
		}
	}
	if err := profile.ValidateName("site-a"); err != nil {
		t.Errorf("ValidateName(site-a): %v", err)
	}
}

func TestDescribe(t *testing.T) {
	p := profile.NewProfile("site-a", "baseline", t.TempDir())
	if err := p.Fit(sampleBatch("jan.csv", 60, 100)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out := p.Describe()
	for _, want := range []string{"Profile: site-a (v1)", "Fitted on: jan.csv (2 records)", "- heart_rate: [60, 100]", "Roles: driver, nurse"} {
		if !strings.Contains(out, want) {
			t.Fatalf("describe missing %q:\n%s", want, out)
		}
	}
}
