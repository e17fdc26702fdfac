package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/wellrisk-cli/internal/utils"
)

func TestSafeWriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out.csv")
	if err := utils.SafeWriteFile(p, []byte("a")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := utils.SafeWriteFile(p, []byte("b")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "b" {
		t.Fatalf("got %q", got)
	}
	if _, err := os.Stat(p + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestPrettyJSON(t *testing.T) {
	b, err := utils.PrettyJSON(map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("PrettyJSON: %v", err)
	}
	if !strings.Contains(string(b), "\n  \"n\": 1") {
		t.Fatalf("not indented: %s", b)
	}
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		in, dir, suffix, want string
	}{
		{filepath.Join("data", "staff.csv"), "", "_annotated.csv", filepath.Join("data", "staff_annotated.csv")},
		{filepath.Join("data", "staff.xlsx"), "out", ".summary.md", filepath.Join("out", "staff.summary.md")},
	}
	for _, c := range cases {
		if got := utils.OutputPath(c.in, c.dir, c.suffix); got != c.want {
			t.Errorf("OutputPath(%q, %q, %q) = %q, want %q", c.in, c.dir, c.suffix, got, c.want)
		}
	}
}

func TestUniqueStem(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "staff_annotated.csv"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	suffixes := []string{"_annotated.csv", ".summary.md"}
	taken := map[string]bool{}
	stem := filepath.Join(dir, "staff")
	first := utils.UniqueStem(stem, suffixes, taken)
	second := utils.UniqueStem(stem, suffixes, taken)
	if first != stem+"__2" {
		t.Fatalf("first = %s", first)
	}
	if second != stem+"__3" {
		t.Fatalf("second = %s", second)
	}
	fresh := filepath.Join(dir, "other")
	if got := utils.UniqueStem(fresh, suffixes, taken); got != fresh {
		t.Fatalf("fresh stem renamed to %s", got)
	}
}

func TestEnsureDir(t *testing.T) {
	d := filepath.Join(t.TempDir(), "a", "b")
	if err := utils.EnsureDir(d); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
		t.Fatalf("dir not created: %v", err)
	}
}
