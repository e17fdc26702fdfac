package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
)

var employeeRows = []string{
	"Employee_ID,Heart_Rate,Blood_Pressure,Fatigue_Score,Job_Role,Site",
	"E001,72,118,3.5,Engineer,North",
	"E002,80,125,4.0,Nurse,South",
	",,,,,",
	"E003,,130,6.5,Nurse,South",
	"E004,95,,7.0,Driver,North",
	",88,140,8.0,Driver,East",
	"E005,101,150,9.5,,East",
}

func TestParseCleansAndMapsColumns(t *testing.T) {
	opt := DefaultOptions()
	opt.RequiredFields = []string{risk.ColEmployeeID}
	b, err := ParseBytes("employees.csv", []byte(strings.Join(employeeRows, "\n")), opt)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if b.Name != "employees.csv" || b.Stage != risk.StageRaw {
		t.Fatalf("unexpected batch identity: %q %s", b.Name, b.Stage)
	}
	if b.Len() != 5 {
		t.Fatalf("expected 5 records after cleaning, got %d", b.Len())
	}
	if got := b.Records[2]; got.EmployeeID != "E003" || !math.IsNaN(got.Metrics[0]) || got.Metrics[1] != 130 {
		t.Fatalf("unexpected E003 record: %+v", got)
	}
	if !math.IsNaN(b.Records[3].Metrics[1]) {
		t.Fatalf("expected missing blood pressure for E004")
	}
	if b.Records[4].JobRole != "" {
		t.Fatalf("expected empty role for E005, got %q", b.Records[4].JobRole)
	}
	if len(b.ExtraColumns) != 1 || b.ExtraColumns[0] != "Site" {
		t.Fatalf("unexpected extra columns: %v", b.ExtraColumns)
	}
	if b.Records[1].Extra[0] != "South" {
		t.Fatalf("extra value not carried: %v", b.Records[1].Extra)
	}
	if !hasWarning(b.Warnings, "removed 2 incomplete or empty rows") {
		t.Fatalf("missing cleaning warning: %v", b.Warnings)
	}
}

func TestParseDefaultRequiredFieldsDropIncompleteRows(t *testing.T) {
	b, err := ParseBytes("employees.csv", []byte(strings.Join(employeeRows, "\n")), DefaultOptions())
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if b.Len() != 3 {
		t.Fatalf("expected 3 complete records, got %d", b.Len())
	}
	for _, r := range b.Records {
		for j, v := range r.Metrics {
			if math.IsNaN(v) {
				t.Fatalf("record %s has missing %s", r.EmployeeID, risk.FeatureColumns[j])
			}
		}
	}
	if !hasWarning(b.Warnings, "removed 4 incomplete or empty rows") {
		t.Fatalf("missing cleaning warning: %v", b.Warnings)
	}
}

func TestParseMissingColumn(t *testing.T) {
	data := "employee_id,heart_rate,fatigue_score\nE1,70,3\n"
	_, err := ParseBytes("x.csv", []byte(data), DefaultOptions())
	if !errors.Is(err, risk.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
	var se *risk.SchemaError
	if !errors.As(err, &se) || se.Column != risk.ColBloodPressure {
		t.Fatalf("expected blood_pressure to be named, got %v", err)
	}
}

func TestParseNonNumericCell(t *testing.T) {
	data := "employee_id,heart_rate,blood_pressure,fatigue_score\nE1,70,120,3\nE2,high,125,4\n"
	_, err := ParseBytes("x.csv", []byte(data), DefaultOptions())
	var se *risk.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if se.Column != risk.ColHeartRate || se.Row != 2 {
		t.Fatalf("unexpected location: %+v", se)
	}
}

func TestParseMissingJobRoleWarns(t *testing.T) {
	data := "employee_id,heart_rate,blood_pressure,fatigue_score\nE1,70,120,3\n"
	b, err := ParseBytes("x.csv", []byte(data), DefaultOptions())
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if !hasWarning(b.Warnings, "no job_role column") {
		t.Fatalf("expected job_role warning, got %v", b.Warnings)
	}
}

func TestParseLocaleNumbersTSV(t *testing.T) {
	data := "employee_id\theart_rate\tblood_pressure\tfatigue_score\n" +
		"E1\t72,5\t1.118,0\t3,25\n"
	b, err := ParseBytes("x.tsv", []byte(data), DefaultOptions())
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	want := [3]float64{72.5, 1118, 3.25}
	if b.Records[0].Metrics != want {
		t.Fatalf("got %v want %v", b.Records[0].Metrics, want)
	}
}

func TestParseNumeric(t *testing.T) {
	cases := []struct {
		in   string
		opt  Options
		want float64
		ok   bool
	}{
		{"72", Options{}, 72, true},
		{"1,234.5", Options{}, 1234.5, true},
		{"1.234,5", Options{}, 1234.5, true},
		{"3,5", Options{}, 3.5, true},
		{"1 234", Options{}, 1234, true},
		{"1.234", Options{DecimalSeparator: ',', ThousandsSeparator: '.'}, 1234, true},
		{"", Options{}, 0, false},
		{"n/a", Options{}, 0, false},
	}
	for _, c := range cases {
		got, ok := parseNumeric(c.in, c.opt)
		if ok != c.ok || (ok && math.Abs(got-c.want) > 1e-9) {
			t.Errorf("parseNumeric(%q) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := ParseBytes("notes.docx", []byte("x"), DefaultOptions())
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestLoadXLSXSheetSelection(t *testing.T) {
	path := writeXLSXFixture(t)

	opt := DefaultOptions()
	opt.SheetName = "Metrics"
	byName, err := Load(path, opt)
	if err != nil {
		t.Fatalf("Load by name: %v", err)
	}
	if byName.Len() != 2 || byName.Records[1].EmployeeID != "E2" || byName.Records[1].Metrics[2] != 6.5 {
		t.Fatalf("unexpected records: %+v", byName.Records)
	}
	if byName.Records[0].JobRole != "Engineer" {
		t.Fatalf("shared string not resolved: %q", byName.Records[0].JobRole)
	}

	opt = DefaultOptions()
	opt.SheetIndex = 2
	byIndex, err := Load(path, opt)
	if err != nil {
		t.Fatalf("Load by index: %v", err)
	}
	if byIndex.Len() != byName.Len() {
		t.Fatalf("sheet index and name disagree: %d vs %d", byIndex.Len(), byName.Len())
	}

	opt = DefaultOptions()
	opt.SheetName = "Missing"
	if _, err := Load(path, opt); err == nil || !strings.Contains(err.Error(), "available sheets: Notes, Metrics") {
		t.Fatalf("expected sheet not found error, got %v", err)
	}
}

func TestNormalizeRelPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
	}
	for _, tt := range tests {
		if got := normalizeRelPath(tt.in); got != tt.want {
			t.Errorf("normalizeRelPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteIncludesDerivedColumns(t *testing.T) {
	data := "employee_id,heart_rate,blood_pressure,fatigue_score,job_role,site\n" +
		"E1,60,110,2,Nurse,North\n" +
		"E2,,130,6,Driver,South\n" +
		"E3,100,150,10,Nurse,East\n"
	raw, err := ParseBytes("x.csv", []byte(data), Options{})
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	prepared, err := risk.Prepare(raw, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, prepared); err != nil {
		t.Fatalf("Write: %v", err)
	}
	recs, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	wantHeader := []string{
		"employee_id", "heart_rate", "blood_pressure", "fatigue_score", "job_role", "site",
		"job_role_Driver", "job_role_Nurse",
		"heart_rate_scaled", "blood_pressure_scaled", "fatigue_score_scaled",
	}
	if strings.Join(recs[0], ",") != strings.Join(wantHeader, ",") {
		t.Fatalf("header = %v", recs[0])
	}
	// E2 carries the imputed median heart rate.
	if recs[2][1] != "80" || recs[2][5] != "South" || recs[2][6] != "1" || recs[2][8] != "0.5" {
		t.Fatalf("unexpected E2 row: %v", recs[2])
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WriteFile(path, prepared); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
}

func TestOutputColumnsByStage(t *testing.T) {
	b := risk.NewBatch("x", []string{"employee_id"})
	if got := OutputColumns(b); len(got) != 1 {
		t.Fatalf("raw batch should only export input columns, got %v", got)
	}
	b.Stage = risk.StageAnnotated
	got := OutputColumns(b)
	tail := got[len(got)-4:]
	want := []string{ColAnomalyScore, ColIsAnomaly, ColRiskGroup, ColIntervention}
	if strings.Join(tail, ",") != strings.Join(want, ",") {
		t.Fatalf("tail = %v", tail)
	}
}

func TestParseDropsColumnsClashingWithDerivedOutput(t *testing.T) {
	in := strings.Join([]string{
		"employee_id,heart_rate,blood_pressure,fatigue_score,job_role,Risk_Group,intervention,heart_rate_scaled,job_role_Nurse,site",
		"E1,70,120,3,Nurse,2,call,0.1,1,North",
		"E2,90,140,8,Driver,0,none,0.9,0,South",
		"E3,80,130,5,Nurse,1,none,0.5,1,East",
	}, "\n")
	raw, err := ParseBytes("clash.csv", []byte(in), DefaultOptions())
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	wantCols := "employee_id,heart_rate,blood_pressure,fatigue_score,job_role,site"
	if got := strings.Join(raw.Columns, ","); got != wantCols {
		t.Fatalf("columns = %s, want %s", got, wantCols)
	}
	if len(raw.ExtraColumns) != 1 || raw.ExtraColumns[0] != "site" {
		t.Fatalf("unexpected extra columns: %v", raw.ExtraColumns)
	}
	if raw.Records[1].Extra[0] != "South" {
		t.Fatalf("extra value misaligned: %v", raw.Records[1].Extra)
	}
	if !hasWarning(raw.Warnings, "Risk_Group, intervention, heart_rate_scaled, job_role_Nurse") {
		t.Fatalf("missing clash warning: %v", raw.Warnings)
	}

	prepared, err := risk.Prepare(raw, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	b := prepared.Clone()
	b.Stage = risk.StageAnnotated
	seen := map[string]bool{}
	for _, c := range OutputColumns(b) {
		key := strings.ToLower(c)
		if seen[key] {
			t.Fatalf("duplicate output column %q in %v", c, OutputColumns(b))
		}
		seen[key] = true
	}
}

func TestIsDerivedColumn(t *testing.T) {
	cases := map[string]bool{
		"anomaly_score":        true,
		" IS_ANOMALY ":         true,
		"risk_group":           true,
		"intervention":         true,
		"fatigue_score_scaled": true,
		"job_role_Engineer":    true,
		"job_role":             false,
		"site_scaled":          false,
		"employee_id":          false,
		"risk_group_note":      false,
	}
	for col, want := range cases {
		if got := isDerivedColumn(col); got != want {
			t.Errorf("isDerivedColumn(%q) = %v, want %v", col, got, want)
		}
	}
}

func hasWarning(ws []string, sub string) bool {
	for _, w := range ws {
		if strings.Contains(w, sub) {
			return true
		}
	}
	return false
}

// writeXLSXFixture builds a two-sheet workbook whose second sheet, "Metrics",
// holds employee rows. Relationship targets use the absolute form.
func writeXLSXFixture(t *testing.T) string {
	t.Helper()
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"xl/workbook.xml": `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Notes" sheetId="1" r:id="rId1"/><sheet name="Metrics" sheetId="2" r:id="rId2"/></sheets>
</workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="/xl/worksheets/sheet2.xml"/>
</Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<si><t>employee_id</t></si><si><t>job_role</t></si><si><r><t>Engi</t></r><r><t>neer</t></r></si>
</sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>note</t></is></c></row>
</sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="inlineStr"><is><t>heart_rate</t></is></c><c r="C1" t="inlineStr"><is><t>blood_pressure</t></is></c><c r="D1" t="inlineStr"><is><t>fatigue_score</t></is></c><c r="E1" t="s"><v>1</v></c></row>
<row r="2"><c r="A2" t="inlineStr"><is><t>E1</t></is></c><c r="B2"><v>70</v></c><c r="C2"><v>120</v></c><c r="D2"><v>3</v></c><c r="E2" t="s"><v>2</v></c></row>
<row r="3"><c r="A3" t="inlineStr"><is><t>E2</t></is></c><c r="B3"><v>90</v></c><c r="C3"><v>140</v></c><c r="D3"><v>6.5</v></c></row>
</sheetData></worksheet>`,
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	path := filepath.Join(t.TempDir(), "employees.xlsx")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write xlsx fixture: %v", err)
	}
	return path
}
