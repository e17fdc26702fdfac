package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

// Read extracts the rows of one worksheet. SheetName wins over SheetIndex;
// with neither set the first sheet is used.
func (xlsxReader) Read(src io.Reader, opt Options) ([]string, [][]string, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, nil, fmt.Errorf("read xlsx: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	target, err := resolveSheet(zr, opt.SheetName, opt.SheetIndex)
	if err != nil {
		return nil, nil, err
	}
	shared := parseSharedStrings(readZipFile(zr, "xl/sharedStrings.xml"))
	rows, err := readSheetRows(readZipFile(zr, target), shared)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", target, err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	return rows[0], rows[1:], nil
}

type wbSheet struct {
	Name    string `xml:"name,attr"`
	SheetID int    `xml:"sheetId,attr"`
	RID     string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
}

func resolveSheet(zr *zip.Reader, name string, index int) (string, error) {
	var wb struct {
		Sheets []wbSheet `xml:"sheets>sheet"`
	}
	if data := readZipFile(zr, "xl/workbook.xml"); len(data) > 0 {
		if err := xml.Unmarshal(data, &wb); err != nil {
			return "", fmt.Errorf("parse workbook: %w", err)
		}
	}
	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if data := readZipFile(zr, "xl/_rels/workbook.xml.rels"); len(data) > 0 {
		if err := xml.Unmarshal(data, &rels); err != nil {
			return "", fmt.Errorf("parse workbook relationships: %w", err)
		}
	}
	targets := map[string]string{}
	for _, r := range rels.Items {
		targets[r.ID] = r.Target
	}

	if name != "" {
		var available []string
		for _, s := range wb.Sheets {
			if strings.EqualFold(s.Name, name) {
				if t, ok := targets[s.RID]; ok {
					return normalizeRelPath(t), nil
				}
			}
			available = append(available, s.Name)
		}
		return "", fmt.Errorf("sheet '%s' not found; available sheets: %s", name, strings.Join(available, ", "))
	}
	if index <= 0 {
		index = 1
	}
	for _, s := range wb.Sheets {
		if s.SheetID == index {
			if t, ok := targets[s.RID]; ok {
				return normalizeRelPath(t), nil
			}
		}
	}
	return fmt.Sprintf("xl/worksheets/sheet%d.xml", index), nil
}

// normalizeRelPath converts relationship targets, which may be absolute
// ("/xl/worksheets/sheet1.xml") or relative to xl/, into ZIP entry names.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		return b
	}
	return nil
}

func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var sst struct {
		Items []struct {
			T    string `xml:"t"`
			Runs []struct {
				T string `xml:"t"`
			} `xml:"r"`
		} `xml:"si"`
	}
	if err := xml.Unmarshal(data, &sst); err != nil {
		return nil
	}
	out := make([]string, len(sst.Items))
	for i, si := range sst.Items {
		if len(si.Runs) == 0 {
			out[i] = si.T
			continue
		}
		var sb strings.Builder
		for _, r := range si.Runs {
			sb.WriteString(r.T)
		}
		out[i] = sb.String()
	}
	return out
}

type sheetCell struct {
	Ref    string `xml:"r,attr"`
	Type   string `xml:"t,attr"`
	Value  string `xml:"v"`
	Inline string `xml:"is>t"`
}

func readSheetRows(data []byte, shared []string) ([][]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var sheet struct {
		Rows []struct {
			Cells []sheetCell `xml:"c"`
		} `xml:"sheetData>row"`
	}
	if err := xml.Unmarshal(data, &sheet); err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(sheet.Rows))
	for _, r := range sheet.Rows {
		var row []string
		for pos, c := range r.Cells {
			idx := pos
			if c.Ref != "" {
				idx = colIndexFromRef(c.Ref)
			}
			for len(row) <= idx {
				row = append(row, "")
			}
			row[idx] = cellText(c, shared)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cellText(c sheetCell, shared []string) string {
	switch c.Type {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || i < 0 || i >= len(shared) {
			return ""
		}
		return shared[i]
	case "inlineStr":
		return c.Inline
	default:
		return c.Value
	}
}

// colIndexFromRef maps a cell reference like "C12" to its 0-based column.
func colIndexFromRef(ref string) int {
	idx := 0
	for i := 0; i < len(ref); i++ {
		ch := ref[i]
		switch {
		case ch >= 'A' && ch <= 'Z':
			idx = idx*26 + int(ch-'A'+1)
		case ch >= 'a' && ch <= 'z':
			idx = idx*26 + int(ch-'a'+1)
		default:
			return idx - 1
		}
	}
	return idx - 1
}
