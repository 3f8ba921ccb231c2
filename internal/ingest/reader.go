// Package ingest loads observation files and feeds them through the resolver.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/drilonhametaj25/client-sniper/internal/business"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 4 << 20

// columnAliases maps accepted header spellings to observation fields.
var columnAliases = map[string]string{
	"business_name": "business_name",
	"name":          "business_name",
	"city":          "city",
	"website_url":   "website_url",
	"website":       "website_url",
	"url":           "website_url",
	"phone":         "phone",
	"address":       "address",
	"source_id":     "source_id",
	"source":        "source_id",
	"score":         "score",
	"analysis":      "analysis",
	"needed_roles":  "needed_roles",
	"issues":        "issues",
}

// Load reads observations from path. The format is chosen by extension:
// .jsonl/.ndjson, .json (array), .csv and .xlsx.
func Load(path string) ([]business.Observation, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return ReadXLSX(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch ext {
	case ".jsonl", ".ndjson":
		return ReadJSONL(f)
	case ".json":
		return ReadJSON(f)
	case ".csv":
		return ReadCSV(f)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", ext)
	}
}

// ReadJSONL decodes one observation per non-blank line.
func ReadJSONL(r io.Reader) ([]business.Observation, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []business.Observation
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var o business.Observation
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, eris.Wrapf(err, "ingest: jsonl line %d", line)
		}
		out = append(out, o)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: read jsonl")
	}
	return out, nil
}

// ReadJSON decodes a JSON array of observations.
func ReadJSON(r io.Reader) ([]business.Observation, error) {
	var out []business.Observation
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "ingest: decode json")
	}
	return out, nil
}

// ReadCSV parses a CSV file with a header row.
func ReadCSV(r io.Reader) ([]business.Observation, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv")
	}
	return fromRows(records)
}

// ReadXLSX parses the first sheet of an XLSX workbook with a header row.
func ReadXLSX(path string) ([]business.Observation, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return fromRows(rows)
}

// fromRows maps tabular rows to observations using the first row as header.
// Unknown columns are ignored and blank rows skipped.
func fromRows(rows [][]string) ([]business.Observation, error) {
	if len(rows) == 0 {
		return nil, eris.New("ingest: missing header row")
	}

	colIdx := make(map[string]int, len(rows[0]))
	for i, col := range rows[0] {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
		if field, ok := columnAliases[key]; ok {
			if _, dup := colIdx[field]; !dup {
				colIdx[field] = i
			}
		}
	}
	for _, field := range []string{"business_name", "city"} {
		if _, ok := colIdx[field]; !ok {
			return nil, eris.Errorf("ingest: missing required column %q", field)
		}
	}

	var out []business.Observation
	for n, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		o := business.Observation{
			BusinessName: getCol(row, colIdx, "business_name"),
			City:         getCol(row, colIdx, "city"),
			WebsiteURL:   getCol(row, colIdx, "website_url"),
			Phone:        getCol(row, colIdx, "phone"),
			Address:      getCol(row, colIdx, "address"),
			SourceID:     getCol(row, colIdx, "source_id"),
			NeededRoles:  splitSet(getCol(row, colIdx, "needed_roles")),
			Issues:       splitSet(getCol(row, colIdx, "issues")),
		}
		if s := getCol(row, colIdx, "score"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: row %d: invalid score %q", n+2, s)
			}
			o.Score = &v
		}
		if a := getCol(row, colIdx, "analysis"); a != "" {
			if err := json.Unmarshal([]byte(a), &o.Analysis); err != nil {
				return nil, eris.Wrapf(err, "ingest: row %d: invalid analysis", n+2)
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func getCol(row []string, colIdx map[string]int, field string) string {
	i, ok := colIdx[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// splitSet splits a ";"-separated cell into its non-empty members.
func splitSet(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
