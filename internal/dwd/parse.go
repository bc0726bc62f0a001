package dwd

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ujung/wetter/internal/models"
)

// missingSentinel marks an absent measurement in DWD product files.
const missingSentinel = -999

var nullMarkers = map[string]bool{
	"":     true,
	"NA":   true,
	"NaN":  true,
	"nan":  true,
	"<NA>": true,
	"null": true,
	"None": true,
}

// ParseTable reads a ';'-delimited DWD product file with a header row and
// returns the cleaned table.
func ParseTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}

	return cleanTable(header, records), nil
}

// cleanTable normalizes column names, infers column kinds, maps the -999
// sentinel and null markers to missing, and keeps the date column as text.
func cleanTable(header []string, records [][]string) *Table {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.Join(strings.Fields(h), "")
	}

	raw := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(names))
		for j := range names {
			if j < len(rec) {
				row[j] = strings.TrimSpace(rec[j])
			}
		}
		raw[i] = row
	}

	t := &Table{Columns: make([]Column, len(names))}
	for j, name := range names {
		kind := KindText
		if name != models.DateField {
			kind = inferKind(raw, j)
		}
		t.Columns[j] = Column{Name: name, Kind: kind}
	}

	t.Rows = make([][]Cell, len(raw))
	for i, row := range raw {
		cells := make([]Cell, len(names))
		for j, v := range row {
			cells[j] = makeCell(t.Columns[j].Kind, v)
		}
		t.Rows[i] = cells
	}
	return t
}

func inferKind(rows [][]string, col int) Kind {
	kind := KindInt
	for _, row := range rows {
		v := row[col]
		if nullMarkers[v] {
			continue
		}
		if kind == KindInt {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				continue
			}
			kind = KindFloat
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return KindText
		}
	}
	return kind
}

func makeCell(kind Kind, v string) Cell {
	if nullMarkers[v] {
		return Cell{}
	}
	if kind == KindText {
		return Cell{Text: sql.NullString{String: v, Valid: true}}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f == missingSentinel {
		return Cell{}
	}
	return Cell{Num: sql.NullFloat64{Float64: f, Valid: true}}
}
