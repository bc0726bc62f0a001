package dwd

import (
	"compress/gzip"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TableCache persists cleaned station tables as one gzip-compressed CSV file
// per station. The presence of the file is the only hit signal.
//
// The first CSV row holds "name:kind" column headers so a cached table loads
// back with exactly the kinds it was written with.
type TableCache struct {
	dir string
}

func NewTableCache(dir string) *TableCache {
	return &TableCache{dir: dir}
}

func (c *TableCache) path(stationID string) string {
	return filepath.Join(c.dir, stationID+".csv.gz")
}

// Has reports whether a cached table exists for the station.
func (c *TableCache) Has(stationID string) bool {
	_, err := os.Stat(c.path(stationID))
	return err == nil
}

// Get loads a cached table. It returns false when nothing is cached.
func (c *TableCache) Get(stationID string) (*Table, bool, error) {
	f, err := os.Open(c.path(stationID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	t, err := readCachedTable(f)
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", stationID, err)
	}
	return t, true, nil
}

// Put writes the table through a temp file and a rename, so concurrent
// writers of the same station never leave a torn file behind.
func (c *TableCache) Put(stationID string, t *Table) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, stationID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeCachedTable(tmp, t); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache %s: %w", stationID, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path(stationID))
}

func writeCachedTable(w io.Writer, t *Table) error {
	gz := gzip.NewWriter(w)
	cw := csv.NewWriter(gz)

	if t != nil && len(t.Columns) > 0 {
		header := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			header[i] = col.Name + ":" + col.Kind.String()
		}
		if err := cw.Write(header); err != nil {
			return err
		}

		rec := make([]string, len(t.Columns))
		for _, row := range t.Rows {
			for j, cell := range row {
				rec[j] = formatCell(t.Columns[j].Kind, cell)
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return gz.Close()
}

func formatCell(kind Kind, c Cell) string {
	switch {
	case kind == KindText && c.Text.Valid:
		return c.Text.String
	case kind == KindInt && c.Num.Valid:
		return strconv.FormatInt(int64(c.Num.Float64), 10)
	case c.Num.Valid:
		return strconv.FormatFloat(c.Num.Float64, 'g', -1, 64)
	}
	return ""
}

func readCachedTable(r io.Reader) (*Table, error) {
	gz, err := gzip.NewReader(r)
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	cr := csv.NewReader(gz)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, err
	}

	t := &Table{Columns: make([]Column, len(header))}
	for i, h := range header {
		name, kindName, ok := strings.Cut(h, ":")
		kind, known := parseKind(kindName)
		if !ok || !known {
			return nil, fmt.Errorf("bad column header %q", h)
		}
		t.Columns[i] = Column{Name: name, Kind: kind}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]Cell, len(t.Columns))
		for j, v := range rec {
			row[j], err = parseCachedCell(t.Columns[j].Kind, v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", len(t.Rows)+1, t.Columns[j].Name, err)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func parseCachedCell(kind Kind, v string) (Cell, error) {
	if v == "" {
		return Cell{}, nil
	}
	if kind == KindText {
		return Cell{Text: sql.NullString{String: v, Valid: true}}, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return Cell{}, err
	}
	return Cell{Num: sql.NullFloat64{Float64: f, Valid: true}}, nil
}
