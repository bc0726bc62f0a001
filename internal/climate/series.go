package climate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ujung/wetter/internal/dwd"
	"github.com/ujung/wetter/internal/models"
)

// PlaceholderYear indexes the single missing value Filter returns for a
// station without data, so merging always sees a well-formed contributor.
const PlaceholderYear = "2020"

// Entry is one year's value of a variable on a given day.
type Entry struct {
	Year  string
	Value sql.NullFloat64
}

// Series is a year-indexed sequence of values for one variable and day.
// Order is significant: first/last year and extreme-year tie-breaks follow
// it.
type Series []Entry

// Count returns the number of non-missing values.
func (s Series) Count() int {
	n := 0
	for _, e := range s {
		if e.Value.Valid {
			n++
		}
	}
	return n
}

// Position returns the index of the first entry for year, or -1.
func (s Series) Position(year string) int {
	for i, e := range s {
		if e.Year == year {
			return i
		}
	}
	return -1
}

func (s Series) valid() []float64 {
	out := make([]float64, 0, len(s))
	for _, e := range s {
		if e.Value.Valid {
			out = append(out, e.Value.Float64)
		}
	}
	return out
}

// MarshalJSON encodes the series as parallel value and index arrays, with
// null for missing values.
func (s Series) MarshalJSON() ([]byte, error) {
	values := make([]*float64, len(s))
	index := make([]string, len(s))
	for i, e := range s {
		if e.Value.Valid {
			v := e.Value.Float64
			values[i] = &v
		}
		index[i] = e.Year
	}
	return json.Marshal(struct {
		Values []*float64 `json:"values"`
		Index  []string   `json:"index"`
	}{values, index})
}

// Filter selects the rows of t dated on mmdd in any year and returns the
// variable's values indexed by year. Rows need not be sorted. An empty
// table yields a single missing value under PlaceholderYear; a table without
// the variable's column yields missing values.
func Filter(t *dwd.Table, v models.Variable, mmdd string) Series {
	if t.Empty() {
		return Series{{Year: PlaceholderYear}}
	}

	dateCol := t.ColumnIndex(models.DateField)
	if dateCol < 0 {
		return Series{}
	}
	valCol := t.ColumnIndex(string(v))

	s := Series{}
	for _, row := range t.Rows {
		date := row[dateCol].Text.String
		if len(date) < 8 || !strings.HasSuffix(date, mmdd) {
			continue
		}
		var val sql.NullFloat64
		if valCol >= 0 {
			val = row[valCol].Num
		}
		s = append(s, Entry{Year: date[:4], Value: val})
	}
	return s
}

// Merge combines per-station series into one dense series spanning the
// smallest to the largest year seen. Each year holds the mean of its
// non-missing contributions; years without any value are present but
// missing.
func Merge(series ...Series) Series {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	first, last := 0, -1

	for _, s := range series {
		for _, e := range s {
			year, err := strconv.Atoi(e.Year)
			if err != nil {
				continue
			}
			if last < first {
				first, last = year, year
			}
			first = min(first, year)
			last = max(last, year)
			if e.Value.Valid {
				sums[year] += e.Value.Float64
				counts[year]++
			}
		}
	}

	if last < first {
		return Series{}
	}

	out := make(Series, 0, last-first+1)
	for year := first; year <= last; year++ {
		e := Entry{Year: fmt.Sprintf("%04d", year)}
		if n := counts[year]; n > 0 {
			e.Value = sql.NullFloat64{Float64: sums[year] / float64(n), Valid: true}
		}
		out = append(out, e)
	}
	return out
}
