package climate

import (
	"database/sql"
	"encoding/json"
	"math"
	"sort"

	"github.com/ujung/wetter/internal/models"
)

// TrendYear is the first year of the recent-climate mean.
const TrendYear = "2010"

// Stats summarizes one variable's merged series. Invalid fields mean "no
// data" and encode as JSON null; Count is 0 in that case.
type Stats struct {
	Variable       models.Variable
	FirstYear      sql.NullString
	LastYear       sql.NullString
	Mean           sql.NullFloat64
	MeanSince2010  sql.NullFloat64
	Count          int
	StdDev         sql.NullFloat64
	Median         sql.NullFloat64
	Max            sql.NullFloat64
	MaxYear        sql.NullString
	MinYear        sql.NullString
	Min            sql.NullFloat64
	ZeroRainDays   sql.NullInt64   // precipitation only
	ZeroSunDays    sql.NullInt64   // sunshine only
	MeanPressure   sql.NullFloat64 // pressure only
	DepressionDays sql.NullInt64   // pressure only
}

// Summarize computes the statistics of s. elevations are the heights of all
// stations of the session; they set the pressure reference.
func Summarize(v models.Variable, s Series, elevations []float64) Stats {
	st := Stats{Variable: v}

	values := s.valid()
	if len(values) == 0 {
		return st
	}

	for _, e := range s {
		if e.Value.Valid {
			if !st.FirstYear.Valid {
				st.FirstYear = validString(e.Year)
			}
			st.LastYear = validString(e.Year)
		}
	}

	st.Count = len(values)
	st.Mean = validFloat(round(mean(values), 0))
	if sd, ok := sampleStdDev(values); ok {
		st.StdDev = validFloat(round(sd, 0))
	}
	st.Median = validFloat(median(values))

	if pos := s.Position(TrendYear); pos >= 0 {
		if recent := s[pos:].valid(); len(recent) > 0 {
			st.MeanSince2010 = validFloat(round(mean(recent), 0))
		}
	}

	maxV, minV := values[0], values[0]
	for _, x := range values[1:] {
		maxV = math.Max(maxV, x)
		minV = math.Min(minV, x)
	}
	st.Max = validFloat(round(maxV, 1))
	st.Min = validFloat(round(minV, 1))
	st.MaxYear = validString(firstYearWith(s, maxV))
	st.MinYear = validString(firstYearWith(s, minV))

	switch v {
	case models.Precip:
		st.ZeroRainDays = validInt(countWhere(s, func(x float64) bool { return x == 0 }))
	case models.Sunshine:
		st.ZeroSunDays = validInt(countWhere(s, func(x float64) bool { return x == 0 }))
	case models.Pressure:
		if len(elevations) > 0 {
			ref := round(ReferencePressure(mean(elevations)), 0)
			st.MeanPressure = validFloat(ref)
			st.DepressionDays = validInt(countWhere(s, func(x float64) bool { return x < ref }))
		}
	}
	return st
}

// ReferencePressure is the standard-atmosphere pressure in hPa at elevation
// metres (barometric formula).
func ReferencePressure(elevation float64) float64 {
	return 1013.25 * math.Pow(1-0.0065*elevation/288.15, 5.255)
}

func (st Stats) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"firstYear":     nullString(st.FirstYear),
		"lastYear":      nullString(st.LastYear),
		"mean":          nullFloat(st.Mean),
		"meanSince2010": nullFloat(st.MeanSince2010),
		"count":         st.Count,
		"stdDev":        nullFloat(st.StdDev),
		"median":        nullFloat(st.Median),
		"max":           nullFloat(st.Max),
		"maxYear":       nullString(st.MaxYear),
		"minYear":       nullString(st.MinYear),
		"min":           nullFloat(st.Min),
	}
	switch st.Variable {
	case models.Precip:
		m["zeroRainDays"] = nullInt(st.ZeroRainDays)
	case models.Sunshine:
		m["zeroSunDays"] = nullInt(st.ZeroSunDays)
	case models.Pressure:
		m["meanPressure"] = nullFloat(st.MeanPressure)
		m["depressionDays"] = nullInt(st.DepressionDays)
	}
	return json.Marshal(m)
}

// round rounds half to even at the given decimal places.
func round(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.RoundToEven(x*p) / p
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStdDev(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1)), true
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func firstYearWith(s Series, v float64) string {
	for _, e := range s {
		if e.Value.Valid && e.Value.Float64 == v {
			return e.Year
		}
	}
	return ""
}

func countWhere(s Series, pred func(float64) bool) int {
	n := 0
	for _, e := range s {
		if e.Value.Valid && pred(e.Value.Float64) {
			n++
		}
	}
	return n
}

func validFloat(f float64) sql.NullFloat64 { return sql.NullFloat64{Float64: f, Valid: true} }
func validString(s string) sql.NullString  { return sql.NullString{String: s, Valid: true} }
func validInt(n int) sql.NullInt64         { return sql.NullInt64{Int64: int64(n), Valid: true} }

func nullFloat(f sql.NullFloat64) any {
	if !f.Valid {
		return nil
	}
	return f.Float64
}

func nullString(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	return s.String
}

func nullInt(n sql.NullInt64) any {
	if !n.Valid {
		return nil
	}
	return n.Int64
}
