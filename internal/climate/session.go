package climate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ujung/wetter/internal/dwd"
	"github.com/ujung/wetter/internal/metrics"
	"github.com/ujung/wetter/internal/models"
)

// LoadConcurrency bounds parallel station retrievals per session.
const LoadConcurrency = 4

// RecordSource returns the full cleaned daily table of a station.
type RecordSource interface {
	Records(ctx context.Context, stationID int) (*dwd.Table, error)
}

// StationObservation is a selected station with its distance from the query
// point and its loaded records.
type StationObservation struct {
	models.Station
	DistanceKm float64
	Records    *dwd.Table
}

// Query describes one forecast request.
type Query struct {
	Point         models.Point
	MaxDistanceKm float64
	MonthDay      string
	MaxStations   int
}

// State is the lifecycle stage of a Session.
type State int

const (
	Initialized State = iota
	StationsSelected
	DataLoaded
	Aggregated
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case StationsSelected:
		return "stations_selected"
	case DataLoaded:
		return "data_loaded"
	case Aggregated:
		return "aggregated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Aggregates maps each tracked variable to its statistics.
type Aggregates map[models.Variable]Stats

// Session is one forecast request: the selected stations, their records and
// the statistics derived from them. A Session is safe for concurrent use.
type Session struct {
	ID    string
	Query Query

	observations []StationObservation
	elevations   []float64

	mu         sync.Mutex
	state      State
	aggregates Aggregates
}

// NewSession selects the stations nearest to q.Point and loads their records.
// A station whose retrieval fails contributes an empty table; the session
// itself only fails on an invalid query or a cancelled context.
func NewSession(ctx context.Context, catalog *dwd.Catalog, source RecordSource, q Query) (*Session, error) {
	if _, _, err := ParseMonthDay(q.MonthDay); err != nil {
		metrics.SessionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	s := &Session{ID: uuid.NewString(), Query: q, state: Initialized}

	selected := catalog.Nearest(q.Point, q.MaxDistanceKm, q.MaxStations)
	s.observations = make([]StationObservation, len(selected))
	s.elevations = make([]float64, len(selected))
	for i, sd := range selected {
		s.observations[i] = StationObservation{Station: sd.Station, DistanceKm: sd.DistanceKm}
		s.elevations[i] = sd.Station.Elevation
	}
	s.state = StationsSelected
	metrics.SessionStations.Observe(float64(len(selected)))
	log.Printf("session %s: %d stations within %.0f km of %s", s.ID, len(selected), q.MaxDistanceKm, q.Point)

	if err := s.load(dwd.WithSessionID(ctx, s.ID), source); err != nil {
		metrics.SessionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	s.state = DataLoaded
	metrics.SessionsTotal.WithLabelValues("ok").Inc()
	return s, nil
}

func (s *Session) load(ctx context.Context, source RecordSource) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(LoadConcurrency)

	for i := range s.observations {
		obs := &s.observations[i]
		g.Go(func() error {
			t, err := source.Records(gCtx, obs.ID)
			if err != nil {
				// One failed station must not abort the others.
				log.Printf("session %s: station %s: %v", s.ID, obs.PaddedID(), err)
				t = &dwd.Table{}
			}
			obs.Records = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// State reports the session's lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Observations returns the selected stations, closest first.
func (s *Session) Observations() []StationObservation {
	return append([]StationObservation(nil), s.observations...)
}

// Aggregates returns per-variable statistics. With an explicit mmdd the
// statistics cover that day only. With an empty mmdd they cover the window
// around the session's day: the merged three-day series supplies every field
// except Mean and StdDev, which are the averages of the per-day values. The
// window result is computed once per session.
func (s *Session) Aggregates(mmdd string) (Aggregates, error) {
	if mmdd != "" {
		if _, _, err := ParseMonthDay(mmdd); err != nil {
			return nil, err
		}
		return s.dayAggregates(mmdd), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aggregates != nil {
		return s.aggregates, nil
	}

	days, err := Window(s.Query.MonthDay)
	if err != nil {
		return nil, err
	}

	out := make(Aggregates, len(models.Variables))
	for _, v := range models.Variables {
		perDay := make([]Series, len(days))
		for i, day := range days {
			perDay[i] = s.merged(v, day)
		}
		st := Summarize(v, Merge(perDay...), s.elevations)
		st.Mean, st.StdDev = windowMoments(v, perDay, s.elevations)
		out[v] = st
	}

	s.aggregates = out
	s.state = Aggregated
	return out, nil
}

func (s *Session) dayAggregates(mmdd string) Aggregates {
	out := make(Aggregates, len(models.Variables))
	for _, v := range models.Variables {
		out[v] = Summarize(v, s.merged(v, mmdd), s.elevations)
	}
	return out
}

// windowMoments averages the per-day means and standard deviations. Days
// without a value are skipped; no day with a value means no data.
func windowMoments(v models.Variable, perDay []Series, elevations []float64) (sql.NullFloat64, sql.NullFloat64) {
	var means, stds []float64
	for _, series := range perDay {
		st := Summarize(v, series, elevations)
		if st.Mean.Valid {
			means = append(means, st.Mean.Float64)
		}
		if st.StdDev.Valid {
			stds = append(stds, st.StdDev.Float64)
		}
	}

	var m, sd sql.NullFloat64
	if len(means) > 0 {
		m = validFloat(round(mean(means), 0))
	}
	if len(stds) > 0 {
		sd = validFloat(round(mean(stds), 0))
	}
	return m, sd
}

func (s *Session) merged(v models.Variable, mmdd string) Series {
	series := make([]Series, len(s.observations))
	for i, obs := range s.observations {
		series[i] = Filter(obs.Records, v, mmdd)
	}
	return Merge(series...)
}

// StationHistory is one station's metadata and its per-variable values on
// the session's day.
type StationHistory struct {
	Station    models.Station
	DistanceKm float64
	Series     map[models.Variable]Series
}

func (h StationHistory) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"stationName": h.Station.Name,
		"elevation":   h.Station.Elevation,
		"region":      h.Station.Region,
		"distanceKm":  h.DistanceKm,
		"validFrom":   h.Station.ValidFrom,
		"validTo":     h.Station.ValidTo,
	}
	for v, s := range h.Series {
		m[string(v)] = s
	}
	return json.Marshal(m)
}

// History returns the per-station series for the session's day, closest
// station first.
func (s *Session) History() []StationHistory {
	out := make([]StationHistory, 0, len(s.observations))
	for _, obs := range s.observations {
		h := StationHistory{
			Station:    obs.Station,
			DistanceKm: obs.DistanceKm,
			Series:     make(map[models.Variable]Series, len(models.Variables)),
		}
		for _, v := range models.Variables {
			h.Series[v] = Filter(obs.Records, v, s.Query.MonthDay)
		}
		out = append(out, h)
	}
	return out
}

// Moments are the mean and standard deviation of a variable on one day.
type Moments struct {
	Mean   sql.NullFloat64
	StdDev sql.NullFloat64
}

func (m Moments) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"mean":   nullFloat(m.Mean),
		"stdDev": nullFloat(m.StdDev),
	})
}

// DayOverview holds the moments of every variable for one calendar day.
type DayOverview struct {
	MonthDay  string                      `json:"monthDay"`
	Variables map[models.Variable]Moments `json:"variables"`
}

// YearOverview sweeps every day of the reference calendar and returns the
// single-day mean and standard deviation of each variable.
func (s *Session) YearOverview() []DayOverview {
	out := make([]DayOverview, 0, 365)
	for mmdd := range MonthDays() {
		agg := s.dayAggregates(mmdd)
		day := DayOverview{MonthDay: mmdd, Variables: make(map[models.Variable]Moments, len(agg))}
		for v, st := range agg {
			day.Variables[v] = Moments{Mean: st.Mean, StdDev: st.StdDev}
		}
		out = append(out, day)
	}
	return out
}
