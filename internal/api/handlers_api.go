package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ujung/wetter/internal/climate"
	"github.com/ujung/wetter/internal/dwd"
	"github.com/ujung/wetter/internal/models"
	"github.com/ujung/wetter/internal/store"
)

// yearAnchorDay only satisfies session validation for year overviews, which
// sweep every day regardless.
const yearAnchorDay = "0101"

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

type StationView struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Region     string  `json:"region"`
	Elevation  float64 `json:"elevation"`
	DistanceKm float64 `json:"distanceKm"`
}

type ForecastResponse struct {
	SessionID     string                   `json:"sessionId"`
	Latitude      float64                  `json:"latitude"`
	Longitude     float64                  `json:"longitude"`
	MonthDay      string                   `json:"monthDay"`
	MonthDayLabel string                   `json:"monthDayLabel"`
	Window        []string                 `json:"window,omitempty"`
	Region        string                   `json:"region,omitempty"`
	Stations      []StationView            `json:"stations"`
	History       []climate.StationHistory `json:"history"`
	Aggregates    climate.Aggregates       `json:"aggregates"`
}

type YearResponse struct {
	SessionID string                `json:"sessionId"`
	Stations  []StationView         `json:"stations"`
	Days      []climate.DayOverview `json:"days"`
}

func (s *Server) handleAPIForecast(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r, true)
	if err != nil {
		writeError(w, err)
		return
	}

	window := true
	if v := r.URL.Query().Get("window"); v != "" {
		window, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: window: %v", errBadRequest, err))
			return
		}
	}

	sess, err := climate.NewSession(r.Context(), s.catalog, s.source, q)
	if err != nil {
		writeError(w, err)
		return
	}

	day := q.MonthDay
	resp := ForecastResponse{
		SessionID:     sess.ID,
		Latitude:      q.Point.Latitude,
		Longitude:     q.Point.Longitude,
		MonthDay:      q.MonthDay,
		MonthDayLabel: monthDayLabel(q.MonthDay),
		Stations:      stationViews(sess.Observations()),
		Region:        commonRegion(sess.Observations()),
		History:       sess.History(),
	}
	if window {
		day = ""
		resp.Window, _ = climate.Window(q.MonthDay)
	}
	resp.Aggregates, err = sess.Aggregates(day)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIYear(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r, false)
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := climate.NewSession(r.Context(), s.catalog, s.source, q)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, YearResponse{
		SessionID: sess.ID,
		Stations:  stationViews(sess.Observations()),
		Days:      sess.YearOverview(),
	})
}

func (s *Server) handleAPIStations(w http.ResponseWriter, r *http.Request) {
	stations := s.catalog.Stations()
	if s.store != nil {
		mirrored, err := s.store.GetStations()
		if err != nil {
			writeError(w, err)
			return
		}
		if len(mirrored) > 0 {
			stations = mirrored
		}
	}
	writeJSON(w, http.StatusOK, stations)
}

// StationDetail is a mirrored station with its archive, if indexed.
type StationDetail struct {
	models.Station
	Archive string `json:"archive,omitempty"`
}

func (s *Server) handleAPIStation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, fmt.Errorf("%w: station id must be a positive integer", errBadRequest))
		return
	}

	var st *models.Station
	if s.store != nil {
		if st, err = s.store.GetStation(id); err != nil {
			writeError(w, err)
			return
		}
	} else {
		for _, c := range s.catalog.Stations() {
			if c.ID == id {
				st = &c
				break
			}
		}
	}
	if st == nil {
		writeError(w, fmt.Errorf("%w: station %d", errNotFound, id))
		return
	}

	detail := StationDetail{Station: *st}
	if s.index != nil {
		detail.Archive, _ = s.index.Lookup(st.PaddedID())
	}
	writeJSON(w, http.StatusOK, detail)
}

// FetchView is one archive retrieval made for a forecast session.
type FetchView struct {
	StationID    string    `json:"stationId"`
	Transport    string    `json:"transport"`
	Archive      string    `json:"archive"`
	StartedAt    time.Time `json:"startedAt"`
	DurationMs   *int64    `json:"durationMs,omitempty"`
	Bytes        *int64    `json:"bytes,omitempty"`
	Rows         *int64    `json:"rows,omitempty"`
	ProductFound bool      `json:"productFound"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
}

type SessionFetchesResponse struct {
	SessionID string      `json:"sessionId"`
	Fetches   []FetchView `json:"fetches"`
}

// handleAPISessionFetches lists the downloads a forecast session caused.
// Sessions served entirely from the cache have none.
func (s *Server) handleAPISessionFetches(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: session id: %v", errBadRequest, err))
		return
	}

	resp := SessionFetchesResponse{SessionID: id.String(), Fetches: []FetchView{}}
	if s.store != nil {
		runs, err := s.store.GetSessionFetches(resp.SessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, run := range runs {
			resp.Fetches = append(resp.Fetches, fetchView(run))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func fetchView(run store.FetchRun) FetchView {
	v := FetchView{
		StationID:    run.StationID,
		Transport:    run.Transport,
		Archive:      run.Archive,
		StartedAt:    run.StartedAt,
		ProductFound: run.ProductFound,
		Success:      run.Success,
		Error:        run.ErrorMessage.String,
	}
	if run.FinishedAt.Valid {
		ms := run.FinishedAt.Time.Sub(run.StartedAt).Milliseconds()
		v.DurationMs = &ms
	}
	if run.ResponseSizeBytes.Valid {
		v.Bytes = &run.ResponseSizeBytes.Int64
	}
	if run.RowsParsed.Valid {
		v.Rows = &run.RowsParsed.Int64
	}
	return v
}

func (s *Server) handleAPIPlaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.places.Query(r.URL.Query().Get("query")))
}

func (s *Server) handleAPIMonthDays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monthDays.Query(r.URL.Query().Get("query")))
}

// parseQuery reads lat, lon, day, distance and stations. day is required
// only when needDay is set.
func (s *Server) parseQuery(r *http.Request, needDay bool) (climate.Query, error) {
	v := r.URL.Query()
	q := climate.Query{
		MaxDistanceKm: s.defaultDistanceKm,
		MaxStations:   s.defaultStations,
		MonthDay:      v.Get("day"),
	}

	lat, err := parseFloat(v.Get("lat"), "lat", -90, 90)
	if err != nil {
		return q, err
	}
	lon, err := parseFloat(v.Get("lon"), "lon", -180, 180)
	if err != nil {
		return q, err
	}
	q.Point = models.Point{Latitude: lat, Longitude: lon}

	if d := v.Get("distance"); d != "" {
		if q.MaxDistanceKm, err = parseFloat(d, "distance", 0, maxDistanceLimit); err != nil {
			return q, err
		}
	}
	if n := v.Get("stations"); n != "" {
		q.MaxStations, err = strconv.Atoi(n)
		if err != nil || q.MaxStations < 0 || q.MaxStations > maxStationsLimit {
			return q, fmt.Errorf("%w: stations must be 0..%d", errBadRequest, maxStationsLimit)
		}
	}

	if q.MonthDay == "" {
		if needDay {
			return q, fmt.Errorf("%w: day is required", errBadRequest)
		}
		q.MonthDay = yearAnchorDay
	}
	return q, nil
}

func parseFloat(raw, name string, lo, hi float64) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < lo || f > hi {
		return 0, fmt.Errorf("%w: %s must be a number in [%g, %g]", errBadRequest, name, lo, hi)
	}
	return f, nil
}

func stationViews(obs []climate.StationObservation) []StationView {
	views := make([]StationView, 0, len(obs))
	for _, o := range obs {
		views = append(views, StationView{
			ID:         o.ID,
			Name:       o.Name,
			Region:     o.Region,
			Elevation:  o.Elevation,
			DistanceKm: o.DistanceKm,
		})
	}
	return views
}

// commonRegion returns the region shared by all stations, or "".
func commonRegion(obs []climate.StationObservation) string {
	if len(obs) == 0 {
		return ""
	}
	region := obs[0].Region
	for _, o := range obs[1:] {
		if o.Region != region {
			return ""
		}
	}
	return region
}

// monthDayLabel renders "0503" as "3. Mai".
func monthDayLabel(mmdd string) string {
	month, day, err := climate.ParseMonthDay(mmdd)
	if err != nil {
		return mmdd
	}
	return fmt.Sprintf("%d. %s", day, climate.MonthName(month))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var cfgErr *dwd.ConfigError
	var retrErr *dwd.RetrievalError

	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, climate.ErrInvalidMonthDay):
		status = http.StatusBadRequest
	case errors.Is(err, errNotFound):
		status = http.StatusNotFound
	case errors.As(err, &cfgErr):
		msg = "configuration error: " + cfgErr.Error()
	case errors.As(err, &retrErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= 500 {
		log.Printf("server: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
