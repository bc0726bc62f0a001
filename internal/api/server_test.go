package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ujung/wetter/internal/api"
	"github.com/ujung/wetter/internal/dwd"
	"github.com/ujung/wetter/internal/models"
	"github.com/ujung/wetter/internal/store"
	"github.com/ujung/wetter/internal/suggest"
)

type fakeSource struct {
	tables map[int]*dwd.Table
}

func (f *fakeSource) Records(ctx context.Context, id int) (*dwd.Table, error) {
	if t, ok := f.tables[id]; ok {
		return t, nil
	}
	return &dwd.Table{}, nil
}

func mustTable(t *testing.T, rows ...string) *dwd.Table {
	t.Helper()
	csv := "STATIONS_ID;MESS_DATUM;QN_4;TXK;TNK;RSK;SDK;PM;UPM;eor\n" + strings.Join(rows, "\n") + "\n"
	tbl, err := dwd.ParseTable(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	return tbl
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	return s
}

func setupServer(t *testing.T) *api.Server {
	t.Helper()
	srv, _ := setupServerWithStore(t)
	return srv
}

func setupServerWithStore(t *testing.T) (*api.Server, *store.Store) {
	t.Helper()
	catalog := dwd.NewCatalog([]models.Station{
		{ID: 3379, Name: "München-Stadt", Region: "Bayern", Latitude: 48.1632, Longitude: 11.5429, Elevation: 515},
		{ID: 1262, Name: "München-Flughafen", Region: "Bayern", Latitude: 48.3477, Longitude: 11.8134, Elevation: 446},
		{ID: 433, Name: "Berlin-Tempelhof", Region: "Berlin", Latitude: 52.4675, Longitude: 13.4021, Elevation: 48},
	})

	source := &fakeSource{tables: map[int]*dwd.Table{
		3379: mustTable(t,
			"3379;20200502;10;18.0;6.0;0.0;8.0;955.0;60;eor",
			"3379;20200503;10;20.0;8.0;0.0;5.0;950.0;65;eor",
			"3379;20200504;10;22.0;9.0;0.0;9.5;952.0;55;eor",
			"3379;20210503;10;14.0;4.0;3.4;0.0;-999;80;eor",
		),
		1262: mustTable(t,
			"1262;20200503;10;22.0;6.0;0.0;6.0;960.0;61;eor",
		),
	}}

	s := setupTestStore(t)
	if err := s.SyncStations(catalog.Stations()); err != nil {
		t.Fatal(err)
	}

	srv := api.NewServer(catalog, source, s, "8080")
	srv.SetSuggestions(
		suggest.New([]suggest.Entry{
			{Value: "80331 München", Data: json.RawMessage(`{"lat":48.137,"lon":11.575}`)},
			{Value: "10115 Berlin", Data: json.RawMessage(`{"lat":52.532,"lon":13.384}`)},
		}),
		suggest.New([]suggest.Entry{
			{Value: "3. Mai", Data: json.RawMessage(`"0503"`)},
		}),
	)
	srv.SetArchiveIndex(dwd.NewArchiveIndex([]string{"tageswerte_KL_03379_18790101_20231231_hist.zip"}))
	return srv, s
}

func get(t *testing.T, srv *api.Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	w := get(t, srv, "/health")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var health api.HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if health.Stations != 3 || health.IndexEntries != 1 {
		t.Errorf("stations = %d, index = %d, want 3 and 1", health.Stations, health.IndexEntries)
	}
}

func TestForecastEndpoint(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	w := get(t, srv, "/api/forecast?lat=48.14&lon=11.58&day=0503&distance=50&stations=3&window=false")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		MonthDayLabel string                                `json:"monthDayLabel"`
		Region        string                                `json:"region"`
		Stations      []api.StationView                     `json:"stations"`
		History       []map[string]json.RawMessage          `json:"history"`
		Aggregates    map[string]map[string]json.RawMessage `json:"aggregates"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.MonthDayLabel != "3. Mai" {
		t.Errorf("monthDayLabel = %q, want '3. Mai'", resp.MonthDayLabel)
	}
	if resp.Region != "Bayern" {
		t.Errorf("region = %q, want Bayern", resp.Region)
	}
	if len(resp.Stations) != 2 || resp.Stations[0].ID != 3379 {
		t.Fatalf("stations = %+v, want München-Stadt first of 2", resp.Stations)
	}
	if len(resp.History) != 2 {
		t.Fatalf("history entries = %d, want 2", len(resp.History))
	}

	txk := resp.Aggregates["TXK"]
	// 2020: mean of 20.0 and 22.0; 2021: 14.0
	wantTXK := map[string]string{
		"count":     "2",
		"firstYear": `"2020"`,
		"lastYear":  `"2021"`,
		"max":       "21",
		"maxYear":   `"2020"`,
		"min":       "14",
		"mean":      "18",
	}
	for k, want := range wantTXK {
		if got := string(txk[k]); got != want {
			t.Errorf("TXK.%s = %s, want %s", k, got, want)
		}
	}

	pm := resp.Aggregates["PM"]
	if got := string(pm["count"]); got != "1" {
		t.Errorf("PM.count = %s, want 1", got)
	}
	if _, ok := pm["depressionDays"]; !ok {
		t.Error("PM aggregates lack depressionDays")
	}
	if got := string(resp.Aggregates["RSK"]["zeroRainDays"]); got != "1" {
		t.Errorf("RSK.zeroRainDays = %s, want 1", got)
	}
}

func TestForecastEndpoint_Window(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	w := get(t, srv, "/api/forecast?lat=48.14&lon=11.58&day=0503&distance=50")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Window []string `json:"window"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(resp.Window, ",") != "0502,0503,0504" {
		t.Errorf("window = %v, want 0502,0503,0504", resp.Window)
	}
}

func TestForecastEndpoint_NoStations(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	// Middle of the North Sea, nothing within 10 km.
	w := get(t, srv, "/api/forecast?lat=55.0&lon=4.0&day=0503&distance=10")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"count":0`) {
		t.Errorf("expected zero counts in %s", body)
	}
}

func TestForecastEndpoint_BadRequest(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	tests := []struct {
		name string
		url  string
	}{
		{"missing day", "/api/forecast?lat=48.1&lon=11.5"},
		{"invalid day", "/api/forecast?lat=48.1&lon=11.5&day=0230"},
		{"leap day", "/api/forecast?lat=48.1&lon=11.5&day=0229"},
		{"missing lat", "/api/forecast?lon=11.5&day=0503"},
		{"lat out of range", "/api/forecast?lat=91&lon=11.5&day=0503"},
		{"too many stations", "/api/forecast?lat=48.1&lon=11.5&day=0503&stations=50"},
		{"bad window", "/api/forecast?lat=48.1&lon=11.5&day=0503&window=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, srv, tt.url)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestYearEndpoint(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	w := get(t, srv, "/api/year?lat=48.14&lon=11.58&distance=50")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Days []struct {
			MonthDay string `json:"monthDay"`
		} `json:"days"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Days) != 365 {
		t.Fatalf("days = %d, want 365", len(resp.Days))
	}
	if resp.Days[0].MonthDay != "0101" || resp.Days[364].MonthDay != "1231" {
		t.Errorf("first/last = %s/%s", resp.Days[0].MonthDay, resp.Days[364].MonthDay)
	}
}

func TestSuggestionEndpoints(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	tests := []struct {
		url  string
		want int
	}{
		{"/api/places?query=m%C3%BCnchen", 1},
		{"/api/places?query=BERLIN", 1},
		{"/api/places?query=hamburg", 0},
		{"/api/monthdays?query=mai", 1},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			w := get(t, srv, tt.url)
			if w.Code != 200 {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			var res suggest.Result
			if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.Query != "Unit" || len(res.Suggestions) != tt.want {
				t.Errorf("got %+v, want %d suggestions", res, tt.want)
			}
		})
	}
}

func TestStationsEndpoint(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	w := get(t, srv, "/api/stations")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stations []models.Station
	if err := json.Unmarshal(w.Body.Bytes(), &stations); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stations) != 3 {
		t.Errorf("stations = %d, want 3", len(stations))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	// Touch a session so the session counters exist.
	get(t, srv, "/api/forecast?lat=48.14&lon=11.58&day=0503")

	w := get(t, srv, "/metrics")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "wetter_forecast_sessions_total") {
		t.Error("metrics output lacks session counter")
	}
}

func TestStationEndpoint(t *testing.T) {
	t.Parallel()
	srv := setupServer(t)

	w := get(t, srv, "/api/stations/3379")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var detail api.StationDetail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Name != "München-Stadt" || detail.Elevation != 515 {
		t.Errorf("station = %+v", detail.Station)
	}
	if detail.Archive != "tageswerte_KL_03379_18790101_20231231_hist.zip" {
		t.Errorf("archive = %q", detail.Archive)
	}

	tests := []struct {
		url  string
		want int
	}{
		{"/api/stations/1262", 200},
		{"/api/stations/99999", 404},
		{"/api/stations/abc", 400},
		{"/api/stations/-4", 400},
	}
	for _, tt := range tests {
		if w := get(t, srv, tt.url); w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.url, tt.want, w.Code)
		}
	}
}

func TestSessionFetchesEndpoint(t *testing.T) {
	t.Parallel()
	srv, s := setupServerWithStore(t)

	sessionID := "5f0c8d1e-3c1a-4c9b-9a57-0e4c2c1f7d21"
	start := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	records := []dwd.FetchRecord{
		{SessionID: sessionID, StationID: "03379", Transport: "http", Archive: "a.zip",
			StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond), Bytes: 2048, Rows: 100, Found: true},
		{SessionID: sessionID, StationID: "01262", Transport: "http", Archive: "b.zip",
			StartedAt: start, FinishedAt: start.Add(time.Second), Err: errors.New("server status 503")},
		{SessionID: "other", StationID: "00433", Transport: "http", Archive: "c.zip", StartedAt: start},
	}
	for _, rec := range records {
		if err := s.RecordFetch(rec); err != nil {
			t.Fatalf("RecordFetch: %v", err)
		}
	}

	w := get(t, srv, "/api/sessions/"+sessionID+"/fetches")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var resp api.SessionFetchesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != sessionID || len(resp.Fetches) != 2 {
		t.Fatalf("response = %+v, want 2 fetches for %s", resp, sessionID)
	}
	first := resp.Fetches[0]
	if !first.Success || first.DurationMs == nil || *first.DurationMs != 1500 || first.Rows == nil || *first.Rows != 100 {
		t.Errorf("first fetch = %+v", first)
	}
	if second := resp.Fetches[1]; second.Success || second.Error != "server status 503" {
		t.Errorf("second fetch = %+v", second)
	}

	w = get(t, srv, "/api/sessions/"+"0b4f5a9e-0000-4000-8000-000000000000"+"/fetches")
	if w.Code != 200 || !strings.Contains(w.Body.String(), `"fetches":[]`) {
		t.Errorf("unknown session: %d %s", w.Code, w.Body)
	}

	if w := get(t, srv, "/api/sessions/not-a-uuid/fetches"); w.Code != 400 {
		t.Errorf("expected 400 for malformed id, got %d", w.Code)
	}
}
