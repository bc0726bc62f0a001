package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ujung/wetter/internal/climate"
	"github.com/ujung/wetter/internal/dwd"
	"github.com/ujung/wetter/internal/store"
	"github.com/ujung/wetter/internal/suggest"
)

const (
	maxStationsLimit = 10
	maxDistanceLimit = 500.0
)

type Server struct {
	catalog *dwd.Catalog
	source  climate.RecordSource
	store   *store.Store
	index   *dwd.ArchiveIndex
	port    string

	places    *suggest.List
	monthDays *suggest.List

	defaultDistanceKm float64
	defaultStations   int
}

func NewServer(catalog *dwd.Catalog, source climate.RecordSource, store *store.Store, port string) *Server {
	return &Server{
		catalog:           catalog,
		source:            source,
		store:             store,
		port:              port,
		places:            suggest.New(nil),
		monthDays:         suggest.New(nil),
		defaultDistanceKm: 100,
		defaultStations:   3,
	}
}

// SetSuggestions configures the place and month-day autocomplete lists.
func (s *Server) SetSuggestions(places, monthDays *suggest.List) {
	if places != nil {
		s.places = places
	}
	if monthDays != nil {
		s.monthDays = monthDays
	}
}

// SetDefaults configures the search radius and station count used when a
// request does not specify them.
func (s *Server) SetDefaults(distanceKm float64, stations int) {
	s.defaultDistanceKm = distanceKm
	s.defaultStations = stations
}

// SetArchiveIndex lets the health endpoint report the index size.
func (s *Server) SetArchiveIndex(index *dwd.ArchiveIndex) {
	s.index = index
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/forecast", s.handleAPIForecast)
	mux.HandleFunc("GET /api/year", s.handleAPIYear)
	mux.HandleFunc("GET /api/stations", s.handleAPIStations)
	mux.HandleFunc("GET /api/stations/{id}", s.handleAPIStation)
	mux.HandleFunc("GET /api/sessions/{id}/fetches", s.handleAPISessionFetches)
	mux.HandleFunc("GET /api/places", s.handleAPIPlaces)
	mux.HandleFunc("GET /api/monthdays", s.handleAPIMonthDays)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
