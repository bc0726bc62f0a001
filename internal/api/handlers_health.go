package api

import (
	"net/http"
)

type HealthStatus struct {
	Status         string          `json:"status"`
	Stations       int             `json:"stations"`
	IndexEntries   int             `json:"indexEntries"`
	Fetches        []FetchActivity `json:"fetches,omitempty"`
	RecentFailures []FetchFailure  `json:"recentFailures,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
}

type FetchActivity struct {
	Date        string `json:"date"`
	Transport   string `json:"transport"`
	TotalRuns   int    `json:"totalRuns"`
	SuccessRuns int    `json:"successRuns"`
	FailedRuns  int    `json:"failedRuns"`
}

type FetchFailure struct {
	StationID string `json:"stationId"`
	Archive   string `json:"archive"`
	At        string `json:"at"`
	Error     string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:   "ok",
		Stations: len(s.catalog.Stations()),
	}
	if s.index != nil {
		health.IndexEntries = s.index.Len()
		if health.IndexEntries == 0 {
			health.Status = "degraded"
		}
	}

	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
			return
		}

		summaries, err := s.store.GetFetchHealth(1)
		if err != nil {
			health.Errors = append(health.Errors, "fetch health: "+err.Error())
		}
		for _, h := range summaries {
			health.Fetches = append(health.Fetches, FetchActivity{
				Date:        h.Date,
				Transport:   h.Transport,
				TotalRuns:   h.TotalRuns,
				SuccessRuns: h.SuccessRuns,
				FailedRuns:  h.FailedRuns,
			})
			if h.TotalRuns > 0 && h.SuccessRuns == 0 {
				health.Status = "degraded"
			}
		}

		failures, err := s.store.GetRecentFetchErrors(5)
		if err != nil {
			health.Errors = append(health.Errors, "fetch errors: "+err.Error())
		}
		for _, f := range failures {
			health.RecentFailures = append(health.RecentFailures, FetchFailure{
				StationID: f.StationID,
				Archive:   f.Archive,
				At:        f.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
				Error:     f.ErrorMessage.String,
			})
		}
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}
	writeJSON(w, http.StatusOK, health)
}
