package dwd

import (
	"context"
	"log"
	"time"

	"github.com/ujung/wetter/internal/metrics"
	"github.com/ujung/wetter/internal/models"
)

// FetchRecord describes one remote archive retrieval for auditing.
type FetchRecord struct {
	SessionID  string
	StationID  string
	Transport  string
	Archive    string
	StartedAt  time.Time
	FinishedAt time.Time
	Bytes      int
	Rows       int
	Found      bool // archive contained a product file
	Err        error
}

// FetchRecorder persists fetch records.
type FetchRecorder interface {
	RecordFetch(rec FetchRecord) error
}

type sessionKey struct{}

// WithSessionID tags fetches made with ctx with a forecast session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// Source returns cleaned daily tables per station, served from the table
// cache when present and downloaded from DWD otherwise.
type Source struct {
	cache    *TableCache
	index    *ArchiveIndex
	fetcher  Fetcher
	recorder FetchRecorder
	timeout  time.Duration
}

func NewSource(cache *TableCache, index *ArchiveIndex, fetcher Fetcher, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Source{cache: cache, index: index, fetcher: fetcher, timeout: timeout}
}

// SetRecorder configures where remote retrievals are audited.
func (s *Source) SetRecorder(r FetchRecorder) {
	s.recorder = r
}

// Records returns the station's table. A station without an archive, or an
// archive without a product file, yields an empty table and no error.
// Download and archive failures return a *RetrievalError.
func (s *Source) Records(ctx context.Context, stationID int) (*Table, error) {
	id := models.PadStationID(stationID)

	t, ok, err := s.cache.Get(id)
	if err != nil {
		log.Printf("dwd: cache %s unreadable, refetching: %v", id, err)
	}
	if ok {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return t, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	name, ok := s.index.Lookup(id)
	if !ok {
		log.Printf("dwd: no archive listed for station %s", id)
		return &Table{}, nil
	}

	t, err = s.download(ctx, id, name)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(id, t); err != nil {
		log.Printf("dwd: cache %s not written: %v", id, err)
	}
	return t, nil
}

func (s *Source) download(ctx context.Context, id, name string) (*Table, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec := FetchRecord{
		SessionID: sessionID(ctx),
		StationID: id,
		Transport: s.fetcher.Transport(),
		Archive:   name,
		StartedAt: time.Now().UTC(),
	}
	defer s.record(&rec)

	data, err := s.fetcher.Fetch(ctx, name)
	metrics.ArchiveFetchLatency.WithLabelValues(rec.Transport).Observe(time.Since(rec.StartedAt).Seconds())
	if err != nil {
		metrics.ArchiveFetchesTotal.WithLabelValues(rec.Transport, "error").Inc()
		rec.Err = err
		return nil, &RetrievalError{StationID: id, Archive: name, Err: err}
	}
	metrics.ArchiveFetchesTotal.WithLabelValues(rec.Transport, "ok").Inc()
	rec.Bytes = len(data)

	t, found, err := extractProduct(data)
	if err != nil {
		rec.Err = err
		return nil, &RetrievalError{StationID: id, Archive: name, Err: err}
	}
	if !found {
		log.Printf("dwd: archive %s has no product file", name)
		return &Table{}, nil
	}

	rec.Found = true
	rec.Rows = t.Len()
	return t, nil
}

func (s *Source) record(rec *FetchRecord) {
	if s.recorder == nil {
		return
	}
	rec.FinishedAt = time.Now().UTC()
	if err := s.recorder.RecordFetch(*rec); err != nil {
		log.Printf("dwd: record fetch %s: %v", rec.StationID, err)
	}
}
