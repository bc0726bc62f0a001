package ingest

import (
	"context"
	"log"

	"github.com/ujung/wetter/internal/dwd"
	"github.com/ujung/wetter/internal/models"
)

// RecordSource returns a station's table, caching it as a side effect.
type RecordSource interface {
	Records(ctx context.Context, stationID int) (*dwd.Table, error)
}

// CacheWarmer loads configured stations so their tables are cached before
// the first request needs them.
type CacheWarmer struct {
	source   RecordSource
	stations []int
}

func NewCacheWarmer(source RecordSource, stations []int) *CacheWarmer {
	return &CacheWarmer{source: source, stations: append([]int(nil), stations...)}
}

// Warm loads each station in turn and returns the number loaded without
// error. It stops early when ctx is done.
func (w *CacheWarmer) Warm(ctx context.Context) int {
	loaded := 0
	for _, id := range w.stations {
		if ctx.Err() != nil {
			break
		}
		t, err := w.source.Records(ctx, id)
		if err != nil {
			log.Printf("ingest: warm station %s: %v", models.PadStationID(id), err)
			continue
		}
		loaded++
		log.Printf("ingest: warmed station %s (%d rows)", models.PadStationID(id), t.Len())
	}
	return loaded
}
