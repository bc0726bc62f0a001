package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ujung/wetter/internal/dwd"
	"github.com/ujung/wetter/internal/store"
)

// Lister returns the archive names available on the remote server.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// SnapshotStore keeps a history of archive listings.
type SnapshotStore interface {
	StoreIndexSnapshot(source string, names []string) (int64, error)
}

// SnapshotReader returns the most recently stored archive listing.
type SnapshotReader interface {
	GetLatestIndexSnapshot() (*store.IndexSnapshot, []string, error)
}

var errEmptyListing = errors.New("remote listing is empty")

// IndexRefresher rewrites the archive index from a remote listing.
type IndexRefresher struct {
	lister    Lister
	source    string
	index     *dwd.ArchiveIndex
	snapshots SnapshotStore
}

func NewIndexRefresher(lister Lister, source string, index *dwd.ArchiveIndex) *IndexRefresher {
	return &IndexRefresher{lister: lister, source: source, index: index}
}

// SetSnapshotStore configures where fetched listings are archived.
func (r *IndexRefresher) SetSnapshotStore(s SnapshotStore) {
	r.snapshots = s
}

// Refresh lists the remote directory and replaces the index. An empty
// listing leaves the current index untouched.
func (r *IndexRefresher) Refresh(ctx context.Context) (int, error) {
	names, err := r.lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list archives: %w", err)
	}
	if len(names) == 0 {
		return 0, errEmptyListing
	}

	if r.snapshots != nil {
		if _, err := r.snapshots.StoreIndexSnapshot(r.source, names); err != nil {
			log.Printf("ingest: store index snapshot: %v", err)
		}
	}

	before := r.index.Len()
	if err := r.index.Replace(names); err != nil {
		return 0, err
	}
	log.Printf("ingest: archive index refreshed from %s (%d -> %d entries)", r.source, before, len(names))
	return len(names), nil
}

// SeedIndex fills an empty index from the latest stored listing and returns
// the number of names loaded. A non-empty index is left untouched.
func SeedIndex(index *dwd.ArchiveIndex, snapshots SnapshotReader) (int, error) {
	if index.Len() > 0 {
		return 0, nil
	}
	snap, names, err := snapshots.GetLatestIndexSnapshot()
	if err != nil {
		return 0, fmt.Errorf("latest index snapshot: %w", err)
	}
	if snap == nil || len(names) == 0 {
		return 0, nil
	}
	if err := index.Replace(names); err != nil {
		return 0, err
	}
	log.Printf("ingest: archive index seeded from %s snapshot of %s (%d entries)",
		snap.Source, snap.FetchedAt.Format("2006-01-02"), len(names))
	return len(names), nil
}
