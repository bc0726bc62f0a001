package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

// IndexSnapshot is a stored archive directory listing.
type IndexSnapshot struct {
	ID          int64
	FetchedAt   time.Time
	Source      string
	Entries     int
	ListingHash string
}

// StoreIndexSnapshot stores a compressed archive listing. Returns the
// snapshot ID, or 0 if an identical listing is already stored.
func (s *Store) StoreIndexSnapshot(source string, names []string) (int64, error) {
	listing := []byte(strings.Join(names, "\n"))

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(listing); err != nil {
		return 0, fmt.Errorf("compress listing: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(listing)
	hashHex := hex.EncodeToString(hash[:])

	result, err := s.db.Exec(`
		INSERT INTO index_snapshots (fetched_at, source, entries, listing_compressed, listing_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(listing_hash) DO NOTHING
	`, time.Now().UTC(), source, len(names), buf.Bytes(), hashHex)
	if err != nil {
		return 0, fmt.Errorf("insert index snapshot: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLatestIndexSnapshot returns the newest snapshot's metadata and its
// listing, or nil if none is stored.
func (s *Store) GetLatestIndexSnapshot() (*IndexSnapshot, []string, error) {
	row := s.db.QueryRow(`
		SELECT id, fetched_at, source, entries, listing_hash, listing_compressed
		FROM index_snapshots
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`)

	var snap IndexSnapshot
	var compressed []byte
	err := row.Scan(&snap.ID, &snap.FetchedAt, &snap.Source, &snap.Entries, &snap.ListingHash, &compressed)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	listing, err := io.ReadAll(gz)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress listing: %w", err)
	}
	if len(listing) == 0 {
		return &snap, nil, nil
	}
	return &snap, strings.Split(string(listing), "\n"), nil
}
