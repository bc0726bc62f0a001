package store

import (
	"database/sql"
	"fmt"

	"github.com/ujung/wetter/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the SQLite database at path with the pragmas the service
// expects and applies pending migrations.
func Open(path string) (*Store, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	// modernc/sqlite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return s, db, nil
}

const upsertStationSQL = `
	INSERT INTO stations (station_id, name, region, latitude, longitude, elevation, valid_from, valid_to)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(station_id) DO UPDATE SET
		name = excluded.name,
		region = excluded.region,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		elevation = excluded.elevation,
		valid_from = excluded.valid_from,
		valid_to = excluded.valid_to
`

// SyncStations mirrors the whole catalog in one transaction.
func (s *Store) SyncStations(stations []models.Station) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertStationSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, st := range stations {
		if _, err := stmt.Exec(st.ID, st.Name, st.Region, st.Latitude, st.Longitude, st.Elevation, st.ValidFrom, st.ValidTo); err != nil {
			return fmt.Errorf("station %s: %w", st.PaddedID(), err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetStations() ([]models.Station, error) {
	rows, err := s.db.Query(`
		SELECT station_id, name, region, latitude, longitude, elevation, valid_from, valid_to
		FROM stations
		ORDER BY station_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Region, &st.Latitude, &st.Longitude, &st.Elevation, &st.ValidFrom, &st.ValidTo); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// GetStation returns the mirrored station, or nil if unknown.
func (s *Store) GetStation(id int) (*models.Station, error) {
	row := s.db.QueryRow(`
		SELECT station_id, name, region, latitude, longitude, elevation, valid_from, valid_to
		FROM stations WHERE station_id = ?
	`, id)

	var st models.Station
	err := row.Scan(&st.ID, &st.Name, &st.Region, &st.Latitude, &st.Longitude, &st.Elevation, &st.ValidFrom, &st.ValidTo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}
