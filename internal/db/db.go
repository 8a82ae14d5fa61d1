// Package db keeps a SQLite catalog of trip summaries so trips can be listed
// without opening every manifest.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/carhack/internal/trip"
)

// ErrTripNotFound is returned by Trip for an uncatalogued trip ID.
var ErrTripNotFound = errors.New("trip not found")

type DB struct {
	*sql.DB
}

// pragmas are applied to every connection opened by OpenDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

// OpenDB opens the catalog at path and applies the connection pragmas. It
// does not migrate; call MigrateUp.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; keeps the pragmas on the only connection.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return &DB{sqlDB}, nil
}

// NewDB opens the catalog at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// TripRecord is one catalogued trip.
type TripRecord struct {
	trip.Summary
	Path             string   `json:"path"`
	UpdatedUnix      float64  `json:"updated_unix"`
	RecalculatedUnix *float64 `json:"recalculated_unix,omitempty"`
}

// UpsertTrip inserts or replaces the catalog row for s.
func (db *DB) UpsertTrip(s trip.Summary, path string) error {
	sensors, err := encodeNames(s.Sensors)
	if err != nil {
		return err
	}
	processors, err := encodeNames(s.Processors)
	if err != nil {
		return err
	}
	series, err := encodeNames(s.Series)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO trips (tid, name, path, live, ts_start, ts_end, sensors, processors, series, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, UNIXEPOCH('subsec'))
		ON CONFLICT(tid) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			live = excluded.live,
			ts_start = excluded.ts_start,
			ts_end = excluded.ts_end,
			sensors = excluded.sensors,
			processors = excluded.processors,
			series = excluded.series,
			updated_unix = excluded.updated_unix
	`, s.TID, s.Name, path, s.Live, s.TSStart, s.TSEnd, sensors, processors, series)
	if err != nil {
		return fmt.Errorf("failed to upsert trip %s: %w", s.TID, err)
	}
	return nil
}

// MarkRecalculated stamps the trip's recalculation time.
func (db *DB) MarkRecalculated(tid string, unix float64) error {
	res, err := db.Exec(`UPDATE trips SET recalculated_unix = ? WHERE tid = ?`, unix, tid)
	if err != nil {
		return fmt.Errorf("failed to mark trip %s recalculated: %w", tid, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrTripNotFound, tid)
	}
	return nil
}

const tripColumns = `tid, name, path, live, ts_start, ts_end, sensors, processors, series, updated_unix, recalculated_unix`

// Trips returns every catalogued trip, oldest first.
func (db *DB) Trips() ([]TripRecord, error) {
	rows, err := db.Query(`SELECT ` + tripColumns + ` FROM trips ORDER BY ts_start, tid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TripRecord
	for rows.Next() {
		rec, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Trip returns the catalog row for tid.
func (db *DB) Trip(tid string) (TripRecord, error) {
	row := db.QueryRow(`SELECT `+tripColumns+` FROM trips WHERE tid = ?`, tid)
	rec, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TripRecord{}, fmt.Errorf("%w: %s", ErrTripNotFound, tid)
	}
	return rec, err
}

// DeleteTrip removes the catalog row for tid. The trip directory is left
// alone.
func (db *DB) DeleteTrip(tid string) error {
	res, err := db.Exec(`DELETE FROM trips WHERE tid = ?`, tid)
	if err != nil {
		return fmt.Errorf("failed to delete trip %s: %w", tid, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrTripNotFound, tid)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(s scanner) (TripRecord, error) {
	var (
		rec                         TripRecord
		sensors, processors, series string
		recalculated                sql.NullFloat64
	)
	err := s.Scan(&rec.TID, &rec.Name, &rec.Path, &rec.Live, &rec.TSStart, &rec.TSEnd,
		&sensors, &processors, &series, &rec.UpdatedUnix, &recalculated)
	if err != nil {
		return TripRecord{}, err
	}
	if rec.Sensors, err = decodeNames(sensors); err != nil {
		return TripRecord{}, err
	}
	if rec.Processors, err = decodeNames(processors); err != nil {
		return TripRecord{}, err
	}
	if rec.Series, err = decodeNames(series); err != nil {
		return TripRecord{}, err
	}
	if recalculated.Valid {
		v := recalculated.Float64
		rec.RecalculatedUnix = &v
	}
	return rec, nil
}

func encodeNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	b, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("failed to encode names: %w", err)
	}
	return string(b), nil
}

func decodeNames(s string) ([]string, error) {
	names := []string{}
	if err := json.Unmarshal([]byte(s), &names); err != nil {
		return nil, fmt.Errorf("failed to decode names %q: %w", s, err)
	}
	return names, nil
}
