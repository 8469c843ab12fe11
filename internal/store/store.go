// Package store wraps SQLite access for cleaned trips, taxi zones, zone
// geometries, and persisted load jobs.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"taxi_explorer/internal/source"
	"taxi_explorer/internal/trips"
)

// Store owns the database handle. One writer per run; readers are the HTTP
// query layer.
type Store struct {
	db *sql.DB
	tx *sql.Tx // open batch transaction for trip inserts, nil between batches
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trips (
			trip_id INTEGER PRIMARY KEY AUTOINCREMENT,
			vendor_id INTEGER,
			pickup_datetime TEXT NOT NULL,
			dropoff_datetime TEXT NOT NULL,
			passenger_count INTEGER NOT NULL,
			trip_distance REAL NOT NULL,
			rate_code_id INTEGER,
			store_and_fwd_flag TEXT,
			pickup_location_id INTEGER NOT NULL,
			dropoff_location_id INTEGER NOT NULL,
			payment_type INTEGER,
			fare_amount REAL NOT NULL,
			extra REAL NOT NULL DEFAULT 0,
			mta_tax REAL NOT NULL DEFAULT 0,
			tip_amount REAL NOT NULL DEFAULT 0,
			tolls_amount REAL NOT NULL DEFAULT 0,
			improvement_surcharge REAL NOT NULL DEFAULT 0,
			total_amount REAL NOT NULL DEFAULT 0,
			congestion_surcharge REAL NOT NULL DEFAULT 0,
			trip_duration_minutes REAL NOT NULL,
			speed_mph REAL NOT NULL,
			fare_per_mile REAL NOT NULL,
			pickup_hour INTEGER NOT NULL,
			pickup_day_of_week INTEGER NOT NULL,
			is_weekend INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trips_pickup_loc ON trips(pickup_location_id);`,
		`CREATE INDEX IF NOT EXISTS idx_trips_dropoff_loc ON trips(dropoff_location_id);`,
		`CREATE INDEX IF NOT EXISTS idx_trips_pickup_hour ON trips(pickup_hour);`,
		`CREATE INDEX IF NOT EXISTS idx_trips_fare ON trips(fare_amount);`,
		`CREATE TABLE IF NOT EXISTS taxi_zones (
			location_id INTEGER PRIMARY KEY,
			borough TEXT NOT NULL,
			zone_name TEXT NOT NULL,
			service_zone TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS taxi_zone_geometries (
			location_id INTEGER PRIMARY KEY,
			geometry_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			subject TEXT NOT NULL,
			status TEXT NOT NULL,
			params_json TEXT NOT NULL,
			idempotency_key TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			last_error TEXT
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idem ON jobs(idempotency_key);`,
		`CREATE TABLE IF NOT EXISTS job_logs (
			job_id TEXT,
			line TEXT,
			created_at TIMESTAMP
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// InsertTrip writes one accepted record. Inserts between commit boundaries
// share a transaction so a whole batch lands atomically.
func (s *Store) InsertTrip(ctx context.Context, rec trips.CleanTripRecord) error {
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin batch: %w", err)
		}
		s.tx = tx
	}
	isWeekend := 0
	if rec.IsWeekend {
		isWeekend = 1
	}
	_, err := s.tx.ExecContext(ctx, `INSERT INTO trips (
		vendor_id, pickup_datetime, dropoff_datetime, passenger_count,
		trip_distance, rate_code_id, store_and_fwd_flag,
		pickup_location_id, dropoff_location_id, payment_type,
		fare_amount, extra, mta_tax, tip_amount, tolls_amount,
		improvement_surcharge, total_amount, congestion_surcharge,
		trip_duration_minutes, speed_mph, fare_per_mile,
		pickup_hour, pickup_day_of_week, is_weekend
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.VendorID,
		rec.PickupTime.Format(sqliteTimeLayout),
		rec.DropoffTime.Format(sqliteTimeLayout),
		rec.PassengerCount,
		rec.TripDistance,
		rec.RateCodeID,
		rec.StoreAndFwdFlag,
		rec.PULocationID,
		rec.DOLocationID,
		rec.PaymentType,
		rec.FareAmount,
		rec.Extra,
		rec.MTATax,
		rec.TipAmount,
		rec.TollsAmount,
		rec.ImprovementSurcharge,
		rec.TotalAmount,
		rec.CongestionSurcharge,
		rec.TripDurationMinutes,
		rec.SpeedMPH,
		rec.FarePerMile,
		rec.PickupHour,
		rec.PickupDayOfWeek,
		isWeekend,
	)
	if err != nil {
		s.tx.Rollback()
		s.tx = nil
		return fmt.Errorf("store: insert trip: %w", err)
	}
	return nil
}

// CommitBatch closes the current trip transaction, if any.
func (s *Store) CommitBatch(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

// ResetTrips clears the trips table before a fresh load.
func (s *Store) ResetTrips(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM trips`)
	return err
}

func (s *Store) CountTrips(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`).Scan(&n)
	return n, err
}

// UpsertZone loads one zone lookup row.
func (s *Store) UpsertZone(ctx context.Context, z source.Zone) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO taxi_zones (location_id, borough, zone_name, service_zone) VALUES (?,?,?,?)`,
		z.LocationID, z.Borough, z.ZoneName, z.ServiceZone)
	return err
}

// UpsertZoneGeometry stores one serialized boundary shape.
func (s *Store) UpsertZoneGeometry(ctx context.Context, g source.ZoneGeometry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO taxi_zone_geometries (location_id, geometry_json) VALUES (?,?)`,
		g.LocationID, g.GeometryJSON)
	return err
}

func (s *Store) CountZones(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM taxi_zones`).Scan(&n)
	return n, err
}

// Health returns an error when the database is unreachable.
func (s *Store) Health(ctx context.Context) error {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
