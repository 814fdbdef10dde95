// Package store persists fixes in PostgreSQL/PostGIS. Fixes are append
// only: a row is immutable once written. The geometry column keeps a
// projected point alongside the WGS84 coordinates so distance queries can
// run server side.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "fieldtrack/config"
	"fieldtrack/internal/fix"
	"fieldtrack/internal/metrics"
	"fieldtrack/logger"
)

type Store struct {
	pool *pgxpool.Pool
	srid int
	log  *logger.Log
}

func New(ctx context.Context, cfg appconfig.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		pool: pool,
		srid: cfg.SRID,
		log:  logger.GetLogger(),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema when it does not exist yet. PostGIS must
// already be installed in the target database.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS gps_data (
			id             BIGSERIAL PRIMARY KEY,
			timestamp      TIMESTAMPTZ NOT NULL,
			player_id      INTEGER NOT NULL,
			latitude       DOUBLE PRECISION NOT NULL,
			longitude      DOUBLE PRECISION NOT NULL,
			altitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
			num_satellites INTEGER NOT NULL DEFAULT 0,
			hdop           DOUBLE PRECISION NOT NULL DEFAULT 0,
			speed_kmh      DOUBLE PRECISION NOT NULL DEFAULT 0,
			course         DOUBLE PRECISION NOT NULL DEFAULT 0,
			quality        INTEGER NOT NULL DEFAULT 0,
			geom           geometry(Point)
		)`,
		`CREATE INDEX IF NOT EXISTS gps_data_timestamp_idx ON gps_data (timestamp)`,
		`CREATE INDEX IF NOT EXISTS gps_data_player_idx ON gps_data (player_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id             BIGSERIAL PRIMARY KEY,
			name           TEXT NOT NULL,
			started_at     TIMESTAMPTZ NOT NULL,
			ended_at       TIMESTAMPTZ,
			base_latitude  DOUBLE PRECISION,
			base_longitude DOUBLE PRECISION
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const insertFixSQL = `
INSERT INTO gps_data (
	timestamp, player_id, latitude, longitude, altitude,
	num_satellites, hdop, speed_kmh, course, quality, geom
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	ST_Transform(ST_SetSRID(ST_MakePoint($4, $3), 4326), $11)
)`

// InsertFixes writes the accepted fixes of one batch. A failed row is
// logged and skipped; one bad row never aborts the remainder of the batch.
// The returned count is the number of rows actually stored.
func (s *Store) InsertFixes(ctx context.Context, fixes []fix.Fix) (int, error) {
	stored := 0
	for _, fx := range fixes {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		_, err := s.pool.Exec(ctx, insertFixSQL,
			fx.Timestamp, fx.DeviceID, fx.Latitude, fx.Longitude, fx.Altitude,
			fx.Satellites, fx.HDOP, fx.SpeedKmh, fx.Course, fx.Quality, s.srid,
		)
		if err != nil {
			metrics.AddStoreErrors(1)
			s.log.WithComponent("store").WithError(err).WithFields(logger.Fields{
				"player_id": fx.DeviceID,
				"timestamp": fx.Timestamp,
			}).Error("failed to insert fix")
			continue
		}
		stored++
	}
	metrics.AddFixesStored(stored)
	return stored, nil
}

const queryRangeSQL = `
SELECT timestamp, player_id, latitude, longitude, altitude,
       num_satellites, hdop, speed_kmh, course, quality
FROM gps_data
WHERE quality >= 1 AND timestamp >= $1 AND timestamp <= $2
ORDER BY timestamp ASC, player_id ASC`

// QueryRange returns the quality-passing fixes inside [from, to],
// ascending by timestamp with device id as tiebreak.
func (s *Store) QueryRange(ctx context.Context, from, to time.Time) ([]fix.Fix, error) {
	rows, err := s.pool.Query(ctx, queryRangeSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("query fixes: %w", err)
	}
	defer rows.Close()

	var fixes []fix.Fix
	for rows.Next() {
		var fx fix.Fix
		err := rows.Scan(
			&fx.Timestamp, &fx.DeviceID, &fx.Latitude, &fx.Longitude, &fx.Altitude,
			&fx.Satellites, &fx.HDOP, &fx.SpeedKmh, &fx.Course, &fx.Quality,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fix: %w", err)
		}
		fixes = append(fixes, fx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query fixes: %w", err)
	}
	return fixes, nil
}
