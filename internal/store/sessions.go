package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one recording window. Base coordinates are the surveyed
// position of the stationary receiver; nil until a survey sets them.
type Session struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	BaseLatitude  *float64   `json:"base_latitude,omitempty"`
	BaseLongitude *float64   `json:"base_longitude,omitempty"`
}

// Window resolves the session's query range. An open session runs from
// its start to now; when no start is recorded the fallback duration
// counted back from now is used.
func (s Session) Window(now time.Time, fallback time.Duration) (time.Time, time.Time) {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	start := s.StartedAt
	if start.IsZero() {
		start = end.Add(-fallback)
	}
	return start, end
}

func (s *Store) CreateSession(ctx context.Context, name string, startedAt time.Time) (Session, error) {
	sess := Session{Name: name, StartedAt: startedAt}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (name, started_at) VALUES ($1, $2) RETURNING id`,
		name, startedAt,
	).Scan(&sess.ID)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, started_at, ended_at, base_latitude, base_longitude
		 FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Name, &sess.StartedAt, &sess.EndedAt,
		&sess.BaseLatitude, &sess.BaseLongitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, started_at, ended_at, base_latitude, base_longitude
		 FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		err := rows.Scan(&sess.ID, &sess.Name, &sess.StartedAt, &sess.EndedAt,
			&sess.BaseLatitude, &sess.BaseLongitude)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// EndSession closes an open session at the given instant.
func (s *Store) EndSession(ctx context.Context, id int64, endedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = $2 WHERE id = $1`, id, endedAt)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateSessionBase records the surveyed base station coordinates used by
// differential correction.
func (s *Store) UpdateSessionBase(ctx context.Context, id int64, lat, lon float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET base_latitude = $2, base_longitude = $3 WHERE id = $1`,
		id, lat, lon)
	if err != nil {
		return fmt.Errorf("update session base: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
